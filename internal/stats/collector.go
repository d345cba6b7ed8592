package stats

import (
	"sync"

	"github.com/dantte-lp/blesim/internal/events"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// Counters is the raw Connection Statistics of spec.md Section 3. It
// holds no synchronization of its own so it can be copied freely into a
// Snapshot.
type Counters struct {
	TxTimeMicros     int64
	IdleTimeMicros   int64
	ListenTimeMicros int64
	SleepTimeMicros  int64

	TransmittedPackets   int
	RetransmittedPackets int
	DataPackets          int
	ControlPackets       int
	EmptyPackets         int
	AcknowledgedPackets  int

	ReceivedPackets  int
	DuplicatePackets int
	CRCFailedPackets int

	TransmittedBytes        int64
	ReceivedBytes           int64
	TransmittedPayloadBytes int64
	ReceivedPayloadBytes    int64

	AggregateLatency simclock.Duration
	LatencySamples   int
	AggregateRTT     simclock.Duration
	RTTSamples       int

	QueueOverflows int
}

// Collector accumulates Counters for one connection by subscribing to its
// slice of an events.Bus. It is safe for concurrent read access from a
// console or metrics exporter while the scheduler goroutine keeps
// writing, mirroring the teacher's Prometheus Collector pattern of a
// mutex-guarded counter struct (internal/metrics/collector.go).
type Collector struct {
	mu sync.RWMutex
	c  Counters
}

// NewCollector builds an empty Collector. Call Attach to begin recording
// a connection's events.
func NewCollector() *Collector { return &Collector{} }

// Attach subscribes the collector to bus for connDiscr's traffic. A
// Collector is meant to track exactly one connection; callers create one
// Collector per connection (spec.md Section 3: "Statistics live as long
// as the enclosing node" -- one set per connection within it).
func (col *Collector) Attach(bus *events.Bus, connDiscr uint32) {
	bus.OnPacketTransmissionStarted(func(ev events.PacketTransmissionStarted) {
		if ev.ConnDiscr != connDiscr {
			return
		}
		col.recordTransmission(ev)
	})
	bus.OnPacketReceptionEnded(func(ev events.PacketReceptionEnded) {
		if ev.ConnDiscr != connDiscr {
			return
		}
		col.recordReception(ev)
	})
	bus.OnConnectionEventEnded(func(ev events.ConnectionEventEnded) {
		if ev.ConnDiscr != connDiscr {
			return
		}
		col.recordEventTiming(ev)
	})
}

func (col *Collector) recordTransmission(ev events.PacketTransmissionStarted) {
	col.mu.Lock()
	defer col.mu.Unlock()

	col.c.TransmittedPackets++
	col.c.TransmittedBytes += int64(ev.PacketLen)
	switch {
	case ev.IsRetransmit:
		col.c.RetransmittedPackets++
	case ev.IsControl:
		col.c.ControlPackets++
	case ev.IsEmpty:
		col.c.EmptyPackets++
	default:
		col.c.DataPackets++
	}
	if !ev.IsEmpty && !ev.IsControl {
		col.c.TransmittedPayloadBytes += int64(ev.PacketLen)
	}
}

func (col *Collector) recordReception(ev events.PacketReceptionEnded) {
	col.mu.Lock()
	defer col.mu.Unlock()

	col.c.ReceivedPackets++
	if ev.CRCFailed {
		col.c.CRCFailedPackets++
		return
	}
	if ev.Duplicate {
		col.c.DuplicatePackets++
	}
	if ev.Acknowledged {
		col.c.AcknowledgedPackets++
	}
	col.c.ReceivedBytes += int64(ev.PayloadLen)
	if ev.Delivered {
		col.c.ReceivedPayloadBytes += int64(ev.PayloadLen)
		col.c.AggregateLatency += ev.Latency
		col.c.LatencySamples++
	}
	if ev.Acknowledged {
		col.c.AggregateRTT += ev.RTT
		col.c.RTTSamples++
	}
}

// recordEventTiming folds one finished connection event's time-in-state
// contribution into the running totals (spec.md Section 3: "transmission/
// idle/listen/sleep time (us)").
func (col *Collector) recordEventTiming(ev events.ConnectionEventEnded) {
	col.mu.Lock()
	defer col.mu.Unlock()

	col.c.TxTimeMicros += ev.TxTimeMicros
	col.c.IdleTimeMicros += ev.IdleTimeMicros
	col.c.ListenTimeMicros += ev.ListenTimeMicros
	col.c.SleepTimeMicros += ev.SleepTimeMicros
}

// RecordQueueOverflow increments the overflow counter. The queue itself
// (internal/bleconn.TxQueue) tracks its own overflow count; callers that
// want it reflected in Connection Statistics call this after a failed
// Enqueue.
func (col *Collector) RecordQueueOverflow() {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.c.QueueOverflows++
}

// Snapshot is an immutable copy of a Collector's counters plus its
// derived metrics (spec.md Section 3: "Derived: packet-loss ratio,
// throughput (Kbps), average packet latency (s), average RTT (s)").
type Snapshot struct {
	Counters

	PacketLossRatio             float64
	ThroughputKbps               float64
	AveragePacketLatencySeconds float64
	AverageRTTSeconds           float64
}

// Snapshot takes a consistent copy of the collector's counters and
// computes the derived metrics over the connection's elapsed lifetime.
func (col *Collector) Snapshot(elapsed simclock.Duration) Snapshot {
	col.mu.RLock()
	defer col.mu.RUnlock()

	s := Snapshot{Counters: col.c}

	attempted := s.TransmittedPackets - s.EmptyPackets
	if attempted > 0 {
		s.PacketLossRatio = 1 - float64(s.AcknowledgedPackets)/float64(attempted)
	}

	if elapsed > 0 {
		totalBits := float64(s.TransmittedBytes+s.ReceivedBytes) * 8
		seconds := float64(elapsed) / float64(simclock.Second)
		if seconds > 0 {
			s.ThroughputKbps = totalBits / seconds / 1000
		}
	}

	if s.LatencySamples > 0 {
		s.AveragePacketLatencySeconds = (float64(s.AggregateLatency) / float64(s.LatencySamples)) / float64(simclock.Second)
	}
	if s.RTTSamples > 0 {
		s.AverageRTTSeconds = (float64(s.AggregateRTT) / float64(s.RTTSamples)) / float64(simclock.Second)
	}

	return s
}
