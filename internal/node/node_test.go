package node

import (
	"testing"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/events"
	"github.com/dantte-lp/blesim/internal/simclock"
)

type fixedSource struct {
	payloads [][]byte
	i        int
}

func (f *fixedSource) Next(now simclock.Time) ([]byte, simclock.Time, bool) {
	if f.i >= len(f.payloads) {
		return nil, 0, false
	}
	p := f.payloads[f.i]
	f.i++
	return p, now, true
}

type noopPHY struct{}

func (noopPHY) Transmit(simclock.Time, bleconn.TxRecord) {}
func (noopPHY) Listen(now simclock.Time, channel uint8, aa uint32, phy bleconn.PHYMode, maxDur simclock.Duration, onEnd func(bleconn.RxResult)) {
}

func TestPumpTrafficSourcesDrainsIntoQueue(t *testing.T) {
	sched := simclock.NewScheduler()
	bus := events.NewBus()
	n := NewNode(Config{Name: "n1"}, sched, bus)

	used, _ := bleconn.NewUsedChannelMap([]uint8{0, 1, 2})
	cfg := &bleconn.ConnectionConfig{
		Role:                bleconn.RoleCentral,
		InitialUsedChannels: used,
		InstantOffset:       6,
		PeripheralCount:     1,
		MaxPacketDuration:   400 * simclock.Microsecond,
		ConnectionInterval:  10 * simclock.Millisecond,
	}
	source := &fixedSource{payloads: [][]byte{[]byte("a"), []byte("b")}}
	conn := n.AddConnection(1, cfg, noopPHY{}, source)

	n.pumpTrafficSources(0)

	if conn.Context() == nil {
		t.Fatal("expected connection context to be available")
	}
	if source.i != len(source.payloads) {
		t.Fatalf("source yielded %d of %d payloads, want all drained", source.i, len(source.payloads))
	}
	if overflows := n.Stats(1).Snapshot(0).QueueOverflows; overflows != 0 {
		t.Fatalf("QueueOverflows = %d, want 0 (every payload enqueued)", overflows)
	}
}
