// Package events implements spec.md Section 9's "Observer events become
// typed channels" redesign note: the four observable events the link layer
// emits (PacketTransmissionStarted, PacketReceptionEnded, ChannelMapUpdated,
// ConnectionEventEnded, spec.md Section 6) are delivered by value to a set
// of subscribers instead of being hard-wired to one consumer.
//
// Dispatch is synchronous and runs on the scheduler goroutine that raised
// the event -- spec.md Section 5 forbids background delivery threads, so
// Bus is not a buffered-channel fan-out; it is a plain, ordered callback
// list, the single-threaded equivalent of the teacher's
// `notifyCh chan<- StateChange` generalized to more than one event type and
// more than one subscriber.
package events

import "github.com/dantte-lp/blesim/internal/simclock"

// PacketTransmissionStarted is emitted when the link layer hands a packet
// to the PHY transmit stub (spec.md Section 6).
type PacketTransmissionStarted struct {
	At          simclock.Time
	ConnDiscr   uint32
	Channel     uint8
	PacketLen   int
	IsRetransmit bool
	IsControl   bool
	IsEmpty     bool
}

// PacketReceptionEnded is emitted after reception processing completes for
// one received PDU (spec.md Section 4.4 step 6, Section 6).
type PacketReceptionEnded struct {
	At           simclock.Time
	ConnDiscr    uint32
	Channel      uint8
	Success      bool // true iff CRC passed and the access address matched
	CRCFailed    bool
	AddrMismatch bool
	Duplicate    bool
	Acknowledged bool
	Delivered    bool
	Latency      simclock.Duration
	RTT          simclock.Duration
	RSSI         float64
	SINR         float64
	PayloadLen   int
}

// ChannelMapUpdated is emitted by both ends of a connection when a pending
// channel map commits at its instant (spec.md Section 4.9, Section 6).
type ChannelMapUpdated struct {
	At           simclock.Time
	ConnDiscr    uint32
	PeerName     string
	PeerID       uint32
	UsedChannels []uint8
}

// ConnectionEventEnded is emitted once per connection event, at the next
// event boundary, before the event counter advances (spec.md Section 4.3
// step 1, Section 6). The
// four *TimeMicros fields are the event's contribution to spec.md Section
// 3's Connection Statistics transmission/idle/listen/sleep time-in-state
// counters.
type ConnectionEventEnded struct {
	At        simclock.Time
	ConnDiscr uint32
	Counter   uint16
	Channel   uint8
	TxPackets int
	RxPackets int
	CRCFailed int

	TxTimeMicros     int64
	IdleTimeMicros   int64
	ListenTimeMicros int64
	SleepTimeMicros  int64
}

// Bus fans out the four event types to their subscribers in registration
// order. The zero value is ready to use.
type Bus struct {
	onTx        []func(PacketTransmissionStarted)
	onRx        []func(PacketReceptionEnded)
	onChanMap   []func(ChannelMapUpdated)
	onEventEnd  []func(ConnectionEventEnded)
}

// NewBus creates an empty event bus.
func NewBus() *Bus { return &Bus{} }

// OnPacketTransmissionStarted registers fn as a subscriber.
func (b *Bus) OnPacketTransmissionStarted(fn func(PacketTransmissionStarted)) {
	b.onTx = append(b.onTx, fn)
}

// OnPacketReceptionEnded registers fn as a subscriber. This is the event
// the classifiers subscribe to (spec.md Section 4.7, Section 4.8).
func (b *Bus) OnPacketReceptionEnded(fn func(PacketReceptionEnded)) {
	b.onRx = append(b.onRx, fn)
}

// OnChannelMapUpdated registers fn as a subscriber.
func (b *Bus) OnChannelMapUpdated(fn func(ChannelMapUpdated)) {
	b.onChanMap = append(b.onChanMap, fn)
}

// OnConnectionEventEnded registers fn as a subscriber.
func (b *Bus) OnConnectionEventEnded(fn func(ConnectionEventEnded)) {
	b.onEventEnd = append(b.onEventEnd, fn)
}

// PublishPacketTransmissionStarted dispatches ev to all subscribers.
func (b *Bus) PublishPacketTransmissionStarted(ev PacketTransmissionStarted) {
	for _, fn := range b.onTx {
		fn(ev)
	}
}

// PublishPacketReceptionEnded dispatches ev to all subscribers.
func (b *Bus) PublishPacketReceptionEnded(ev PacketReceptionEnded) {
	for _, fn := range b.onRx {
		fn(ev)
	}
}

// PublishChannelMapUpdated dispatches ev to all subscribers.
func (b *Bus) PublishChannelMapUpdated(ev ChannelMapUpdated) {
	for _, fn := range b.onChanMap {
		fn(ev)
	}
}

// PublishConnectionEventEnded dispatches ev to all subscribers.
func (b *Bus) PublishConnectionEventEnded(ev ConnectionEventEnded) {
	for _, fn := range b.onEventEnd {
		fn(ev)
	}
}
