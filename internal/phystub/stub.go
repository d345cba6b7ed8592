package phystub

import (
	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// Stub implements bleconn.PHY for exactly one side of a point-to-point
// connection, paired with a peer Stub via Pair. This models a connected
// piconet's airtime directly rather than a full broadcast medium -- the
// only listener that can ever hear a Stub's Transmit is its paired peer.
type Stub struct {
	sched *simclock.Scheduler
	model LossModel
	peer  *Stub

	listening     bool
	listenChannel uint8
	listenAA      uint32
	listenPHY     bleconn.PHYMode
	listenTimeout simclock.EntryID
	onEnd         func(bleconn.RxResult)
}

// New builds an unpaired Stub. Call Pair to connect two Stubs before
// either side starts transmitting or listening.
func New(sched *simclock.Scheduler, model LossModel) *Stub {
	return &Stub{sched: sched, model: model}
}

// Pair connects a and b as each other's only possible receiver.
func Pair(a, b *Stub) {
	a.peer = b
	b.peer = a
}

// Transmit implements bleconn.PHY. The packet reaches the peer only after
// its full airtime has elapsed, matching the Tx-then-TIFS-then-Rx cadence
// the link layer already drives (internal/bleconn/session.go).
func (s *Stub) Transmit(now simclock.Time, rec bleconn.TxRecord) {
	if s.peer == nil {
		return
	}
	peer := s.peer
	s.sched.After(rec.PacketDuration, func(arrival simclock.Time) {
		peer.deliver(arrival, rec)
	})
}

// Listen implements bleconn.PHY.
func (s *Stub) Listen(now simclock.Time, channel uint8, accessAddress uint32, phyMode bleconn.PHYMode, maxDuration simclock.Duration, onEnd func(bleconn.RxResult)) {
	s.listening = true
	s.listenChannel = channel
	s.listenAA = accessAddress
	s.listenPHY = phyMode
	s.onEnd = onEnd
	s.listenTimeout = s.sched.After(maxDuration, s.onListenTimeout)
}

// onListenTimeout fires the implicit-failure RxResult when no matching
// transmission arrived before the listen window closed (spec.md Section
// 6: "or an implicit failure (no RxEnd before the listen timeout)").
func (s *Stub) onListenTimeout(now simclock.Time) {
	if !s.listening {
		return
	}
	onEnd := s.onEnd
	s.listening = false
	s.onEnd = nil
	onEnd(bleconn.RxResult{Failed: true})
}

// deliver is invoked on the receiving Stub once a peer transmission's
// airtime has elapsed. A transmission that arrives while this side is not
// listening, or on a mismatched channel/access-address, is silently lost
// -- the listener's own timeout still fires at its scheduled deadline.
func (s *Stub) deliver(now simclock.Time, rec bleconn.TxRecord) {
	if !s.listening {
		return
	}
	if rec.Channel != s.listenChannel || rec.AccessAddress != s.listenAA || rec.PHY != s.listenPHY {
		return
	}

	s.sched.Cancel(s.listenTimeout)
	onEnd := s.onEnd
	s.listening = false
	s.onEnd = nil

	crcFail, rssi, sinr := s.model.Sample(rec.Channel)
	pdu := rec.PDU
	if crcFail {
		corrupted := make([]byte, len(rec.PDU))
		copy(corrupted, rec.PDU)
		if n := len(corrupted); n > 0 {
			corrupted[n-1] ^= 0xFF
		}
		pdu = corrupted
	}

	onEnd(bleconn.RxResult{
		PDU:           pdu,
		RSSIdBm:       rssi,
		SINRdB:        sinr,
		AccessAddress: rec.AccessAddress,
		Channel:       rec.Channel,
		PHY:           rec.PHY,
		LLTimestamp:   rec.LLTimestamp,
		AppTimestamp:  rec.AppTimestamp,
	})
}
