package bleconn

import "github.com/dantte-lp/blesim/internal/simclock"

// TxRecord is one outgoing transmission handed to the PHY Tx stub
// (spec.md Section 6, "PHY Tx stub input").
type TxRecord struct {
	AccessAddress   uint32
	Channel         uint8
	PHY             PHYMode
	TxPowerDBm      float64
	PDU             []byte
	LLTimestamp     simclock.Time
	AppTimestamp    simclock.Time
	PacketDuration  simclock.Duration
	PacketLenBytes  int
}

// RxResult is the outcome of a Listen call: either a decoded reception
// (spec.md Section 6, "PHY Rx stub event", RxEnd) or an implicit timeout
// (Failed set, no RxEnd before the listen deadline).
type RxResult struct {
	Failed        bool
	PDU           []byte
	RSSIdBm       float64
	SINRdB        float64
	AccessAddress uint32
	Channel       uint8
	PHY           PHYMode
	LLTimestamp   simclock.Time
	AppTimestamp  simclock.Time
}

// PHY is the external PHY transmit/receive stub contract (spec.md
// Section 6, Section 1: "Baseband bit-level PDU encode/decode is assumed
// available as a library primitive"). Implementations (internal/phystub)
// own the actual channel model; Connection only ever sees this interface.
type PHY interface {
	// Transmit serializes and sends rec starting at now. The PHY stub is
	// responsible for any airtime bookkeeping; Connection does not wait
	// for a callback from Transmit.
	Transmit(now simclock.Time, rec TxRecord)

	// Listen requests reception on channel for up to maxDuration starting
	// at now, matching accessAddress and phyMode. The PHY stub must
	// invoke onEnd exactly once, at or before now+maxDuration, with
	// either a decoded RxResult or Failed=true if nothing arrived in
	// time (spec.md Section 6: "RxEnd... or an implicit failure").
	Listen(now simclock.Time, channel uint8, accessAddress uint32, phyMode PHYMode, maxDuration simclock.Duration, onEnd func(RxResult))
}
