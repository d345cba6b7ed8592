package bleconn

import "github.com/dantte-lp/blesim/internal/simclock"

// PacketKind classifies the outgoing packet chosen by SelectOutgoingPacket
// (spec.md Section 4.3, "Packet selection").
type PacketKind uint8

const (
	// PacketRetransmit resends the cached last-transmitted payload.
	PacketRetransmit PacketKind = iota
	// PacketControl carries a Channel Map Indication.
	PacketControl
	// PacketData dequeues a fresh application payload.
	PacketData
	// PacketEmpty carries no payload (LLIDEmpty).
	PacketEmpty
)

// OutgoingPacket is the pure decision produced by SelectOutgoingPacket: what
// to send this turn, decoupled from the timing/scheduling glue that
// actually transmits it (session.go).
type OutgoingPacket struct {
	Kind        PacketKind
	Payload     []byte
	AppTimestamp simclock.Time
	// Instant is set only for PacketControl.
	Instant uint16
	Map     UsedChannelMap
}

// SelectOutgoingPacket implements spec.md Section 4.3's packet-selection
// priority: retransmit buffer > control PDU > queued application PDU >
// empty PDU.
//
// Reference: internal/bfd/fsm.go's pure `transition(state, event) state`
// table lookup -- generalized here to a priority chain over mutable
// context fields rather than a literal map, since BLE packet selection is
// a priority order, not a (state,event) pair lookup.
func SelectOutgoingPacket(ctx *Context, queue *TxQueue, instantOffset uint16, pendingMap UsedChannelMap) OutgoingPacket {
	if len(ctx.LastTxPayload) > 0 {
		return OutgoingPacket{Kind: PacketRetransmit, Payload: ctx.LastTxPayload, AppTimestamp: ctx.InFlightAppTimestamp}
	}

	if ctx.ChannelsClassified || (ctx.ClassificationSent && !ctx.ChannelUpdateAck) {
		instant := ctx.EventCounter + instantOffset
		return OutgoingPacket{
			Kind:    PacketControl,
			Payload: EncodeChannelMapIndicationBody(pendingMap, instant),
			Instant: instant,
			Map:     pendingMap,
		}
	}

	if payload, ts, ok := queue.PopWithTimestamp(); ok {
		return OutgoingPacket{Kind: PacketData, Payload: payload, AppTimestamp: ts}
	}

	return OutgoingPacket{Kind: PacketEmpty}
}

// ContinuationPredicate implements spec.md Section 4.5: a connection event
// continues to a further packet exchange iff all of its four conditions
// hold.
func ContinuationPredicate(remainingInEvent, connectionOffset, maxPacketDuration simclock.Duration, ctx *Context) bool {
	budget := (remainingInEvent + connectionOffset) > 2*(maxPacketDuration+TIFSMicros*simclock.Microsecond)
	return budget && ctx.MoreData() && ctx.ConsecutiveCRCFails <= 1 && !ctx.PHYRxFailed
}

// ReceivedPDU is the raw frame handed to ProcessReception (spec.md
// Section 4.4's "raw received PDU frame").
type ReceivedPDU struct {
	AccessAddress uint32
	Channel       uint8
	PHY           PHYMode
	RSSI          float64
	SINR          float64
	Payload       []byte
	AppTimestamp  simclock.Time
	SN            bool
	NESN          bool
	LLID          LLID
	CRCFailed     bool
}

// ReceptionOutcome is what ProcessReception decided, for the caller to
// publish as events.PacketReceptionEnded and feed to the statistics
// collector.
type ReceptionOutcome struct {
	AddressMismatch bool
	CRCFailed       bool
	Delivered       []byte
	Latency         simclock.Duration
	Duplicate       bool
	Acknowledged    bool
	RTT             simclock.Duration
	IsChannelMapInd bool
}

// ProcessReception implements spec.md Section 4.4 steps 1-5, mutating ctx
// in place and returning the outcome for step 6 (event emission) and
// statistics bookkeeping, which the caller (session.go) owns.
func ProcessReception(ctx *Context, cfg *ConnectionConfig, now simclock.Time, pdu ReceivedPDU) ReceptionOutcome {
	var out ReceptionOutcome

	if pdu.AccessAddress != cfg.AccessAddress {
		ctx.PHYRxFailed = true
		out.AddressMismatch = true
		return out
	}

	if pdu.CRCFailed {
		ctx.RxMoreData = true
		ctx.ConsecutiveCRCFails++
		out.CRCFailed = true
		return out
	}

	ctx.ConsecutiveCRCFails = 0
	ctx.SupervisionDeadline = now + simclock.Time(cfg.SupervisionTimeout)

	if pdu.SN == ctx.NESN {
		ctx.NESN = !ctx.NESN
		if len(pdu.Payload) > 0 {
			out.Delivered = pdu.Payload
			out.Latency = simclock.Duration(now - pdu.AppTimestamp)
		}
	} else {
		out.Duplicate = true
	}

	if pdu.NESN != ctx.SN {
		ctx.LastTxPayload = nil
		ctx.SN = !ctx.SN
		out.RTT = simclock.Duration(now - ctx.RoundTripStart)
		out.Acknowledged = true
		if ctx.ClassificationSent {
			ctx.ChannelUpdateAck = true
		}
	}

	if pdu.LLID == LLIDControl {
		if m, instant, err := DecodeChannelMapIndicationBody(pdu.Payload); err == nil {
			ctx.Pending = &pendingChannelMap{Map: m, Instant: instant}
			ctx.ChannelUpdateAck = true
			out.IsChannelMapInd = true
		}
	}

	return out
}
