package bleconn

import (
	"github.com/dantte-lp/blesim/internal/events"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// ConnDiscriminator is the opaque connection identifier used on the event
// bus and in traces, analogous to the teacher's BFD session discriminator.
type ConnDiscriminator uint32

// Connection is the stateful driver of one BLE connection's link layer,
// generalizing the teacher's session.go (a timer-driven FSM that
// transmits/listens and reacts to the discrete-event scheduler) from
// BFD's four-state control-packet exchange to the BLE connection-event
// flow of spec.md Sections 4.3-4.5.
type Connection struct {
	Discriminator ConnDiscriminator

	cfg   *ConnectionConfig
	ctx   *Context
	queue *TxQueue

	sched *simclock.Scheduler
	bus   *events.Bus
	phy   PHY

	// OnTerminate is invoked once, at most, when the connection drops to
	// Standby (supervision timeout or failed channel-map-update
	// acknowledgement), so the owning node can remove it from its active
	// set (spec.md Section 3 "Lifecycle", Section 7.1 item 3).
	OnTerminate func(reason string)

	// eventTxCount/eventRxCount/eventCRCFailed accumulate across the
	// packet exchanges of the connection event currently in progress, for
	// ConnectionEventEnded (spec.md Section 4.3 step 1, Section 6).
	eventTxCount   int
	eventRxCount   int
	eventCRCFailed int

	// eventTxTimeMicros/eventIdleTimeMicros/eventListenTimeMicros/
	// eventSleepTimeMicros accumulate the same event's time-in-state split,
	// for spec.md Section 3's Connection Statistics.
	eventTxTimeMicros     int64
	eventIdleTimeMicros   int64
	eventListenTimeMicros int64
	eventSleepTimeMicros  int64

	// sleeping/sleepSince track an in-progress Sleep span so its duration
	// can be folded into eventSleepTimeMicros once the next event boundary
	// (or termination) ends it.
	sleeping   bool
	sleepSince simclock.Time

	terminated bool
}

// NewConnection builds a Connection in the Sleep state, ready to be
// started with Start.
func NewConnection(discr ConnDiscriminator, cfg *ConnectionConfig, sched *simclock.Scheduler, bus *events.Bus, phy PHY) *Connection {
	return &Connection{
		Discriminator: discr,
		cfg:           cfg,
		ctx:           NewContext(cfg.InitialUsedChannels),
		queue:         NewTxQueue(DefaultQueueCapacity),
		sched:         sched,
		bus:           bus,
		phy:           phy,
	}
}

// Enqueue offers an application payload to the connection's Tx queue
// (spec.md Section 4.6).
func (c *Connection) Enqueue(payload []byte, now simclock.Time) error {
	return c.queue.Push(payload, now)
}

// Context exposes the mutable connection state for read access by the
// node orchestrator and classifiers.
func (c *Connection) Context() *Context { return c.ctx }

// Active reports whether the connection is still in the active set.
func (c *Connection) Active() bool { return !c.terminated }

// RequestChannelMapUpdate asks the central side of this connection to
// begin the channel-map-update procedure (spec.md Section 4.9). It is a
// no-op on a peripheral connection.
func (c *Connection) RequestChannelMapUpdate(newMap UsedChannelMap) bool {
	if c.cfg.Role != RoleCentral {
		return false
	}
	return RequestChannelMapUpdate(c.ctx, newMap)
}

// Start arms the connection's first event boundary.
func (c *Connection) Start(now simclock.Time) {
	c.ctx.SupervisionDeadline = now + simclock.Time(c.cfg.SupervisionTimeout)
	c.scheduleNextEvent(now)
}

// scheduleNextEvent computes event_start = (event_count+1)*interval +
// offset (spec.md Section 4.3 step 1) and schedules the event boundary
// callback.
func (c *Connection) scheduleNextEvent(now simclock.Time) {
	eventStart := simclock.Time(uint32(c.ctx.EventCounter+1))*simclock.Time(c.cfg.ConnectionInterval) + simclock.Time(c.cfg.ConnectionOffset)
	if eventStart < now {
		eventStart = now
	}
	c.sched.Schedule(eventStart, 0, c.onEventBoundary)
	c.sched.Schedule(c.ctx.SupervisionDeadline, 0, c.onSupervisionCheck)
}

// onEventBoundary runs spec.md Section 4.3 step 1: increments the event
// counter, fires ConnectionEventEnded for the event that just finished,
// resets the consecutive-CRC-fail count, selects a new channel, and
// begins the first exchange of the new event.
func (c *Connection) onEventBoundary(now simclock.Time) {
	if c.terminated {
		return
	}

	if c.sleeping {
		c.eventSleepTimeMicros += int64(now - c.sleepSince)
		c.sleeping = false
	}

	if c.ctx.EventCounter != 0xFFFF || c.eventTxCount != 0 || c.eventRxCount != 0 {
		c.bus.PublishConnectionEventEnded(events.ConnectionEventEnded{
			At:               now,
			ConnDiscr:        uint32(c.Discriminator),
			Counter:          c.ctx.EventCounter,
			Channel:          c.ctx.CurrentChannel,
			TxPackets:        c.eventTxCount,
			RxPackets:        c.eventRxCount,
			CRCFailed:        c.eventCRCFailed,
			TxTimeMicros:     c.eventTxTimeMicros,
			IdleTimeMicros:   c.eventIdleTimeMicros,
			ListenTimeMicros: c.eventListenTimeMicros,
			SleepTimeMicros:  c.eventSleepTimeMicros,
		})
	}
	c.eventTxCount, c.eventRxCount, c.eventCRCFailed = 0, 0, 0
	c.eventTxTimeMicros, c.eventIdleTimeMicros, c.eventListenTimeMicros, c.eventSleepTimeMicros = 0, 0, 0, 0

	c.ctx.EventCounter++
	c.ctx.ConsecutiveCRCFails = 0
	c.ctx.CurrentChannel = SelectChannel(c.cfg.HopIncrement, c.ctx.UsedChannels, c.ctx.EventCounter)

	nextStart := simclock.Time(uint32(c.ctx.EventCounter+1))*simclock.Time(c.cfg.ConnectionInterval) + simclock.Time(c.cfg.ConnectionOffset)
	if nextStart < now {
		nextStart = now
	}
	c.sched.Schedule(nextStart, 0, c.onEventBoundary)

	if UpdateTimedOut(c.ctx) {
		c.terminate("channel-map-update acknowledgement timeout")
		return
	}
	if committed, ok := CommitIfDue(c.ctx); ok {
		c.bus.PublishChannelMapUpdated(events.ChannelMapUpdated{
			At:           now,
			ConnDiscr:    uint32(c.Discriminator),
			PeerName:     c.cfg.PeerName,
			PeerID:       c.cfg.PeerID,
			UsedChannels: committed.Channels(),
		})
	}

	if c.cfg.Role == RoleCentral {
		c.beginTransmit(now)
	} else {
		c.beginReceive(now)
	}
}

// beginTransmit implements the Transmit half of spec.md Section 4.3 steps
// 3-4: build and send a packet, hold Transmit for its airtime, then move
// to Receive after TIFS.
func (c *Connection) beginTransmit(now simclock.Time) {
	c.ctx.State = StateTransmit

	out := SelectOutgoingPacket(c.ctx, c.queue, c.cfg.InstantOffset, pendingMapOf(c.ctx))
	c.applyOutgoingSelection(now, out)
	// SelectOutgoingPacket already dequeued the payload being sent (if any),
	// so Len() here reflects what is left queued behind it (spec.md Section
	// 3: "tx_more_data: true iff the Tx queue is non-empty").
	c.ctx.TxMoreData = c.queue.Len() > 0

	pdu := &PDU{LLID: outgoingLLID(out), SN: c.ctx.SN, NESN: c.ctx.NESN, MD: c.ctx.MoreData(), Payload: out.Payload}
	buf := make([]byte, MaxPacketSize)
	n, err := MarshalPDU(pdu, c.cfg.CRCSeed, buf)
	if err != nil {
		return
	}

	duration := packetDuration(n, c.cfg.PHY)
	c.eventTxTimeMicros += int64(duration)
	c.ctx.RoundTripStart = now
	c.ctx.LastTxTimestamp = now

	c.bus.PublishPacketTransmissionStarted(events.PacketTransmissionStarted{
		At:           now,
		ConnDiscr:    uint32(c.Discriminator),
		Channel:      c.ctx.CurrentChannel,
		PacketLen:    n,
		IsRetransmit: out.Kind == PacketRetransmit,
		IsControl:    out.Kind == PacketControl,
		IsEmpty:      out.Kind == PacketEmpty,
	})
	c.phy.Transmit(now, TxRecord{
		AccessAddress:  c.cfg.AccessAddress,
		Channel:        c.ctx.CurrentChannel,
		PHY:            c.cfg.PHY,
		PDU:            buf[:n],
		LLTimestamp:    now,
		AppTimestamp:   out.AppTimestamp,
		PacketDuration: duration,
		PacketLenBytes: n,
	})
	c.eventTxCount++

	c.sched.After(duration, func(txEnd simclock.Time) {
		c.eventIdleTimeMicros += int64(TIFSMicros)
		c.sched.After(TIFSMicros*simclock.Microsecond, c.beginReceive)
	})
}

// beginReceive implements the Receive half of spec.md Section 4.3 steps
// 4-5: request the PHY to listen on the current channel.
func (c *Connection) beginReceive(now simclock.Time) {
	if c.terminated {
		return
	}
	c.ctx.State = StateReceive
	maxDur := simclock.Duration(c.cfg.MaxPacketDuration)
	c.eventListenTimeMicros += int64(maxDur)
	c.phy.Listen(now, c.ctx.CurrentChannel, c.cfg.AccessAddress, c.cfg.PHY, maxDur, func(r RxResult) {
		c.onRxEnd(now+simclock.Time(maxDur), r)
	})
}

// onRxEnd implements spec.md Section 4.3 step 5-6: process the received
// PDU (or mark phy_rx_failed on timeout), then evaluate the continuation
// predicate.
func (c *Connection) onRxEnd(now simclock.Time, r RxResult) {
	if c.terminated {
		return
	}
	if r.Failed {
		c.ctx.PHYRxFailed = true
	} else {
		c.ctx.PHYRxFailed = false
		var pdu PDU
		crcFailed, err := UnmarshalPDU(r.PDU, c.cfg.CRCSeed, &pdu)
		if err == nil {
			outcome := ProcessReception(c.ctx, c.cfg, now, ReceivedPDU{
				AccessAddress: r.AccessAddress,
				Channel:       r.Channel,
				PHY:           r.PHY,
				RSSI:          r.RSSIdBm,
				SINR:          r.SINRdB,
				Payload:       pdu.Payload,
				AppTimestamp:  r.AppTimestamp,
				SN:            pdu.SN,
				NESN:          pdu.NESN,
				LLID:          pdu.LLID,
				CRCFailed:     crcFailed,
			})
			c.eventRxCount++
			if outcome.CRCFailed {
				c.eventCRCFailed++
			} else {
				// pdu's header fields are only trustworthy once the CRC
				// checks out (pdu.go's UnmarshalPDU doc comment); the
				// CRC-failure branch inside ProcessReception already forced
				// RxMoreData true, which this must not clobber.
				c.ctx.RxMoreData = pdu.MD
			}
			c.bus.PublishPacketReceptionEnded(events.PacketReceptionEnded{
				At:           now,
				ConnDiscr:    uint32(c.Discriminator),
				Channel:      r.Channel,
				Success:      !outcome.CRCFailed && !outcome.AddressMismatch,
				CRCFailed:    outcome.CRCFailed,
				AddrMismatch: outcome.AddressMismatch,
				Duplicate:    outcome.Duplicate,
				Acknowledged: outcome.Acknowledged,
				Delivered:    outcome.Delivered != nil,
				Latency:      outcome.Latency,
				RTT:          outcome.RTT,
				RSSI:         r.RSSIdBm,
				SINR:         r.SINRdB,
				PayloadLen:   len(pdu.Payload),
			})
		}
	}

	if c.ctx.ConsecutiveCRCFails > 1 {
		c.ctx.State = StateSleep
		c.sleeping, c.sleepSince = true, now
		return
	}

	c.eventIdleTimeMicros += int64(TIFSMicros)
	c.sched.After(TIFSMicros*simclock.Microsecond, func(idleEnd simclock.Time) {
		remaining := c.timeRemainingInEvent(idleEnd)
		// A peripheral answers every packet it receives, so the central's
		// packet is acknowledged within the same exchange; a central
		// transmits again only when the continuation predicate holds.
		respond := c.cfg.Role == RolePeripheral && !c.ctx.PHYRxFailed
		if respond || ContinuationPredicate(remaining, simclock.Duration(c.cfg.ConnectionOffset), c.cfg.MaxPacketDuration, c.ctx) {
			// After any Receive, continuing the event means transmitting
			// next; beginTransmit's own completion chain returns to
			// Receive automatically (spec.md Section 4.3: central
			// alternates Tx->Rx->Tx..., peripheral Rx->Tx->Rx...).
			c.beginTransmit(idleEnd)
			return
		}
		c.ctx.State = StateSleep
		c.sleeping, c.sleepSince = true, idleEnd
	})
}

// timeRemainingInEvent approximates the active-period budget left in the
// current connection event (spec.md Section 4.5).
func (c *Connection) timeRemainingInEvent(now simclock.Time) simclock.Duration {
	eventStart := simclock.Time(uint32(c.ctx.EventCounter))*simclock.Time(c.cfg.ConnectionInterval) + simclock.Time(c.cfg.ConnectionOffset)
	elapsed := now - eventStart
	remaining := simclock.Duration(c.cfg.ActivePeriod) - simclock.Duration(elapsed)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// onSupervisionCheck fires at the connection's supervision deadline. The
// deadline may have moved forward (a valid reception resets it); if so,
// this is a stale check and simply re-arms.
func (c *Connection) onSupervisionCheck(now simclock.Time) {
	if c.terminated {
		return
	}
	if now < c.ctx.SupervisionDeadline {
		c.sched.Schedule(c.ctx.SupervisionDeadline, 0, c.onSupervisionCheck)
		return
	}
	c.terminate("supervision timeout")
}

func (c *Connection) terminate(reason string) {
	if c.terminated {
		return
	}
	c.terminated = true
	c.ctx.State = StateStandby
	if c.OnTerminate != nil {
		c.OnTerminate(reason)
	}
}

func (c *Connection) applyOutgoingSelection(now simclock.Time, out OutgoingPacket) {
	switch out.Kind {
	case PacketRetransmit:
		return
	case PacketControl:
		c.ctx.LastTxPayload = out.Payload
		c.ctx.InFlightAppTimestamp = now
		// The indication is now in flight: from here it is resent only as a
		// retransmission until acknowledged, so the instant stays fixed.
		c.ctx.ChannelsClassified = false
		// The instant is only known once the control PDU is actually
		// selected for transmission (it is relative to the current event
		// counter); propagate it onto the pending entry chanmap.go's
		// RequestChannelMapUpdate created without one, so the central's
		// own CommitIfDue/UpdateTimedOut check the real instant.
		if c.ctx.Pending != nil {
			c.ctx.Pending.Instant = out.Instant
		}
	case PacketData:
		c.ctx.LastTxPayload = out.Payload
		c.ctx.InFlightAppTimestamp = out.AppTimestamp
	case PacketEmpty:
		c.ctx.LastTxPayload = nil
	}
}

func outgoingLLID(out OutgoingPacket) LLID {
	switch out.Kind {
	case PacketControl:
		return LLIDControl
	case PacketEmpty:
		return LLIDEmpty
	default:
		return LLIDData
	}
}

func pendingMapOf(ctx *Context) UsedChannelMap {
	if ctx.Pending == nil {
		return ctx.UsedChannels
	}
	return ctx.Pending.Map
}

// packetDuration estimates on-air time from encoded length and PHY mode,
// used only to size the Transmit hold before TIFS; exact PHY timing
// tables are the PHY stub's concern (spec.md Section 1: "out of scope...
// baseband bit-level PDU encode/decode is assumed available").
func packetDuration(lengthBytes int, phy PHYMode) simclock.Duration {
	bitsPerSymbolUs := map[PHYMode]float64{
		LE1M:   8.0,
		LE2M:   4.0,
		LE500K: 16.0,
		LE125K: 64.0,
	}[phy]
	if bitsPerSymbolUs == 0 {
		bitsPerSymbolUs = 8.0
	}
	return simclock.Duration(float64(lengthBytes)*bitsPerSymbolUs) * simclock.Microsecond
}
