package commands

import (
	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/pcaptrace"
	"github.com/dantte-lp/blesim/internal/phystub"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// tracingPHY wraps one endpoint's phystub.Stub with a PCAP capture
// stream: every outgoing transmission is mirrored into the node's
// capture file before being handed to the underlying Stub. Listen is
// promoted unchanged from the embedded Stub -- only the transmitting
// side of a packet's airtime is ever captured, matching a real sniffer's
// "hear what went over the air" vantage point.
type tracingPHY struct {
	*phystub.Stub
	writer    *pcaptrace.Writer
	direction pcaptrace.Direction
}

// Transmit implements bleconn.PHY, shadowing the embedded Stub's method.
func (t *tracingPHY) Transmit(now simclock.Time, rec bleconn.TxRecord) {
	h := pcaptrace.PHYHeader{
		Channel:       rec.Channel,
		AccessAddr:    rec.AccessAddress,
		Direction:     t.direction,
		PHYMode:       rec.PHY,
		ReferenceAAValid: true,
	}
	_ = t.writer.WritePacket(now, h, rec.PDU)
	t.Stub.Transmit(now, rec)
}
