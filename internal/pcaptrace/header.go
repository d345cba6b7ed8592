package pcaptrace

import (
	"encoding/binary"

	"github.com/dantte-lp/blesim/internal/bleconn"
)

// Direction identifies which side of a connection emitted the captured
// packet (spec.md Section 6 flags layout: "direction (3 bits)").
type Direction uint8

const (
	DirectionCentralToPeripheral Direction = 0b010
	DirectionPeripheralToCentral Direction = 0b110
	DirectionObserver            Direction = 0b011
)

// codingIndicator values for LE Coded PHY (spec.md Section 6: "PHY-mode
// (2 bits: ... coded=01 with LE500K coding-indicator=10 and LE125K=00)").
const (
	codingIndicatorLE500K = 0b10
	codingIndicatorLE125K = 0b00
)

// phyModeBits encodes bleconn.PHYMode into the 2-bit PHY-mode field
// (spec.md Section 6: "LE1M=00, LE2M=10, coded=01").
func phyModeBits(m bleconn.PHYMode) uint16 {
	switch m {
	case bleconn.LE1M:
		return 0b00
	case bleconn.LE2M:
		return 0b10
	case bleconn.LE500K, bleconn.LE125K:
		return 0b01
	default:
		return 0b11 // "other"
	}
}

// isCoded reports whether m is one of the LE Coded PHY sub-rates, which
// carry a coding indicator byte in both the header and the body.
func isCoded(m bleconn.PHYMode) bool {
	return m == bleconn.LE500K || m == bleconn.LE125K
}

// PHYHeader is the synthetic PHY header prepended to every packet record
// (spec.md Section 6): "channel(8) | signal_power_i8 | noise_power_i8 |
// aa_offenses(8) | access_address(32) | flags(16) | [coding_indicator(8)?]".
//
// Encryption and MIC handling are out of scope (spec.md Section 1
// Non-goals); the Decrypted and MICChecked/MICValid flag bits are always
// written zero, but still occupy their wire position for layout
// compatibility with a real sniffer's capture format.
type PHYHeader struct {
	Channel    uint8
	SignalDBm  int8
	NoiseDBm   int8
	AAOffenses uint8
	AccessAddr uint32

	Whitened         bool
	SignalPresent    bool
	NoisePresent     bool
	ReferenceAAValid bool
	AAOffensesValid  bool
	RFChannelAliased bool
	Direction        Direction
	CRCChecked       bool
	CRCPassed        bool
	PHYMode          bleconn.PHYMode
}

// codingIndicator returns the coding-indicator byte for h's PHY mode, and
// whether the mode carries one at all (spec.md Section 6: "[coding_
// indicator(8)?]" -- present only for LE Coded PHY).
func (h PHYHeader) codingIndicator() (value uint8, present bool) {
	switch h.PHYMode {
	case bleconn.LE500K:
		return codingIndicatorLE500K, true
	case bleconn.LE125K:
		return codingIndicatorLE125K, true
	default:
		return 0, false
	}
}

// flags packs the 16-bit flag field (spec.md Section 6):
//
//	bit0      whitened
//	bit1      signal-power-present
//	bit2      noise-power-present
//	bit3      decrypted (always 0)
//	bit4      reference-AA-valid
//	bit5      AA-offenses-valid
//	bit6      RF-channel-aliased
//	bits7-9   direction (3 bits)
//	bit10     CRC-checked
//	bit11     CRC-passed
//	bits12-13 MIC-checked (2 bits, always 0)
//	bits14-15 PHY-mode (2 bits)
func (h PHYHeader) flags() uint16 {
	var f uint16
	if h.Whitened {
		f |= 1 << 0
	}
	if h.SignalPresent {
		f |= 1 << 1
	}
	if h.NoisePresent {
		f |= 1 << 2
	}
	if h.ReferenceAAValid {
		f |= 1 << 4
	}
	if h.AAOffensesValid {
		f |= 1 << 5
	}
	if h.RFChannelAliased {
		f |= 1 << 6
	}
	f |= (uint16(h.Direction) & 0b111) << 7
	if h.CRCChecked {
		f |= 1 << 10
	}
	if h.CRCPassed {
		f |= 1 << 11
	}
	f |= phyModeBits(h.PHYMode) << 14
	return f
}

// BuildRecord assembles one capture record: the synthetic PHY header
// followed by the body of access_address ‖ [coding_indicator] ‖
// ll_pdu_bits (spec.md Section 6).
func BuildRecord(h PHYHeader, llPDU []byte) []byte {
	ci, coded := h.codingIndicator()

	headerLen := 10
	bodyLen := 4 + len(llPDU)
	if coded {
		headerLen++
		bodyLen++
	}

	buf := make([]byte, headerLen+bodyLen)

	buf[0] = h.Channel
	buf[1] = byte(h.SignalDBm)
	buf[2] = byte(h.NoiseDBm)
	buf[3] = h.AAOffenses
	binary.BigEndian.PutUint32(buf[4:8], h.AccessAddr)
	binary.BigEndian.PutUint16(buf[8:10], h.flags())

	off := 10
	if coded {
		buf[off] = ci
		off++
	}

	binary.BigEndian.PutUint32(buf[off:off+4], h.AccessAddr)
	off += 4
	if coded {
		buf[off] = ci
		off++
	}
	copy(buf[off:], llPDU)

	return buf
}
