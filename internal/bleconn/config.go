package bleconn

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/blesim/internal/simclock"
)

// Configuration-time errors (spec.md Section 7.1). None of these are
// runtime-recoverable: a scenario that fails validation must fail the
// build, not start.
var (
	ErrUnknownRole                = errors.New("unknown connection role")
	ErrAccessAddressCollision     = errors.New("access address collision on one central")
	ErrIntervalTooShort           = errors.New("connection interval too short for peripheral count")
	ErrIntervalNotMultiple        = errors.New("interval is not a multiple of 0.625ms")
	ErrPreferredMinGoodOutOfRange = errors.New("preferred minimum good channel count out of [2,36+1] range")
	ErrInstantOffsetOutOfRange    = errors.New("instant offset must be in [6,255]")
)

// intervalGranularity is the 0.625 ms tick BLE requires connection and
// advertising/scan intervals to be multiples of (spec.md Section 7.1).
const intervalGranularity = 625 * simclock.Microsecond

// ConnectionConfig is the immutable (until updated by the channel-map
// procedure) per-connection configuration shared by both endpoints
// (spec.md Section 3). Central and peripheral share every field except
// Role.
//
// Reference: internal/bfd/session.go's SessionConfig -- a plain struct of
// value fields plus a Validate method, populated once at construction and
// never mutated afterward.
type ConnectionConfig struct {
	Role Role

	AccessAddress uint32
	HopIncrement  uint8
	CRCSeed       uint32
	PHY           PHYMode

	ConnectionInterval simclock.Duration
	ActivePeriod       simclock.Duration
	ConnectionOffset   simclock.Duration
	SupervisionTimeout simclock.Duration
	InstantOffset      uint16

	InitialUsedChannels UsedChannelMap

	PeerName string
	PeerID   uint32

	// PeripheralCount is the number of peripherals attached to the
	// central driving this connection's interval (spec.md Section 3
	// invariant: "Connection interval >= 2 x (max_packet_duration + TIFS)
	// x peripheral_count").
	PeripheralCount int
	// MaxPacketDuration bounds the longest packet (Tx or Rx) this
	// connection will exchange, used for the same invariant.
	MaxPacketDuration simclock.Duration
}

// Validate checks the configuration-time invariants of spec.md Section 3
// and the error catalogue of Section 7.1. It returns the first violation
// found, wrapped with context.
func (c *ConnectionConfig) Validate() error {
	switch c.Role {
	case RoleCentral, RolePeripheral:
	default:
		return fmt.Errorf("role %d: %w", c.Role, ErrUnknownRole)
	}

	if c.InstantOffset < 6 || c.InstantOffset > 255 {
		return fmt.Errorf("instant offset %d: %w", c.InstantOffset, ErrInstantOffsetOutOfRange)
	}

	if err := c.InitialUsedChannels.Validate(); err != nil {
		return err
	}

	if c.PeripheralCount < 1 {
		c.PeripheralCount = 1
	}
	minInterval := 2 * (c.MaxPacketDuration + TIFSMicros*simclock.Microsecond) *
		simclock.Duration(c.PeripheralCount)
	if c.ConnectionInterval < minInterval {
		return fmt.Errorf("interval %dus below minimum %dus for %d peripherals: %w",
			c.ConnectionInterval, minInterval, c.PeripheralCount, ErrIntervalTooShort)
	}

	if c.ConnectionInterval%intervalGranularity != 0 {
		return fmt.Errorf("interval %dus: %w", c.ConnectionInterval, ErrIntervalNotMultiple)
	}

	return nil
}

// ValidatePreferredMinimumGood checks the classifier-configuration bound
// from spec.md Section 7.1 ("preferred-minimum-good outside [2, 37]").
// It lives here rather than in the classifier package because the bound
// is expressed against NumDataChannels, a bleconn constant.
func ValidatePreferredMinimumGood(n int) error {
	if n < 2 || n > NumDataChannels {
		return fmt.Errorf("preferred minimum good %d: %w", n, ErrPreferredMinGoodOutOfRange)
	}
	return nil
}

// ValidateIntervalMultiple checks that an advertising/scan interval (any
// duration required to align to the 0.625 ms BLE tick) is a multiple of
// that granularity (spec.md Section 7.1).
func ValidateIntervalMultiple(d simclock.Duration) error {
	if d%intervalGranularity != 0 {
		return fmt.Errorf("interval %dus: %w", d, ErrIntervalNotMultiple)
	}
	return nil
}
