package bleconn

import (
	"errors"
	"fmt"
)

// ErrUsedChannelSetTooSmall indicates a used-channel set with fewer than
// two members (spec.md Section 3: "Used-channel set size >= 2 at all
// times"; Section 7.1).
var ErrUsedChannelSetTooSmall = errors.New("used-channel set must contain at least 2 channels")

// ErrChannelOutOfRange indicates a channel index outside 0..36.
var ErrChannelOutOfRange = errors.New("channel index must be in 0..36")

// UsedChannelMap is the 37-bit used-data-channel bitmap (spec.md Section 3,
// Section 4.2). Bit c (0..36) set means channel c is usable.
type UsedChannelMap uint64

// NewUsedChannelMap builds a map from a list of channel indices, validating
// each is in range. Duplicate indices are idempotent.
func NewUsedChannelMap(channels []uint8) (UsedChannelMap, error) {
	var m UsedChannelMap
	for _, c := range channels {
		if c >= NumDataChannels {
			return 0, fmt.Errorf("channel %d: %w", c, ErrChannelOutOfRange)
		}
		m = m.Set(c)
	}
	return m, nil
}

// Set returns a copy of m with channel c marked used.
func (m UsedChannelMap) Set(c uint8) UsedChannelMap {
	return m | (1 << c)
}

// Clear returns a copy of m with channel c marked unused.
func (m UsedChannelMap) Clear(c uint8) UsedChannelMap {
	return m &^ (1 << c)
}

// IsUsed reports whether channel c is marked used.
func (m UsedChannelMap) IsUsed(c uint8) bool {
	return m&(1<<c) != 0
}

// Count returns the number of used channels.
func (m UsedChannelMap) Count() int {
	n := 0
	for c := uint8(0); c < NumDataChannels; c++ {
		if m.IsUsed(c) {
			n++
		}
	}
	return n
}

// Channels returns the used channel indices, sorted ascending.
func (m UsedChannelMap) Channels() []uint8 {
	out := make([]uint8, 0, NumDataChannels)
	for c := uint8(0); c < NumDataChannels; c++ {
		if m.IsUsed(c) {
			out = append(out, c)
		}
	}
	return out
}

// NthUsed returns the n-th used channel (0-indexed, ascending order). The
// caller must ensure 0 <= n < m.Count(); out-of-range n returns 0.
func (m UsedChannelMap) NthUsed(n int) uint8 {
	i := 0
	for c := uint8(0); c < NumDataChannels; c++ {
		if m.IsUsed(c) {
			if i == n {
				return c
			}
			i++
		}
	}
	return 0
}

// Equal reports whether m and other contain the same used channels.
func (m UsedChannelMap) Equal(other UsedChannelMap) bool {
	return m == other
}

// Validate enforces the spec.md Section 3 invariant that a used-channel
// set must contain at least two channels.
func (m UsedChannelMap) Validate() error {
	if m.Count() < 2 {
		return ErrUsedChannelSetTooSmall
	}
	return nil
}

// SelectChannel implements Algorithm #1 of the BLE Core Specification
// (spec.md Section 4.2): given the hop increment, the current used-channel
// map, and the connection event counter, deterministically returns the
// next data-channel index to use.
//
// The function is stateless: the unmapped channel index is derived
// directly from hopIncrement and eventCounter (equivalent to repeatedly
// adding hopIncrement modulo NumDataChannels once per event, starting from
// channel 0 at counter 0), so identical inputs always produce identical
// output and used-channel updates take effect on the very next invocation
// (spec.md Section 4.2: "deterministic so that identical seeds reproduce
// identical traces... Used-channel updates take effect on the next
// invocation").
func SelectChannel(hopIncrement uint8, used UsedChannelMap, eventCounter uint16) uint8 {
	unmapped := uint8((uint32(hopIncrement) * uint32(eventCounter)) % NumDataChannels)

	if used.IsUsed(unmapped) {
		return unmapped
	}

	n := used.Count()
	if n == 0 {
		// No used channels configured: degenerate case, never reached when
		// the Section 3 invariant (>=2 used channels) holds. Fall back to
		// the unmapped index itself rather than panic.
		return unmapped
	}

	remapIdx := int(unmapped) % n
	return used.NthUsed(remapIdx)
}
