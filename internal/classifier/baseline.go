package classifier

import (
	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/events"
)

// outcome is the tri-state cell of a baseline ring buffer (spec.md
// Section 3, "Reception Status Buffer").
type outcome uint8

const (
	cellEmpty outcome = iota
	cellSuccess
	cellFailure
)

const (
	// DefaultRingSize is the baseline classifier's per-channel ring
	// buffer size (spec.md Section 4.7: "default 20").
	DefaultRingSize = 20
	// DefaultMinReceptions is the minimum non-empty cell count required
	// before a channel is eligible for classification (spec.md Section
	// 4.7: "min_receptions 4").
	DefaultMinReceptions = 4
	// DefaultThreshold is the PER percentage above which a good channel
	// is marked bad (spec.md Section 4.7: "threshold 40").
	DefaultThreshold = 40.0
	// DefaultPreferredMinGood is the minimum good-channel count enforced
	// after every classification pass (spec.md Section 4.7: "preferred
	// minimum 2 for LE").
	DefaultPreferredMinGood = 2
)

// BaselineOption configures a Baseline classifier at construction,
// following the teacher's functional-options convention
// (internal/config, cmd/gobfd/main.go's option constructors).
type BaselineOption func(*Baseline)

// WithRingSize overrides DefaultRingSize.
func WithRingSize(n int) BaselineOption {
	return func(b *Baseline) { b.ringSize = n }
}

// WithMinReceptions overrides DefaultMinReceptions.
func WithMinReceptions(n int) BaselineOption {
	return func(b *Baseline) { b.minReceptions = n }
}

// WithThreshold overrides DefaultThreshold.
func WithThreshold(pct float64) BaselineOption {
	return func(b *Baseline) { b.threshold = pct }
}

// WithPreferredMinGood overrides DefaultPreferredMinGood.
func WithPreferredMinGood(n int) BaselineOption {
	return func(b *Baseline) { b.preferredMinGood = n }
}

// Baseline is the PER-based channel classifier of spec.md Section 4.7.
type Baseline struct {
	ringSize         int
	minReceptions    int
	threshold        float64
	preferredMinGood int

	ring   [bleconn.NumDataChannels][]outcome
	cursor [bleconn.NumDataChannels]int
	good   [bleconn.NumDataChannels]bool

	// OnUpdate is invoked with the good-channel set (ascending) whenever
	// ClassifyPass produces one. The caller wires this to the link
	// layer's RequestChannelMapUpdate (spec.md Section 4.7: "hand it to
	// the link layer via update_channel_list").
	OnUpdate func(goodChannels []uint8)
}

// NewBaseline builds a Baseline classifier with all channels initially
// good.
func NewBaseline(opts ...BaselineOption) *Baseline {
	b := &Baseline{
		ringSize:         DefaultRingSize,
		minReceptions:    DefaultMinReceptions,
		threshold:        DefaultThreshold,
		preferredMinGood: DefaultPreferredMinGood,
	}
	for _, opt := range opts {
		opt(b)
	}
	for c := range b.ring {
		b.ring[c] = make([]outcome, b.ringSize)
		b.good[c] = true
	}
	return b
}

// HandleReception records one reception outcome at its channel's write
// cursor and advances it (spec.md Section 4.7: "append Success/Failure at
// the write cursor and advance it (modulo B)"). Wire this directly to
// events.Bus.OnPacketReceptionEnded.
func (b *Baseline) HandleReception(ev events.PacketReceptionEnded) {
	c := ev.Channel
	if int(c) >= bleconn.NumDataChannels {
		return
	}
	o := cellFailure
	if ev.Success {
		o = cellSuccess
	}
	b.ring[c][b.cursor[c]] = o
	b.cursor[c] = (b.cursor[c] + 1) % b.ringSize
}

// ClassifyPass runs one classification sweep (spec.md Section 4.7,
// "Classification pass"), wire this to a periodic scheduler callback
// (default every 2s).
func (b *Baseline) ClassifyPass() {
	for c := 0; c < bleconn.NumDataChannels; c++ {
		if !b.good[c] {
			continue
		}
		n, failures := b.stats(c)
		if n < b.minReceptions {
			continue
		}
		per := float64(failures) / float64(n) * 100
		if per > b.threshold {
			b.good[c] = false
		}
	}

	if b.countGood() < b.preferredMinGood {
		for c := range b.good {
			b.good[c] = true
			for i := range b.ring[c] {
				b.ring[c][i] = cellEmpty
			}
			b.cursor[c] = 0
		}
	}

	if b.OnUpdate != nil {
		b.OnUpdate(b.goodChannels())
	}
}

// stats returns the non-empty cell count and failure count for channel c.
func (b *Baseline) stats(c int) (n, failures int) {
	for _, cell := range b.ring[c] {
		switch cell {
		case cellSuccess:
			n++
		case cellFailure:
			n++
			failures++
		}
	}
	return n, failures
}

func (b *Baseline) countGood() int {
	n := 0
	for _, g := range b.good {
		if g {
			n++
		}
	}
	return n
}

// GoodChannels returns the current good-channel classification, for
// introspection by internal/console and internal/metrics.
func (b *Baseline) GoodChannels() []uint8 { return b.goodChannels() }

func (b *Baseline) goodChannels() []uint8 {
	out := make([]uint8, 0, bleconn.NumDataChannels)
	for c, g := range b.good {
		if g {
			out = append(out, uint8(c))
		}
	}
	return out
}
