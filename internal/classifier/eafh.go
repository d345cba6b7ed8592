package classifier

import (
	"sort"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/events"
)

// Algorithm constants from spec.md Section 4.8, preserved exactly so
// traces reproduce published results.
const (
	shortWindow        = 15
	longWindow         = 20
	exclusionThreshold = 0.95
	explorationWeight  = 2.0
	updateCooldown     = 6
	explorationNorm    = 200.0
)

// perChannelState is the eAFH per-channel bookkeeping of spec.md Section
// 3, "eAFH State".
type perChannelState struct {
	pdrShort     [shortWindow]float64
	pdrShortPos  int
	shortSum     float64
	pdrLong      [longWindow]float64
	pdrLongPos   int
	longSum      float64

	lastUseCnt int

	txsThisEvent  int
	acksThisEvent int

	exclusionEvent uint16
	used           bool
}

// EAFH is the enhanced channel classifier of spec.md Section 4.8.
type EAFH struct {
	channels [bleconn.NumDataChannels]perChannelState

	lastUpdateCnt int
	enforced      bleconn.UsedChannelMap

	// OnUpdate is invoked with the new candidate channel list whenever
	// the cooldown-gated push fires (spec.md Section 4.8 step 8). Wire
	// this to the link layer's RequestChannelMapUpdate.
	OnUpdate func(candidate []uint8)
}

// NewEAFH builds an EAFH classifier whose used set starts as the channels
// of initial.
func NewEAFH(initial bleconn.UsedChannelMap) *EAFH {
	e := &EAFH{enforced: initial}
	for c := range e.channels {
		e.channels[c].used = initial.IsUsed(uint8(c))
	}
	return e
}

// HandleTransmission counts one transmission on its channel toward the
// current connection event's PDR sample (spec.md Section 4.8 step 1).
// Wire this to events.Bus.OnPacketTransmissionStarted.
func (e *EAFH) HandleTransmission(ev events.PacketTransmissionStarted) {
	if int(ev.Channel) >= bleconn.NumDataChannels {
		return
	}
	e.channels[ev.Channel].txsThisEvent++
}

// HandleReception counts one acknowledged reception on its channel toward
// the current connection event's PDR sample. Wire this to
// events.Bus.OnPacketReceptionEnded.
func (e *EAFH) HandleReception(ev events.PacketReceptionEnded) {
	if !ev.Success || int(ev.Channel) >= bleconn.NumDataChannels {
		return
	}
	e.channels[ev.Channel].acksThisEvent++
}

// HandleEventEnd runs the full per-connection-event update of spec.md
// Section 4.8 steps 1-8. Wire this to events.Bus.OnConnectionEventEnded.
func (e *EAFH) HandleEventEnd(ev events.ConnectionEventEnded) {
	e.updatePDRWindows()
	e.updateUseCounters(int(ev.Channel))
	explore := e.explorationScores()
	leaky := e.leakyLoss()
	e.applyExclusion(ev.Counter, explore, leaky)
	e.applyFallback()

	if e.lastUpdateCnt > updateCooldown && e.candidateDiffersFromEnforced() {
		candidate := e.usedChannelsList()
		if e.OnUpdate != nil {
			e.OnUpdate(candidate)
		}
		m, _ := bleconn.NewUsedChannelMap(candidate)
		e.enforced = m
		e.lastUpdateCnt = 0
	} else {
		e.lastUpdateCnt++
	}
}

// updatePDRWindows implements step 1: compute per-channel PDR for the
// event just ended and insert it into both rings.
func (e *EAFH) updatePDRWindows() {
	for c := range e.channels {
		cs := &e.channels[c]
		var pdr float64
		if cs.txsThisEvent > 0 {
			pdr = float64(cs.acksThisEvent) / float64(cs.txsThisEvent)
		}

		cs.shortSum -= cs.pdrShort[cs.pdrShortPos]
		cs.pdrShort[cs.pdrShortPos] = pdr
		cs.shortSum += pdr
		cs.pdrShortPos = (cs.pdrShortPos + 1) % shortWindow

		cs.longSum -= cs.pdrLong[cs.pdrLongPos]
		cs.pdrLong[cs.pdrLongPos] = pdr
		cs.longSum += pdr
		cs.pdrLongPos = (cs.pdrLongPos + 1) % longWindow

		cs.txsThisEvent, cs.acksThisEvent = 0, 0
	}
}

// updateUseCounters implements step 2: zero the last-use counter for the
// channel used this event, increment every other channel's.
func (e *EAFH) updateUseCounters(usedChannel int) {
	for c := range e.channels {
		if c == usedChannel {
			e.channels[c].lastUseCnt = 0
		} else {
			e.channels[c].lastUseCnt++
		}
	}
}

// explorationScores implements step 3.
func (e *EAFH) explorationScores() [bleconn.NumDataChannels]float64 {
	var out [bleconn.NumDataChannels]float64
	for c := range e.channels {
		denom := float64(longWindow+1) - e.channels[c].longSum
		out[c] = (float64(e.channels[c].lastUseCnt) / denom) / explorationNorm
	}
	return out
}

// leakyLoss implements step 4. Interior channels average the long-window
// sums of both neighbours (c-1, c+1); endpoints use their single
// available neighbour. (Open question resolved in DESIGN.md: the literal
// spec text names only c-1 and c, which degenerates to no smoothing at
// all for an interior channel; averaging both neighbours matches the
// "smoothed neighbour-based loss" description of the state itself.)
func (e *EAFH) leakyLoss() [bleconn.NumDataChannels]float64 {
	var out [bleconn.NumDataChannels]float64
	for c := range e.channels {
		var neighbourMean float64
		switch {
		case c == 0:
			neighbourMean = e.channels[1].longSum
		case c == bleconn.NumDataChannels-1:
			neighbourMean = e.channels[c-1].longSum
		default:
			neighbourMean = (e.channels[c-1].longSum + e.channels[c+1].longSum) / 2
		}
		out[c] = -(1 - neighbourMean/longWindow)
	}
	return out
}

// applyExclusion implements steps 5-6.
func (e *EAFH) applyExclusion(eventCounter uint16, explore, leaky [bleconn.NumDataChannels]float64) {
	for c := range e.channels {
		cs := &e.channels[c]
		if cs.shortSum/shortWindow <= exclusionThreshold {
			cs.used = false
			cs.exclusionEvent = eventCounter
		}
		if explore[c]+explorationWeight*leaky[c] >= 1 {
			cs.used = true
		}
	}
}

// applyFallback implements step 7: top up the used set from the channels
// with the largest long_sum until it holds at least two members.
func (e *EAFH) applyFallback() {
	if e.countUsed() >= 2 {
		return
	}
	type ranked struct {
		channel int
		longSum float64
	}
	all := make([]ranked, bleconn.NumDataChannels)
	for c := range e.channels {
		all[c] = ranked{channel: c, longSum: e.channels[c].longSum}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].longSum > all[j].longSum })
	for _, r := range all {
		if e.countUsed() >= 2 {
			break
		}
		e.channels[r.channel].used = true
	}
}

func (e *EAFH) countUsed() int {
	n := 0
	for _, cs := range e.channels {
		if cs.used {
			n++
		}
	}
	return n
}

// GoodChannels returns the channels currently marked used (not excluded),
// for introspection by internal/console and internal/metrics.
func (e *EAFH) GoodChannels() []uint8 { return e.usedChannelsList() }

func (e *EAFH) usedChannelsList() []uint8 {
	out := make([]uint8, 0, bleconn.NumDataChannels)
	for c, cs := range e.channels {
		if cs.used {
			out = append(out, uint8(c))
		}
	}
	return out
}

func (e *EAFH) candidateDiffersFromEnforced() bool {
	m, err := bleconn.NewUsedChannelMap(e.usedChannelsList())
	if err != nil {
		return false
	}
	return !m.Equal(e.enforced)
}
