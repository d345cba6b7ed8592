package simclock

import "container/heap"

// Time is an absolute simulated timestamp in microseconds since scenario
// start. spec.md Section 9: "Time is integer microseconds. Avoid
// floating-point timestamps."
type Time int64

// Duration is a simulated time span in microseconds.
type Duration int64

// Microseconds interval constants, mirroring the teacher's practice of
// naming interval constants instead of writing bare integer literals
// at call sites (internal/bfd/intervals.go).
const (
	Microsecond Duration = 1
	Millisecond          = 1000 * Microsecond
	Second               = 1000 * Millisecond
)

// CallbackFunc is invoked by the scheduler when its scheduled time arrives.
// now is the simulated time at which the callback fires -- always equal to
// the timestamp it was scheduled for, never later (spec.md Section 4.1:
// "invokes them at their scheduled time (not later)").
type CallbackFunc func(now Time)

// EntryID identifies a scheduled entry for cancellation.
type EntryID uint64

// entry is one scheduled (time, callback) pair. period is zero for a
// one-shot entry; a nonzero period causes RunUntil to reinsert the entry
// at time+period after it fires.
type entry struct {
	at        Time
	seq       uint64
	period    Duration
	fn        CallbackFunc
	id        EntryID
	cancelled bool
}

// entryHeap is a min-heap ordered by (at, seq). The seq tie-break gives
// FIFO ordering between entries scheduled for the same timestamp (spec.md
// Section 4.1: "Order between same-timestamp entries is FIFO by
// insertion"; Section 9 resolves the PHY-overlap ambiguity the same way).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Scheduler is the discrete-event core: a monotonic microsecond clock plus
// a priority queue of pending callbacks. It is single-threaded and
// cooperative (spec.md Section 5): callers drive progress exclusively
// through RunUntil, never through goroutines or real timers.
type Scheduler struct {
	heap    entryHeap
	byID    map[EntryID]*entry
	now     Time
	nextSeq uint64
	nextID  EntryID
}

// NewScheduler creates a scheduler whose clock starts at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{
		byID: make(map[EntryID]*entry),
	}
}

// Now returns the simulated time of the most recently processed entry (or
// zero before the first RunUntil call).
func (s *Scheduler) Now() Time { return s.now }

// Len returns the number of pending (non-cancelled) entries.
func (s *Scheduler) Len() int { return len(s.byID) }

// Schedule registers fn to run at the absolute time at. If period is
// nonzero, fn is reinserted at at+period, at+2*period, ... each time it
// fires, until cancelled. Returns an EntryID usable with Cancel.
func (s *Scheduler) Schedule(at Time, period Duration, fn CallbackFunc) EntryID {
	s.nextID++
	id := s.nextID
	e := &entry{at: at, seq: s.nextSeq, period: period, fn: fn, id: id}
	s.nextSeq++
	heap.Push(&s.heap, e)
	s.byID[id] = e
	return id
}

// After schedules fn to run once, delay microseconds after the current
// clock time.
func (s *Scheduler) After(delay Duration, fn CallbackFunc) EntryID {
	return s.Schedule(s.now+Time(delay), 0, fn)
}

// Cancel marks the entry as cancelled. A cancelled periodic entry is not
// reinserted after its next (already-queued) firing; a cancelled one-shot
// entry that has not yet fired becomes a no-op when popped. Cancelling an
// unknown or already-fired one-shot id is a no-op (spec.md Section 5:
// "pending scheduled callbacks for that FSM become no-ops").
func (s *Scheduler) Cancel(id EntryID) {
	e, ok := s.byID[id]
	if !ok {
		return
	}
	e.cancelled = true
	delete(s.byID, id)
}

// RunUntil pops and invokes every entry scheduled at or before tEnd, in
// non-decreasing timestamp order (ties broken FIFO by insertion), then
// returns. Periodic entries are reinserted at time+period. The scheduler's
// clock (Now) is advanced to each entry's own timestamp as it fires, and
// left at tEnd once the queue is exhausted up to that point -- this keeps
// Now() monotonically non-decreasing across calls, the invariant spec.md
// Section 8 requires ("Scheduler monotonicity: popped timestamps are
// non-decreasing").
func (s *Scheduler) RunUntil(tEnd Time) {
	for s.heap.Len() > 0 && s.heap[0].at <= tEnd {
		e := heap.Pop(&s.heap).(*entry)
		if e.cancelled {
			continue
		}
		s.now = e.at
		e.fn(e.at)
		if e.period > 0 && !e.cancelled {
			e.at += Time(e.period)
			e.seq = s.nextSeq
			s.nextSeq++
			heap.Push(&s.heap, e)
		} else {
			delete(s.byID, e.id)
		}
	}
	if tEnd > s.now {
		s.now = tEnd
	}
}
