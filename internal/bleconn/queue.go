package bleconn

import (
	"errors"

	"github.com/dantte-lp/blesim/internal/simclock"
)

// ErrQueueFull indicates Push was called against a full queue (spec.md
// Section 4.6: "enqueue fails ... when full").
var ErrQueueFull = errors.New("tx queue full")

// queuedPayload pairs an application payload with the timestamp it was
// enqueued at, so latency can later be measured from acceptance to
// delivery (spec.md Section 4.6, Section 3: "Queue: Bounded FIFO of
// (payload, timestamp) per connection").
type queuedPayload struct {
	payload   []byte
	timestamp simclock.Time
}

// DefaultQueueCapacity is the default bound on queued application payloads
// (spec.md Section 4.6: "default capacity 32 payloads of <=251 bytes").
const DefaultQueueCapacity = 32

// TxQueue is the bounded per-connection application payload queue feeding
// the link layer's Transmit state (spec.md Section 4.6). It is a plain
// ring buffer, modeled on the teacher's fixed-capacity packet cache
// (internal/bfd/session.go) generalized from a single slot to N.
type TxQueue struct {
	buf      []queuedPayload
	head     int
	size     int
	cap      int
	overflow int
}

// NewTxQueue creates a queue with the given capacity. A non-positive
// capacity panics: it is a construction-time programmer error, not a
// runtime condition (spec.md Section 7.1 only lists validation errors for
// connection configuration, not for internal queue construction).
func NewTxQueue(capacity int) *TxQueue {
	if capacity <= 0 {
		panic("bleconn: TxQueue capacity must be positive")
	}
	return &TxQueue{buf: make([]queuedPayload, capacity), cap: capacity}
}

// Len returns the number of queued payloads.
func (q *TxQueue) Len() int { return q.size }

// Cap returns the queue's capacity.
func (q *TxQueue) Cap() int { return q.cap }

// Full reports whether the queue has reached capacity.
func (q *TxQueue) Full() bool { return q.size == q.cap }

// Empty reports whether the queue holds no payloads.
func (q *TxQueue) Empty() bool { return q.size == 0 }

// Overflow returns the count of Push calls rejected because the queue was
// full (spec.md Section 3: "Connection Statistics: queue-overflow count").
func (q *TxQueue) Overflow() int { return q.overflow }

// Push appends (payload, timestamp) to the tail of the queue. It returns
// ErrQueueFull and increments the overflow counter, without modifying the
// queue, if it is already at capacity.
func (q *TxQueue) Push(payload []byte, timestamp simclock.Time) error {
	if q.Full() {
		q.overflow++
		return ErrQueueFull
	}
	tail := (q.head + q.size) % q.cap
	q.buf[tail] = queuedPayload{payload: payload, timestamp: timestamp}
	q.size++
	return nil
}

// PopWithTimestamp removes and returns the payload and its enqueue
// timestamp from the head of the queue.
func (q *TxQueue) PopWithTimestamp() ([]byte, simclock.Time, bool) {
	if q.Empty() {
		return nil, 0, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = queuedPayload{}
	q.head = (q.head + 1) % q.cap
	q.size--
	return v.payload, v.timestamp, true
}
