package bleconn

import "github.com/dantte-lp/blesim/internal/simclock"

// pendingChannelMap holds an in-flight channel-map-update indication
// (spec.md Section 4.9) between the moment it is sent/received and the
// moment it commits at its instant.
type pendingChannelMap struct {
	Map     UsedChannelMap
	Instant uint16
}

// Context is the mutable per-connection state (spec.md Section 3,
// "Connection Context"). A Connection (session.go) owns exactly one of
// these and mutates it as the FSM advances.
//
// Reference: internal/bfd/session.go's sessionState struct -- a flat bag
// of mutable FSM fields owned by one session and touched only from its
// own goroutine/callback.
type Context struct {
	State State

	SN   bool
	NESN bool

	LastTxPayload   []byte
	LastTxTimestamp simclock.Time
	// InFlightAppTimestamp is the application-layer timestamp attached to
	// the payload currently occupying LastTxPayload, carried again on each
	// retransmission of it. RTT is computed from RoundTripStart instead.
	InFlightAppTimestamp simclock.Time

	SupervisionDeadline simclock.Time

	TxMoreData   bool
	RxMoreData   bool
	PHYRxFailed  bool
	ModelTIFS    bool

	EventCounter uint16

	ConsecutiveCRCFails int

	RoundTripStart simclock.Time

	// Classifier-coordination flags (spec.md Section 3).
	ChannelsClassified bool
	ClassificationSent bool
	ChannelUpdateAck   bool
	UpdateInProgress   bool

	Pending *pendingChannelMap

	UsedChannels UsedChannelMap
	CurrentChannel uint8

	SelectNewChannel bool
}

// MoreData is the disjunction `tx_more_data OR rx_more_data` (spec.md
// Section 3).
func (c *Context) MoreData() bool {
	return c.TxMoreData || c.RxMoreData
}

// NewContext builds the initial mutable context for a connection that has
// not yet started its first event (spec.md Section 3 "Lifecycle": "the
// context begins in Sleep (a pre-event counter of -1)").
func NewContext(used UsedChannelMap) *Context {
	return &Context{
		State:        StateSleep,
		UsedChannels: used,
		EventCounter: 0xFFFF, // wraps to 0 on the first increment, modeling counter -1.
	}
}
