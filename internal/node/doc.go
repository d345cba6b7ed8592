// Package node implements the Node Orchestrator of spec.md Section 4.10:
// it wires one traffic source and one external PHY stub per connection to
// the link layer (internal/bleconn), and owns that connection's
// statistics collector (internal/stats).
//
// spec.md Section 4.10 describes a tick-based `run(now)` driven by the
// caller; this implementation collapses that into the scheduler's own
// callback chain (internal/simclock) -- each connection already
// self-schedules its next wake-up through the FSM (spec.md Section 5:
// "Every suspension point is explicit"), so the node's only independent
// periodic duty is pumping the traffic source into each connection's
// queue.
package node
