// Package simclock implements the discrete-event scheduler that drives the
// whole simulator: a monotonic microsecond clock and a priority queue of
// (time, callback) entries (spec.md Section 4.1).
//
// No component downstream of this package may block on real I/O, sleep on
// wall-clock time, or spin a goroutine to represent simulated time passing
// (spec.md Section 5). Every suspension point is explicit: a callback
// returns the absolute future microsecond timestamp at which it next wants
// to run, and the scheduler reinserts it.
package simclock
