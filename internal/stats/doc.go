// Package stats implements the per-connection Connection Statistics of
// spec.md Section 3: raw counters fed by the link layer's observable
// events (internal/events), plus the derived metrics (loss ratio,
// throughput, average latency/RTT) computed on demand.
package stats
