package commands

import "github.com/dantte-lp/blesim/internal/simclock"

// periodicTrafficSource implements node.TrafficSource with a fixed-size
// payload emitted once per interval, the simplest concrete generator
// satisfying spec.md Section 6's "next(now) -> Option<(payload,
// timestamp)>" contract. A scenario that wants no generated application
// traffic (link-layer-only exchange) simply omits traffic_interval_ms.
type periodicTrafficSource struct {
	payloadSize int
	interval    simclock.Duration
	next        simclock.Time
}

func newPeriodicTrafficSource(payloadSize int, interval simclock.Duration) *periodicTrafficSource {
	if payloadSize <= 0 {
		payloadSize = 20
	}
	return &periodicTrafficSource{payloadSize: payloadSize, interval: interval}
}

// Next implements node.TrafficSource: yields at most one payload per
// call, at the interval boundary, then reports none until the next tick
// reaches the following boundary.
func (s *periodicTrafficSource) Next(now simclock.Time) ([]byte, simclock.Time, bool) {
	if s.interval <= 0 || now < s.next {
		return nil, 0, false
	}
	payload := make([]byte, s.payloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	ts := now
	s.next = now + simclock.Time(s.interval)
	return payload, ts, true
}
