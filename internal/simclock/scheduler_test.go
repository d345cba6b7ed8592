package simclock

import "testing"

func TestSchedulerFIFOSameTimestamp(t *testing.T) {
	s := NewScheduler()
	var order []int

	s.Schedule(100, 0, func(Time) { order = append(order, 1) })
	s.Schedule(100, 0, func(Time) { order = append(order, 2) })
	s.Schedule(100, 0, func(Time) { order = append(order, 3) })

	s.RunUntil(100)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSchedulerMonotonicNow(t *testing.T) {
	s := NewScheduler()
	var seen []Time

	s.Schedule(50, 0, func(now Time) { seen = append(seen, now) })
	s.Schedule(10, 0, func(now Time) { seen = append(seen, now) })
	s.Schedule(30, 0, func(now Time) { seen = append(seen, now) })

	s.RunUntil(1000)

	prev := Time(-1)
	for _, ts := range seen {
		if ts < prev {
			t.Fatalf("popped timestamps not monotonic: %v", seen)
		}
		prev = ts
	}
	if s.Now() != 1000 {
		t.Fatalf("Now() = %d, want 1000 after exhausting queue", s.Now())
	}
}

func TestSchedulerPeriodicReinsertion(t *testing.T) {
	s := NewScheduler()
	fireCount := 0

	s.Schedule(10, 10, func(Time) { fireCount++ })
	s.RunUntil(45)

	// Fires at 10, 20, 30, 40 -> 4 times.
	if fireCount != 4 {
		t.Fatalf("fireCount = %d, want 4", fireCount)
	}
}

func TestSchedulerCancelStopsOneShot(t *testing.T) {
	s := NewScheduler()
	fired := false

	id := s.Schedule(100, 0, func(Time) { fired = true })
	s.Cancel(id)
	s.RunUntil(200)

	if fired {
		t.Fatal("cancelled one-shot entry fired")
	}
}

func TestSchedulerCancelStopsPeriodic(t *testing.T) {
	s := NewScheduler()
	fireCount := 0
	var id EntryID

	id = s.Schedule(10, 10, func(Time) {
		fireCount++
		if fireCount == 2 {
			s.Cancel(id)
		}
	})
	s.RunUntil(1000)

	if fireCount != 2 {
		t.Fatalf("fireCount = %d, want 2 (self-cancel on second firing)", fireCount)
	}
}

func TestSchedulerRunUntilDoesNotRunPastDeadline(t *testing.T) {
	s := NewScheduler()
	fired := false

	s.Schedule(101, 0, func(Time) { fired = true })
	s.RunUntil(100)

	if fired {
		t.Fatal("entry scheduled after tEnd fired early")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (entry still pending)", s.Len())
	}
}

func TestSchedulerAfterUsesCurrentClock(t *testing.T) {
	s := NewScheduler()
	s.Schedule(500, 0, func(Time) {})
	s.RunUntil(500)

	var fireAt Time
	s.After(20, func(now Time) { fireAt = now })
	s.RunUntil(600)

	if fireAt != 520 {
		t.Fatalf("fireAt = %d, want 520", fireAt)
	}
}
