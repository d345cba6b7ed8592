package classifier

import (
	"testing"

	"github.com/dantte-lp/blesim/internal/events"
)

func recv(channel uint8, success bool) events.PacketReceptionEnded {
	return events.PacketReceptionEnded{Channel: channel, Success: success}
}

func TestBaselineMinReceptionsFloor(t *testing.T) {
	b := NewBaseline(WithMinReceptions(4), WithThreshold(40))
	for i := 0; i < 3; i++ {
		b.HandleReception(recv(10, false))
	}

	var updated []uint8
	b.OnUpdate = func(good []uint8) { updated = good }
	b.ClassifyPass()

	for _, c := range updated {
		if c == 10 {
			return
		}
	}
	t.Fatalf("channel 10 should remain good with only 3 outcomes, got %v", updated)
}

func TestBaselineMarksOverThresholdBad(t *testing.T) {
	b := NewBaseline(WithMinReceptions(4), WithThreshold(40), WithPreferredMinGood(2))
	for i := 0; i < 10; i++ {
		b.HandleReception(recv(5, false))
	}

	var updated []uint8
	b.OnUpdate = func(good []uint8) { updated = good }
	b.ClassifyPass()

	for _, c := range updated {
		if c == 5 {
			t.Fatalf("channel 5 should have been marked bad, got %v", updated)
		}
	}
}

func TestBaselineEnforcesPreferredMinimumGood(t *testing.T) {
	b := NewBaseline(WithMinReceptions(4), WithThreshold(1), WithPreferredMinGood(2))
	for c := 0; c < 37; c++ {
		for i := 0; i < 10; i++ {
			b.HandleReception(recv(uint8(c), false))
		}
	}

	var updated []uint8
	b.OnUpdate = func(good []uint8) { updated = good }
	b.ClassifyPass()

	if len(updated) != 37 {
		t.Fatalf("expected all channels restored good when below preferred minimum, got %d", len(updated))
	}
}
