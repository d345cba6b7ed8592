package classifier

import (
	"testing"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/events"
)

func allChannels(t *testing.T) bleconn.UsedChannelMap {
	t.Helper()
	chans := make([]uint8, bleconn.NumDataChannels)
	for c := range chans {
		chans[c] = uint8(c)
	}
	m, err := bleconn.NewUsedChannelMap(chans)
	if err != nil {
		t.Fatalf("NewUsedChannelMap: %v", err)
	}
	return m
}

func TestEAFHCooldownDelaysFirstPush(t *testing.T) {
	e := NewEAFH(allChannels(t))
	var pushes int
	e.OnUpdate = func([]uint8) { pushes++ }

	for i := uint16(1); i <= 7; i++ {
		e.HandleEventEnd(events.ConnectionEventEnded{Counter: i, Channel: 0})
		if pushes != 0 {
			t.Fatalf("event %d: expected no push before the cooldown elapses, got %d pushes", i, pushes)
		}
	}

	e.HandleEventEnd(events.ConnectionEventEnded{Counter: 8, Channel: 0})
	if pushes != 1 {
		t.Fatalf("event 8: expected exactly one push once the cooldown elapsed, got %d", pushes)
	}
}

func TestEAFHFallbackKeepsAtLeastTwoChannels(t *testing.T) {
	e := NewEAFH(allChannels(t))
	e.HandleEventEnd(events.ConnectionEventEnded{Counter: 1, Channel: 0})

	if n := e.countUsed(); n < 2 {
		t.Fatalf("fallback must keep at least 2 used channels, got %d", n)
	}
}

func TestEAFHHighPDRChannelStaysIncluded(t *testing.T) {
	e := NewEAFH(allChannels(t))
	for i := uint16(1); i <= 5; i++ {
		e.HandleTransmission(events.PacketTransmissionStarted{Channel: 3})
		e.HandleReception(events.PacketReceptionEnded{Channel: 3, Success: true})
		e.HandleEventEnd(events.ConnectionEventEnded{Counter: i, Channel: 3})
	}

	if !e.channels[3].used {
		t.Fatalf("channel with consistently full PDR should remain used")
	}
}
