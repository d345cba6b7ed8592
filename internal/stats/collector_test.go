package stats

import (
	"testing"

	"github.com/dantte-lp/blesim/internal/events"
	"github.com/dantte-lp/blesim/internal/simclock"
)

func TestCollectorZeroLossScenario(t *testing.T) {
	bus := events.NewBus()
	col := NewCollector()
	col.Attach(bus, 1)

	bus.PublishPacketTransmissionStarted(events.PacketTransmissionStarted{ConnDiscr: 1, PacketLen: 60})
	bus.PublishPacketTransmissionStarted(events.PacketTransmissionStarted{ConnDiscr: 1, PacketLen: 60})
	bus.PublishPacketReceptionEnded(events.PacketReceptionEnded{ConnDiscr: 1, Acknowledged: true, Delivered: true, PayloadLen: 50})
	bus.PublishPacketReceptionEnded(events.PacketReceptionEnded{ConnDiscr: 1, Acknowledged: true, Delivered: true, PayloadLen: 50})

	snap := col.Snapshot(simclock.Second)
	if snap.TransmittedPackets != 2 {
		t.Fatalf("TransmittedPackets = %d, want 2", snap.TransmittedPackets)
	}
	if snap.AcknowledgedPackets != 2 {
		t.Fatalf("AcknowledgedPackets = %d, want 2", snap.AcknowledgedPackets)
	}
	if snap.PacketLossRatio != 0 {
		t.Fatalf("PacketLossRatio = %f, want 0 for zero-loss scenario", snap.PacketLossRatio)
	}
}

func TestCollectorIgnoresOtherConnections(t *testing.T) {
	bus := events.NewBus()
	col := NewCollector()
	col.Attach(bus, 1)

	bus.PublishPacketTransmissionStarted(events.PacketTransmissionStarted{ConnDiscr: 2, PacketLen: 60})

	snap := col.Snapshot(simclock.Second)
	if snap.TransmittedPackets != 0 {
		t.Fatalf("expected events for other connections to be ignored, got %d", snap.TransmittedPackets)
	}
}

func TestCollectorCRCFailedExcludedFromDuplicateAndAck(t *testing.T) {
	bus := events.NewBus()
	col := NewCollector()
	col.Attach(bus, 1)

	bus.PublishPacketReceptionEnded(events.PacketReceptionEnded{ConnDiscr: 1, CRCFailed: true})

	snap := col.Snapshot(simclock.Second)
	if snap.CRCFailedPackets != 1 {
		t.Fatalf("CRCFailedPackets = %d, want 1", snap.CRCFailedPackets)
	}
	if snap.AcknowledgedPackets != 0 || snap.DuplicatePackets != 0 {
		t.Fatal("a CRC-failed reception must not count as acknowledged or duplicate")
	}
}
