package bleconn

import (
	"errors"
	"testing"

	"github.com/dantte-lp/blesim/internal/simclock"
)

func validConfig(t *testing.T) *ConnectionConfig {
	t.Helper()
	used, err := NewUsedChannelMap([]uint8{0, 1, 2})
	if err != nil {
		t.Fatalf("NewUsedChannelMap: %v", err)
	}
	return &ConnectionConfig{
		Role:                RoleCentral,
		AccessAddress:       0x487647F2,
		HopIncrement:        7,
		InstantOffset:       6,
		InitialUsedChannels: used,
		PeripheralCount:     1,
		MaxPacketDuration:   400 * simclock.Microsecond,
		ConnectionInterval:  10 * simclock.Millisecond,
	}
}

func TestConnectionConfigValidateAccepts(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestConnectionConfigRejectsUnknownRole(t *testing.T) {
	cfg := validConfig(t)
	cfg.Role = 0
	if err := cfg.Validate(); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestConnectionConfigRejectsTooSmallUsedSet(t *testing.T) {
	cfg := validConfig(t)
	cfg.InitialUsedChannels, _ = NewUsedChannelMap([]uint8{0})
	if err := cfg.Validate(); !errors.Is(err, ErrUsedChannelSetTooSmall) {
		t.Fatalf("expected ErrUsedChannelSetTooSmall, got %v", err)
	}
}

func TestConnectionConfigIntervalBoundary(t *testing.T) {
	cfg := validConfig(t)
	minInterval := 2 * (cfg.MaxPacketDuration + TIFSMicros*simclock.Microsecond) * simclock.Duration(cfg.PeripheralCount)
	// Round up to the nearest 0.625ms tick so the boundary itself is valid.
	ticks := (minInterval + intervalGranularity - 1) / intervalGranularity
	cfg.ConnectionInterval = ticks * intervalGranularity

	if err := cfg.Validate(); err != nil {
		t.Fatalf("interval exactly at the minimum threshold must be accepted: %v", err)
	}

	cfg.ConnectionInterval -= intervalGranularity
	if err := cfg.Validate(); err == nil {
		t.Fatal("interval one tick below minimum must be rejected")
	}
}

func TestConnectionConfigRejectsNonMultipleInterval(t *testing.T) {
	cfg := validConfig(t)
	cfg.ConnectionInterval = 10*simclock.Millisecond + 1
	if err := cfg.Validate(); !errors.Is(err, ErrIntervalNotMultiple) {
		t.Fatalf("expected ErrIntervalNotMultiple, got %v", err)
	}
}

func TestValidatePreferredMinimumGoodBounds(t *testing.T) {
	if err := ValidatePreferredMinimumGood(1); err == nil {
		t.Fatal("expected error for preferred minimum good below 2")
	}
	if err := ValidatePreferredMinimumGood(NumDataChannels + 1); err == nil {
		t.Fatal("expected error for preferred minimum good above NumDataChannels")
	}
	if err := ValidatePreferredMinimumGood(2); err != nil {
		t.Fatalf("expected 2 to be valid, got %v", err)
	}
}
