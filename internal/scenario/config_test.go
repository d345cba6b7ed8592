package scenario_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/scenario"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp scenario: %v", err)
	}
	return path
}

func TestDefaultConfigPassesValidation(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	if err := scenario.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func validScenarioYAML() string {
	return `
nodes:
  - name: "central-1"
    role: "central"
  - name: "peripheral-1"
    role: "peripheral"
connections:
  - central_node: "central-1"
    peripheral_node: "peripheral-1"
    access_address: "8E89BED6"
    hop_increment: 7
    connection_interval_ms: 10
    active_period_ms: 10
    supervision_timeout_ms: 5000
    instant_offset: 6
    initial_used_channels: [0, 1, 2, 3, 4, 5, 6, 7, 8, 9]
    peripheral_count: 1
    max_packet_duration_us: 400
classifier:
  kind: "baseline"
  preferred_minimum_good: 2
`
}

func TestLoadValidScenario(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, validScenarioYAML())
	cfg, err := scenario.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if len(cfg.Connections) != 1 {
		t.Fatalf("Connections = %d, want 1", len(cfg.Connections))
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Nodes = []scenario.NodeSpec{{Name: "n1", Role: "observer"}}

	err := scenario.Validate(cfg)
	if !errors.Is(err, bleconn.ErrUnknownRole) {
		t.Errorf("Validate() = %v, want wrapping ErrUnknownRole", err)
	}
}

func TestValidateRejectsAccessAddressCollision(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Nodes = []scenario.NodeSpec{
		{Name: "c1", Role: "central"},
		{Name: "p1", Role: "peripheral"},
		{Name: "p2", Role: "peripheral"},
	}
	conn := scenario.ConnectionSpec{
		CentralNode:         "c1",
		AccessAddressHex:    "8E89BED6",
		ConnectionIntervalMs: 10,
		InstantOffset:       6,
		InitialUsedChannels: []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		PeripheralCount:     1,
		MaxPacketDurationUs: 400,
	}
	conn1, conn2 := conn, conn
	conn1.PeripheralNode = "p1"
	conn2.PeripheralNode = "p2"
	cfg.Connections = []scenario.ConnectionSpec{conn1, conn2}

	err := scenario.Validate(cfg)
	if !errors.Is(err, scenario.ErrAccessAddressCollision) {
		t.Errorf("Validate() = %v, want wrapping ErrAccessAddressCollision", err)
	}
}

func TestValidateRejectsTooSmallUsedChannelSet(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Nodes = []scenario.NodeSpec{
		{Name: "c1", Role: "central"},
		{Name: "p1", Role: "peripheral"},
	}
	cfg.Connections = []scenario.ConnectionSpec{{
		CentralNode:          "c1",
		PeripheralNode:       "p1",
		AccessAddressHex:     "8E89BED6",
		ConnectionIntervalMs: 10,
		InstantOffset:        6,
		InitialUsedChannels:  []uint8{0, 1},
		PeripheralCount:      1,
		MaxPacketDurationUs:  400,
	}}

	if err := scenario.Validate(cfg); err == nil {
		t.Error("Validate() = nil, want error for too-small used channel set")
	}
}

func TestValidateRejectsIntervalTooShortForPeripheralCount(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Nodes = []scenario.NodeSpec{
		{Name: "c1", Role: "central"},
		{Name: "p1", Role: "peripheral"},
	}
	cfg.Connections = []scenario.ConnectionSpec{{
		CentralNode:          "c1",
		PeripheralNode:       "p1",
		AccessAddressHex:     "8E89BED6",
		ConnectionIntervalMs: 0.625,
		InstantOffset:        6,
		InitialUsedChannels:  []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		PeripheralCount:      4,
		MaxPacketDurationUs:  400,
	}}

	if !errors.Is(scenario.Validate(cfg), bleconn.ErrIntervalTooShort) {
		t.Error("Validate() did not report ErrIntervalTooShort")
	}
}

func TestValidateRejectsNonMultipleScanInterval(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Nodes = []scenario.NodeSpec{{Name: "c1", Role: "central", ScanIntervalMs: 1.1}}

	if !errors.Is(scenario.Validate(cfg), bleconn.ErrIntervalNotMultiple) {
		t.Error("Validate() did not report ErrIntervalNotMultiple for scan interval")
	}
}

func TestValidateRejectsPreferredMinimumGoodOutOfRange(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Classifier.PreferredMinimumGood = 1

	if !errors.Is(scenario.Validate(cfg), bleconn.ErrPreferredMinGoodOutOfRange) {
		t.Error("Validate() did not report ErrPreferredMinGoodOutOfRange")
	}
}

func TestValidateRejectsUnknownTraceExtension(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Trace.Enabled = true
	cfg.Trace.Extension = ".pcapx"

	if !errors.Is(scenario.Validate(cfg), scenario.ErrUnknownTraceExtension) {
		t.Error("Validate() did not report ErrUnknownTraceExtension")
	}
}

func TestValidateRejectsUnknownClassifierKind(t *testing.T) {
	t.Parallel()

	cfg := scenario.DefaultConfig()
	cfg.Classifier.Kind = "roulette"

	if !errors.Is(scenario.Validate(cfg), scenario.ErrUnknownClassifierKind) {
		t.Error("Validate() did not report ErrUnknownClassifierKind")
	}
}
