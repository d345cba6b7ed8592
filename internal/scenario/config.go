package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// -------------------------------------------------------------------------
// Configuration structures (spec.md Section 6, "Scenario configuration
// surface")
// -------------------------------------------------------------------------

// Config holds the complete scenario configuration.
type Config struct {
	Seed            int64              `koanf:"seed"`
	DurationSeconds float64            `koanf:"duration_seconds"`
	Nodes           []NodeSpec         `koanf:"nodes"`
	Connections     []ConnectionSpec   `koanf:"connections"`
	Classifier      ClassifierSpec     `koanf:"classifier"`
	PathLoss        []PathLossEnvSpec  `koanf:"path_loss_environments"`
	Periodic        []PeriodicAction   `koanf:"periodic_actions"`
	Trace           TraceConfig        `koanf:"trace"`
	Log             LogConfig          `koanf:"log"`
	Metrics         MetricsConfig      `koanf:"metrics"`
}

// NodeSpec is one node's configuration contract (spec.md Section 6).
type NodeSpec struct {
	Name                 string  `koanf:"name"`
	ID                    uint32  `koanf:"id"`
	X                     float64 `koanf:"x"`
	Y                     float64 `koanf:"y"`
	Z                     float64 `koanf:"z"`
	Role                  string  `koanf:"role"`
	TxPowerDBm            float64 `koanf:"tx_power_dbm"`
	ReceiverSensitivity   float64 `koanf:"receiver_sensitivity"`
	NoiseFigure           float64 `koanf:"noise_figure"`
	ReceiverRangeM        float64 `koanf:"receiver_range_m"`
	InterferenceFidelity  bool    `koanf:"interference_fidelity"`
	// ScanIntervalMs is an optional BLE-tick-aligned housekeeping
	// interval (not behaviorally implemented -- spec.md Non-goals
	// exclude advertising/scanning roles -- but still validated against
	// the 0.625ms granularity, spec.md Section 7.1).
	ScanIntervalMs float64 `koanf:"scan_interval_ms"`
}

// ConnectionSpec is one connection's build-time configuration (spec.md
// Section 3, Section 6).
type ConnectionSpec struct {
	CentralNode         string   `koanf:"central_node"`
	PeripheralNode      string   `koanf:"peripheral_node"`
	AccessAddressHex    string   `koanf:"access_address"`
	HopIncrement        uint8    `koanf:"hop_increment"`
	PHY                 string   `koanf:"phy"`
	ConnectionIntervalMs float64 `koanf:"connection_interval_ms"`
	ActivePeriodMs      float64  `koanf:"active_period_ms"`
	ConnectionOffsetMs  float64  `koanf:"connection_offset_ms"`
	SupervisionTimeoutMs float64 `koanf:"supervision_timeout_ms"`
	InstantOffset       uint16   `koanf:"instant_offset"`
	InitialUsedChannels []uint8  `koanf:"initial_used_channels"`
	MaxPacketDurationUs int64    `koanf:"max_packet_duration_us"`
	PeripheralCount     int      `koanf:"peripheral_count"`
	// PathLossEnv names an entry in Config.PathLoss this connection's PHY
	// stub draws its loss model from. Empty selects the uniform default.
	PathLossEnv string `koanf:"path_loss_env"`

	// TrafficPayloadBytes and TrafficIntervalMs parameterize the default
	// fixed-size periodic generator cmd/blesim attaches to each side of
	// this connection when no richer traffic source is configured (spec.md
	// Section 6's lazy "next(now) -> Option<(payload, timestamp)>"
	// contract, concretely instantiated). Zero TrafficIntervalMs disables
	// generated traffic on this connection (link-layer-only exchange).
	TrafficPayloadBytes int     `koanf:"traffic_payload_bytes"`
	TrafficIntervalMs   float64 `koanf:"traffic_interval_ms"`
}

// ClassifierSpec selects and parameterizes the channel classifier
// (spec.md Section 6).
type ClassifierSpec struct {
	// Kind is "baseline" or "eafh".
	Kind                 string  `koanf:"kind"`
	Threshold            float64 `koanf:"threshold"`
	MinReceptions        int     `koanf:"min_receptions"`
	PreferredMinimumGood int     `koanf:"preferred_minimum_good"`
	RingSize             int     `koanf:"ring_size"`
	ClassifyEveryMs      float64 `koanf:"classify_every_ms"`
}

// PathLossEnvSpec describes an opaque path-loss/interference environment
// (spec.md Section 1: "Out of scope... the RF path-loss and antenna
// model... treated as an opaque module"). Params is passed through
// uninterpreted to whatever implementation the scenario wires in.
type PathLossEnvSpec struct {
	Name   string             `koanf:"name"`
	Kind   string             `koanf:"kind"`
	Params map[string]float64 `koanf:"params"`
}

// PeriodicAction is one scheduler-level periodic callback registration
// (spec.md Section 6: "list of periodic scheduler actions with (at,
// every, callback tag)").
type PeriodicAction struct {
	AtMs    float64 `koanf:"at_ms"`
	EveryMs float64 `koanf:"every_ms"`
	Tag     string  `koanf:"tag"`
}

// TraceConfig configures PCAP export (spec.md Section 6).
type TraceConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Directory string `koanf:"directory"`
	// Extension must be ".pcap" or ".pcapng" (spec.md Section 7.1:
	// "PCAP file extension unknown").
	Extension string `koanf:"extension"`
}

// LogConfig mirrors the teacher's internal/config.LogConfig.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig mirrors the teacher's internal/config.MetricsConfig.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DurationSeconds: 10,
		Classifier: ClassifierSpec{
			Kind:                 "baseline",
			Threshold:            40,
			MinReceptions:        4,
			PreferredMinimumGood: 2,
			RingSize:             20,
			ClassifyEveryMs:      2000,
		},
		Trace: TraceConfig{
			Extension: ".pcapng",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix names the environment-variable override namespace,
// BLESIM_<section>_<key> (mirroring the teacher's GOBFD_ convention).
const envPrefix = "BLESIM_"

// Load reads the scenario YAML at path, overlays BLESIM_ environment
// variables, merges on top of DefaultConfig(), and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structProviderFor(DefaultConfig()), nil); err != nil {
		return nil, fmt.Errorf("load scenario defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load scenario from %s: %w", path, err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal scenario config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate scenario from %s: %w", path, err)
	}
	return cfg, nil
}

func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// structProvider is a minimal koanf.Provider that re-reads a Config value
// as a map, used to seed defaults before the file/env layers overlay them.
type structProvider struct{ cfg *Config }

func (p structProvider) ReadBytes() ([]byte, error) { return nil, errors.New("not supported") }

func (p structProvider) Read() (map[string]any, error) {
	return map[string]any{
		"duration_seconds":                p.cfg.DurationSeconds,
		"classifier.kind":                 p.cfg.Classifier.Kind,
		"classifier.threshold":            p.cfg.Classifier.Threshold,
		"classifier.min_receptions":       p.cfg.Classifier.MinReceptions,
		"classifier.preferred_minimum_good": p.cfg.Classifier.PreferredMinimumGood,
		"classifier.ring_size":            p.cfg.Classifier.RingSize,
		"classifier.classify_every_ms":    p.cfg.Classifier.ClassifyEveryMs,
		"trace.extension":                 p.cfg.Trace.Extension,
		"log.level":                       p.cfg.Log.Level,
		"log.format":                      p.cfg.Log.Format,
		"metrics.addr":                    p.cfg.Metrics.Addr,
		"metrics.path":                    p.cfg.Metrics.Path,
	}, nil
}

// structProviderFor seeds a koanf layer from a Config's coded defaults,
// ahead of the file and environment layers.
func structProviderFor(cfg *Config) koanf.Provider { return structProvider{cfg: cfg} }

// -------------------------------------------------------------------------
// Validation (spec.md Section 7.1, "configuration-time errors")
// -------------------------------------------------------------------------

var (
	ErrUnknownClassifierKind  = errors.New("scenario: unknown classifier kind")
	ErrNodeNotFound           = errors.New("scenario: connection references unknown node")
	ErrAccessAddressCollision = errors.New("scenario: two connections on the same central share an access address")
	ErrUnknownTraceExtension  = errors.New("scenario: unknown pcap file extension")
)

// Validate checks cfg against every configuration-time invariant of
// spec.md Section 7.1. Per-connection checks are delegated to
// bleconn.ConnectionConfig.Validate wherever that invariant is already
// enforced there, so the two error catalogs never drift apart.
func Validate(cfg *Config) error {
	nodeRoles := make(map[string]bleconn.Role, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		role, err := parseRole(n.Role)
		if err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		nodeRoles[n.Name] = role

		if n.ScanIntervalMs > 0 {
			if err := bleconn.ValidateIntervalMultiple(msToDuration(n.ScanIntervalMs)); err != nil {
				return fmt.Errorf("node %q scan_interval_ms: %w", n.Name, err)
			}
		}
	}

	centralAccessAddresses := make(map[string]map[uint32]bool)

	for i, c := range cfg.Connections {
		centralRole, ok := nodeRoles[c.CentralNode]
		if !ok {
			return fmt.Errorf("connection %d: %w: %q", i, ErrNodeNotFound, c.CentralNode)
		}
		if centralRole != bleconn.RoleCentral {
			return fmt.Errorf("connection %d: node %q is not a central: %w", i, c.CentralNode, bleconn.ErrUnknownRole)
		}
		if _, ok := nodeRoles[c.PeripheralNode]; !ok {
			return fmt.Errorf("connection %d: %w: %q", i, ErrNodeNotFound, c.PeripheralNode)
		}

		aa, err := parseAccessAddress(c.AccessAddressHex)
		if err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
		seen := centralAccessAddresses[c.CentralNode]
		if seen == nil {
			seen = make(map[uint32]bool)
			centralAccessAddresses[c.CentralNode] = seen
		}
		if seen[aa] {
			return fmt.Errorf("connection %d on central %q: %w", i, c.CentralNode, ErrAccessAddressCollision)
		}
		seen[aa] = true

		used, err := bleconn.NewUsedChannelMap(c.InitialUsedChannels)
		if err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}

		conn := &bleconn.ConnectionConfig{
			Role:                bleconn.RoleCentral,
			AccessAddress:       aa,
			HopIncrement:        c.HopIncrement,
			ConnectionInterval:  msToDuration(c.ConnectionIntervalMs),
			ActivePeriod:        msToDuration(c.ActivePeriodMs),
			ConnectionOffset:    msToDuration(c.ConnectionOffsetMs),
			SupervisionTimeout:  msToDuration(c.SupervisionTimeoutMs),
			InstantOffset:       c.InstantOffset,
			InitialUsedChannels: used,
			PeripheralCount:     c.PeripheralCount,
			MaxPacketDuration:   simclock.Duration(c.MaxPacketDurationUs) * simclock.Microsecond,
		}
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
	}

	switch strings.ToLower(cfg.Classifier.Kind) {
	case "baseline", "eafh", "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownClassifierKind, cfg.Classifier.Kind)
	}
	if err := bleconn.ValidatePreferredMinimumGood(cfg.Classifier.PreferredMinimumGood); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	if cfg.Trace.Enabled {
		ext := strings.ToLower(cfg.Trace.Extension)
		if ext != ".pcap" && ext != ".pcapng" {
			return fmt.Errorf("%w: %q", ErrUnknownTraceExtension, cfg.Trace.Extension)
		}
	}

	return nil
}

// ParseRole parses a scenario node's "central"/"peripheral" role string,
// shared with cmd/blesim.
func ParseRole(s string) (bleconn.Role, error) { return parseRole(s) }

func parseRole(s string) (bleconn.Role, error) {
	switch strings.ToLower(s) {
	case "central":
		return bleconn.RoleCentral, nil
	case "peripheral":
		return bleconn.RolePeripheral, nil
	default:
		return 0, fmt.Errorf("%w: %q", bleconn.ErrUnknownRole, s)
	}
}

// ParseAccessAddress parses a scenario's hex access-address string (an
// optional "0x" prefix followed by hex digits), shared with cmd/blesim so
// the wiring code and the validator never disagree on the format.
func ParseAccessAddress(hexStr string) (uint32, error) { return parseAccessAddress(hexStr) }

func parseAccessAddress(hexStr string) (uint32, error) {
	hexStr = strings.TrimPrefix(strings.TrimSpace(hexStr), "0x")
	var v uint32
	if _, err := fmt.Sscanf(hexStr, "%x", &v); err != nil {
		return 0, fmt.Errorf("invalid access_address %q: %w", hexStr, err)
	}
	return v, nil
}

// MsToDuration converts a scenario millisecond float field to a
// simclock.Duration, shared with cmd/blesim.
func MsToDuration(ms float64) simclock.Duration { return msToDuration(ms) }

func msToDuration(ms float64) simclock.Duration {
	return simclock.Duration(ms * float64(simclock.Millisecond))
}

// ParseLogLevel maps a LogConfig level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
