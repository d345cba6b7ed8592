package pcaptrace

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName builds the per-node capture file name (spec.md Section 6:
// "<NodeName>_<NodeID>_<yyyyMMdd_HHmmss>.pcap(ng)").
func FileName(nodeName string, nodeID uint32, start time.Time, format Format) string {
	ext := ".pcap"
	if format == FormatPCAPNG {
		ext = ".pcapng"
	}
	return fmt.Sprintf("%s_%d_%s%s", nodeName, nodeID, start.Format("20060102_150405"), ext)
}

// Meta is the sidecar document written alongside a capture file, giving
// the node identity, start time, scenario seed and classifier kind
// without requiring a PCAP parser. Fields the caller leaves unset are
// written as zero values.
type Meta struct {
	NodeName    string    `yaml:"node_name"`
	NodeID      uint32    `yaml:"node_id"`
	Seed        int64     `yaml:"seed"`
	StartedAt   time.Time `yaml:"started_at"`
	Classifier  string    `yaml:"classifier"`
}

// WriteMetaSidecar writes m as "<capturePath>.meta.yaml".
func WriteMetaSidecar(capturePath string, m Meta) error {
	out, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal pcap trace metadata: %w", err)
	}
	if err := os.WriteFile(capturePath+".meta.yaml", out, 0o644); err != nil {
		return fmt.Errorf("write pcap trace metadata sidecar: %w", err)
	}
	return nil
}
