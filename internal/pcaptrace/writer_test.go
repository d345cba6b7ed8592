package pcaptrace_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/pcaptrace"
	"github.com/dantte-lp/blesim/internal/simclock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestBuildRecordUncodedLayout(t *testing.T) {
	h := pcaptrace.PHYHeader{
		Channel:       5,
		SignalDBm:     -40,
		NoiseDBm:      -90,
		AAOffenses:    0,
		AccessAddr:    0x8E89BED6,
		CRCChecked:    true,
		CRCPassed:     true,
		Direction:     pcaptrace.DirectionCentralToPeripheral,
		PHYMode:       bleconn.LE1M,
		SignalPresent: true,
	}
	llPDU := []byte{0x01, 0x02, 0x03}

	rec := pcaptrace.BuildRecord(h, llPDU)

	wantLen := 10 + 4 + len(llPDU)
	if len(rec) != wantLen {
		t.Fatalf("record length = %d, want %d", len(rec), wantLen)
	}
	if rec[0] != 5 {
		t.Errorf("channel byte = %d, want 5", rec[0])
	}
}

func TestBuildRecordCodedLayoutAddsIndicator(t *testing.T) {
	h := pcaptrace.PHYHeader{Channel: 10, AccessAddr: 0x8E89BED6, PHYMode: bleconn.LE500K}
	llPDU := []byte{0xAA}

	rec := pcaptrace.BuildRecord(h, llPDU)

	wantLen := 11 + 5 + len(llPDU)
	if len(rec) != wantLen {
		t.Fatalf("coded record length = %d, want %d", len(rec), wantLen)
	}
}

func TestWriterPCAPRoundTripsHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.pcap")

	w, err := pcaptrace.Open(path, pcaptrace.FormatPCAP, discardLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	h := pcaptrace.PHYHeader{Channel: 3, AccessAddr: 0x8E89BED6, PHYMode: bleconn.LE1M}
	if err := w.WritePacket(1000*simclock.Microsecond, h, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	// global header (24) + per-packet header (16) + record bytes.
	if info.Size() < 24+16 {
		t.Errorf("file size = %d, too small for a valid capture", info.Size())
	}
}

func TestWriterPCAPNGWritesNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.pcapng")

	w, err := pcaptrace.Open(path, pcaptrace.FormatPCAPNG, discardLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	h := pcaptrace.PHYHeader{Channel: 3, AccessAddr: 0x8E89BED6, PHYMode: bleconn.LE1M}
	if err := w.WritePacket(0, h, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Error("pcapng file is empty")
	}
}

func TestWriterDisablesAfterCloseThenWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.pcap")

	w, err := pcaptrace.Open(path, pcaptrace.FormatPCAP, discardLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	h := pcaptrace.PHYHeader{Channel: 1, PHYMode: bleconn.LE1M}
	if err := w.WritePacket(0, h, []byte{1}); err != nil {
		t.Fatalf("WritePacket() after close returned error instead of disabling: %v", err)
	}
	if !w.Disabled() {
		t.Error("Disabled() = false, want true after a write to a closed file")
	}
}

func TestFileNameFormat(t *testing.T) {
	start := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	got := pcaptrace.FileName("central-1", 7, start, pcaptrace.FormatPCAPNG)
	want := "central-1_7_20260305_143000.pcapng"
	if got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

func TestWriteMetaSidecar(t *testing.T) {
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "node.pcapng")

	err := pcaptrace.WriteMetaSidecar(capturePath, pcaptrace.Meta{
		NodeName:  "central-1",
		NodeID:    7,
		Seed:      42,
		StartedAt: time.Unix(0, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("WriteMetaSidecar() error: %v", err)
	}
	if _, err := os.Stat(capturePath + ".meta.yaml"); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}
}
