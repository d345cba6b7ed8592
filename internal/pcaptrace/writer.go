package pcaptrace

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/dantte-lp/blesim/internal/simclock"
)

// Format selects the on-disk capture container.
type Format int

const (
	FormatPCAP Format = iota
	FormatPCAPNG
)

// linkType is the libpcap-assigned DLT for Bluetooth LE Link Layer
// packets with a PHY header, used by both containers below.
const linkType = 256

const (
	pcapMagic      = 0xa1b2c3d4
	pcapVersionMaj = 2
	pcapVersionMin = 4
	pcapSnapLen    = 65535

	pcapngByteOrderMagic = 0x1a2b3c4d
	pcapngBlockSHB       = 0x0a0d0d0a
	pcapngBlockIDB       = 0x00000001
	pcapngBlockEPB       = 0x00000006
)

// Writer appends packet records to one node's capture file. Once a write
// fails, the Writer disables itself: every subsequent WritePacket call is
// a silent no-op (spec.md Section 7.4), and the failure is logged exactly
// once.
//
// Grounded on the teacher's EchoSession.sendEcho pattern (internal/bfd/
// echo.go): a Warn-and-continue on a single write failure, with a
// connection-scoped logger.
type Writer struct {
	f        *os.File
	format   Format
	logger   *slog.Logger
	disabled bool
}

// Open creates path (truncating any existing file) and writes the
// container's file-level header.
func Open(path string, format Format, logger *slog.Logger) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap trace %s: %w", path, err)
	}

	w := &Writer{
		f:      f,
		format: format,
		logger: logger.With(slog.String("component", "pcaptrace"), slog.String("file", path)),
	}

	var headerErr error
	switch format {
	case FormatPCAP:
		headerErr = w.writePCAPGlobalHeader()
	case FormatPCAPNG:
		headerErr = w.writePCAPNGSectionAndInterface()
	}
	if headerErr != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write trace header %s: %w", path, headerErr)
	}

	return w, nil
}

func (w *Writer) writePCAPGlobalHeader() error {
	var buf [24]byte
	binary.LittleEndian.PutUint32(buf[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(buf[4:6], pcapVersionMaj)
	binary.LittleEndian.PutUint16(buf[6:8], pcapVersionMin)
	// thiszone, sigfigs left zero.
	binary.LittleEndian.PutUint32(buf[16:20], pcapSnapLen)
	binary.LittleEndian.PutUint32(buf[20:24], linkType)
	_, err := w.f.Write(buf[:])
	return err
}

func (w *Writer) writePCAPNGSectionAndInterface() error {
	// Section Header Block: type, total_length, byte-order magic,
	// major/minor version, section_length(-1, unknown), total_length.
	shb := make([]byte, 28)
	binary.LittleEndian.PutUint32(shb[0:4], pcapngBlockSHB)
	binary.LittleEndian.PutUint32(shb[4:8], uint32(len(shb)))
	binary.LittleEndian.PutUint32(shb[8:12], pcapngByteOrderMagic)
	binary.LittleEndian.PutUint16(shb[12:14], 1) // major
	binary.LittleEndian.PutUint16(shb[14:16], 0) // minor
	binary.LittleEndian.PutUint64(shb[16:24], ^uint64(0))
	binary.LittleEndian.PutUint32(shb[24:28], uint32(len(shb)))
	if _, err := w.f.Write(shb); err != nil {
		return err
	}

	// Interface Description Block: type, total_length, linktype,
	// reserved, snaplen, total_length.
	idb := make([]byte, 20)
	binary.LittleEndian.PutUint32(idb[0:4], pcapngBlockIDB)
	binary.LittleEndian.PutUint32(idb[4:8], uint32(len(idb)))
	binary.LittleEndian.PutUint16(idb[8:10], linkType)
	binary.LittleEndian.PutUint32(idb[12:16], pcapSnapLen)
	binary.LittleEndian.PutUint32(idb[16:20], uint32(len(idb)))
	_, err := w.f.Write(idb)
	return err
}

// WritePacket appends one capture record at simulated time ts, built from
// the synthetic PHY header h and the Link Layer PDU bytes llPDU.
func (w *Writer) WritePacket(ts simclock.Time, h PHYHeader, llPDU []byte) error {
	if w.disabled {
		return nil
	}

	record := BuildRecord(h, llPDU)

	var err error
	switch w.format {
	case FormatPCAP:
		err = w.writePCAPRecord(ts, record)
	case FormatPCAPNG:
		err = w.writePCAPNGRecord(ts, record)
	}
	if err != nil {
		w.logger.Warn("pcap trace write failed, disabling trace stream", slog.String("error", err.Error()))
		w.disabled = true
		return nil
	}
	return nil
}

func (w *Writer) writePCAPRecord(ts simclock.Time, record []byte) error {
	var hdr [16]byte
	sec := uint32(int64(ts) / int64(simclock.Second))
	usec := uint32(int64(ts) % int64(simclock.Second))
	binary.LittleEndian.PutUint32(hdr[0:4], sec)
	binary.LittleEndian.PutUint32(hdr[4:8], usec)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(record)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(record)))
	if _, err := w.f.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.f.Write(record)
	return err
}

func (w *Writer) writePCAPNGRecord(ts simclock.Time, record []byte) error {
	padded := padTo4(record)
	blockLen := 32 + len(padded)

	buf := make([]byte, blockLen)
	binary.LittleEndian.PutUint32(buf[0:4], pcapngBlockEPB)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(blockLen))
	// interface_id left zero.
	tsHigh := uint32(int64(ts) >> 32)
	tsLow := uint32(int64(ts))
	binary.LittleEndian.PutUint32(buf[12:16], tsHigh)
	binary.LittleEndian.PutUint32(buf[16:20], tsLow)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(record)))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(record)))
	copy(buf[28:28+len(padded)], padded)
	binary.LittleEndian.PutUint32(buf[blockLen-4:blockLen], uint32(blockLen))

	_, err := w.f.Write(buf)
	return err
}

func padTo4(b []byte) []byte {
	if len(b)%4 == 0 {
		return b
	}
	padded := make([]byte, (len(b)+3)&^3)
	copy(padded, b)
	return padded
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Disabled reports whether a prior write failure has disabled this
// trace stream.
func (w *Writer) Disabled() bool { return w.disabled }
