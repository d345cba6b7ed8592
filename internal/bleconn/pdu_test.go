package bleconn

import (
	"bytes"
	"testing"
)

func TestMarshalUnmarshalPDURoundTrip(t *testing.T) {
	pdu := &PDU{LLID: LLIDData, SN: true, NESN: false, MD: true, Payload: []byte("hello ble")}
	buf := make([]byte, MaxPacketSize)

	n, err := MarshalPDU(pdu, 0xABCDEF, buf)
	if err != nil {
		t.Fatalf("MarshalPDU: %v", err)
	}

	var got PDU
	crcFailed, err := UnmarshalPDU(buf[:n], 0xABCDEF, &got)
	if err != nil {
		t.Fatalf("UnmarshalPDU: %v", err)
	}
	if crcFailed {
		t.Fatal("expected CRC to pass with matching seed")
	}
	if got.LLID != pdu.LLID || got.SN != pdu.SN || got.NESN != pdu.NESN || got.MD != pdu.MD {
		t.Fatalf("header mismatch: got %+v, want %+v", got, pdu)
	}
	if !bytes.Equal(got.Payload, pdu.Payload) {
		t.Fatalf("payload mismatch: got %q, want %q", got.Payload, pdu.Payload)
	}
}

func TestUnmarshalPDUDetectsCRCMismatchWithWrongSeed(t *testing.T) {
	pdu := &PDU{LLID: LLIDData, Payload: []byte("x")}
	buf := make([]byte, MaxPacketSize)
	n, err := MarshalPDU(pdu, 0x111111, buf)
	if err != nil {
		t.Fatalf("MarshalPDU: %v", err)
	}

	var got PDU
	crcFailed, err := UnmarshalPDU(buf[:n], 0x222222, &got)
	if err != nil {
		t.Fatalf("UnmarshalPDU: %v", err)
	}
	if !crcFailed {
		t.Fatal("expected CRC failure with mismatched seed")
	}
}

func TestChannelMapIndicationRoundTrip(t *testing.T) {
	m, err := NewUsedChannelMap([]uint8{0, 1, 2, 3, 36})
	if err != nil {
		t.Fatalf("NewUsedChannelMap: %v", err)
	}
	body := EncodeChannelMapIndicationBody(m, 4242)

	gotMap, gotInstant, err := DecodeChannelMapIndicationBody(body)
	if err != nil {
		t.Fatalf("DecodeChannelMapIndicationBody: %v", err)
	}
	if !gotMap.Equal(m) {
		t.Fatalf("map mismatch: got %v, want %v", gotMap.Channels(), m.Channels())
	}
	if gotInstant != 4242 {
		t.Fatalf("instant mismatch: got %d, want 4242", gotInstant)
	}
}

func TestMarshalPDURejectsOversizedPayload(t *testing.T) {
	pdu := &PDU{LLID: LLIDData, Payload: make([]byte, MaxPayloadLen+1)}
	buf := make([]byte, MaxPacketSize+16)
	if _, err := MarshalPDU(pdu, 0, buf); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}
