package codec

import (
	"errors"
	"testing"
)

func TestFletcher16AllZero(t *testing.T) {
	h := Header{EventCode: 0, StatusCode: 0, ID: 0, PayloadLength: 0}
	encoded := h.Encode()
	if encoded[6] != 0 || encoded[7] != 0 {
		t.Fatalf("checksum bytes = %x %x, want 0 0", encoded[6], encoded[7])
	}
}

func TestFletcher16KnownVector(t *testing.T) {
	h := Header{EventCode: 16, StatusCode: 16, ID: 2586, PayloadLength: 0}
	encoded := h.Encode()
	checksum := uint16(encoded[6]) | uint16(encoded[7])<<8
	if checksum != 17463 {
		t.Fatalf("checksum = %d, want 17463", checksum)
	}
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{EventCode: 1, StatusCode: 255, ID: 65535, PayloadLength: 1400}
	encoded := h.Encode()

	decoded, err := DecodeHeader(encoded[:])
	if err != nil {
		t.Fatalf("DecodeHeader() error: %v", err)
	}
	if decoded != h {
		t.Fatalf("DecodeHeader() = %+v, want %+v", decoded, h)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	var short *ShortHeaderError
	if !errors.As(err, &short) {
		t.Fatalf("expected *ShortHeaderError, got %T (%v)", err, err)
	}
}

func TestDecodeHeaderChecksumMismatch(t *testing.T) {
	h := Header{EventCode: 1, StatusCode: 0, ID: 7, PayloadLength: 0}
	encoded := h.Encode()
	encoded[7] ^= 0xFF // corrupt the checksum

	_, err := DecodeHeader(encoded[:])
	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *ChecksumMismatchError, got %T (%v)", err, err)
	}
}

func TestDecodeHeaderFieldOrder(t *testing.T) {
	h := Header{EventCode: 3, StatusCode: 9, ID: 1000, PayloadLength: 42}
	encoded := h.Encode()

	if encoded[0] != 3 || encoded[1] != 9 {
		t.Fatalf("event/status bytes = %d %d, want 3 9", encoded[0], encoded[1])
	}
	if encoded[2] != 0xE8 || encoded[3] != 0x03 {
		t.Fatalf("id bytes = %x %x, want E8 03 (little endian 1000)", encoded[2], encoded[3])
	}
	if encoded[4] != 42 || encoded[5] != 0 {
		t.Fatalf("payload_length bytes = %d %d, want 42 0", encoded[4], encoded[5])
	}
}
