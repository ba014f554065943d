package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestToHex(t *testing.T) {
	got := ToHex([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if got != "DEADBEEF" {
		t.Fatalf("ToHex() = %q, want DEADBEEF", got)
	}
}

func TestFromHex(t *testing.T) {
	got, err := FromHex("deadbeef")
	if err != nil {
		t.Fatalf("FromHex() error: %v", err)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(got, want) {
		t.Fatalf("FromHex() = %x, want %x", got, want)
	}
}

func TestFromHexSkipsWhitespace(t *testing.T) {
	got, err := FromHex("de ad\r\nbe\tef")
	if err != nil {
		t.Fatalf("FromHex() error: %v", err)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(got, want) {
		t.Fatalf("FromHex() = %x, want %x", got, want)
	}
}

func TestFromHexInvalidChar(t *testing.T) {
	_, err := FromHex("deZZ")
	var invalid *InvalidHexError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidHexError, got %T (%v)", err, err)
	}
	if invalid.Char != 'Z' || invalid.Offset != 2 {
		t.Fatalf("unexpected error detail: %+v", invalid)
	}
}

func TestFromHexOddLength(t *testing.T) {
	_, err := FromHex("abc")
	var odd *OddLengthError
	if !errors.As(err, &odd) {
		t.Fatalf("expected *OddLengthError, got %T (%v)", err, err)
	}
}

func TestHexRoundTrip(t *testing.T) {
	input := []byte{0x00, 0x01, 0x7f, 0x80, 0xff, 0x42}
	decoded, err := FromHex(ToHex(input))
	if err != nil {
		t.Fatalf("FromHex() error: %v", err)
	}
	if !bytes.Equal(decoded, input) {
		t.Fatalf("round trip = %x, want %x", decoded, input)
	}
}
