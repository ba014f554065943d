package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestParsePayloadEmpty(t *testing.T) {
	if fields := ParsePayload(nil); fields != nil {
		t.Fatalf("ParsePayload(nil) = %v, want nil", fields)
	}
}

func TestParsePayloadFields(t *testing.T) {
	got := ParsePayload([]byte("~abc~123~~"))
	want := [][]byte{[]byte("abc"), []byte("123"), []byte("")}
	if len(got) != len(want) {
		t.Fatalf("ParsePayload() = %v, want %v", got, want)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("field %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestJoinOverflowReinsertsDelimiter(t *testing.T) {
	fields := ParsePayload([]byte("~1~a~b~c~"))
	overflow := JoinOverflow(fields, 1)
	if string(overflow) != "a~b~c" {
		t.Fatalf("JoinOverflow() = %q, want %q", overflow, "a~b~c")
	}
}

func TestJoinOverflowOutOfRange(t *testing.T) {
	fields := ParsePayload([]byte("~1~"))
	if overflow := JoinOverflow(fields, 5); overflow != nil {
		t.Fatalf("JoinOverflow() = %q, want nil", overflow)
	}
}

func TestBuilderRoundTrip(t *testing.T) {
	payload := NewBuilder().
		AddUint64(42).
		AddString("hello").
		AddStringOverflow("tail~with~tildes").
		Build()

	// The overflow field's own internal tildes are indistinguishable from
	// field separators once written to the wire, so ParsePayload cuts
	// "tail~with~tildes" into three raw fields alongside the two regular
	// ones; JoinOverflow from its starting index recovers the original.
	fields := ParsePayload(payload)
	if len(fields) != 5 {
		t.Fatalf("ParsePayload() = %d fields, want 5: %v", len(fields), fields)
	}

	n, err := FieldUint64(fields, 0)
	if err != nil || n != 42 {
		t.Fatalf("FieldUint64(0) = %d, %v, want 42, nil", n, err)
	}

	s, err := FieldString(fields, 1)
	if err != nil || s != "hello" {
		t.Fatalf("FieldString(1) = %q, %v, want hello, nil", s, err)
	}

	overflow := JoinOverflow(fields, 2)
	if string(overflow) != "tail~with~tildes" {
		t.Fatalf("JoinOverflow(2) = %q, want tail~with~tildes", overflow)
	}
}

func TestFieldUint16(t *testing.T) {
	fields := ParsePayload(NewBuilder().AddUint16(65535).Build())
	v, err := FieldUint16(fields, 0)
	if err != nil || v != 65535 {
		t.Fatalf("FieldUint16(0) = %d, %v, want 65535, nil", v, err)
	}
}

func TestFieldInt64Negative(t *testing.T) {
	fields := ParsePayload(NewBuilder().AddInt64(-7).Build())
	v, err := FieldInt64(fields, 0)
	if err != nil || v != -7 {
		t.Fatalf("FieldInt64(0) = %d, %v, want -7, nil", v, err)
	}
}

func TestFieldMissing(t *testing.T) {
	_, err := FieldString(nil, 0)
	var malformed *MalformedFieldError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedFieldError, got %T (%v)", err, err)
	}
	if malformed.Index != 0 {
		t.Fatalf("Index = %d, want 0", malformed.Index)
	}
}

func TestFieldUint64NotNumeric(t *testing.T) {
	fields := ParsePayload(NewBuilder().AddString("not-a-number").Build())
	_, err := FieldUint64(fields, 0)
	var malformed *MalformedFieldError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedFieldError, got %T (%v)", err, err)
	}
}
