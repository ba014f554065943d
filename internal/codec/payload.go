package codec

import (
	"bytes"
	"fmt"
	"strconv"
)

const fieldDelimiter = '~'

// MalformedFieldError reports a payload field that failed to convert to
// its expected type.
type MalformedFieldError struct {
	Index  int
	Reason string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed field %d: %s", e.Index, e.Reason)
}

// ParsePayload splits a tilde-delimited payload region into its inner
// fields: `~f1~f2~...~fN~`. A single tilde separates every field from its
// neighbor, with one bounding tilde at each end of the whole region. An
// empty input yields no fields. If the overflow field (always the last one
// added by a Builder) itself contains literal '~' bytes, this split cuts it
// into several consecutive raw fields; JoinOverflow reassembles them.
func ParsePayload(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}

	parts := bytes.Split(b, []byte{fieldDelimiter})
	if len(parts) < 2 {
		return nil
	}
	return parts[1 : len(parts)-1]
}

// JoinOverflow reassembles every field from a given index onward into a
// single overflow value, reinserting the delimiter between fields that
// were split by the parser so the original tildes inside the overflow
// field are preserved.
func JoinOverflow(fields [][]byte, from int) []byte {
	if from >= len(fields) {
		return nil
	}
	out := fields[from]
	for _, f := range fields[from+1:] {
		joined := make([]byte, 0, len(out)+1+len(f))
		joined = append(joined, out...)
		joined = append(joined, fieldDelimiter)
		joined = append(joined, f...)
		out = joined
	}
	return out
}

// Builder accumulates payload fields and renders them to the wire
// format. The zero value is ready to use.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// AddString appends a regular field, single-tilde-delimited from its
// neighbors: a leading tilde is written only once, ahead of the very first
// field, and every field (including the first) is followed by one tilde.
func (b *Builder) AddString(s string) *Builder {
	if len(b.buf) == 0 {
		b.buf = append(b.buf, fieldDelimiter)
	}
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, fieldDelimiter)
	return b
}

// AddStringOverflow appends the trailing overflow field and must be the
// last call before Build. Its content may itself contain '~'; ParsePayload
// has no way to know where the overflow field's own delimiters end, so it
// splits straight through them into several raw fields. JoinOverflow,
// called with the overflow field's starting index, reinserts the tildes
// ParsePayload stripped and recovers the original value.
func (b *Builder) AddStringOverflow(s string) *Builder {
	return b.AddString(s)
}

// AddUint64 appends a u64 field in ASCII decimal.
func (b *Builder) AddUint64(v uint64) *Builder {
	return b.AddString(strconv.FormatUint(v, 10))
}

// AddInt64 appends an i64 field in ASCII decimal.
func (b *Builder) AddInt64(v int64) *Builder {
	return b.AddString(strconv.FormatInt(v, 10))
}

// AddUint16 appends a u16 field in ASCII decimal.
func (b *Builder) AddUint16(v uint16) *Builder {
	return b.AddString(strconv.FormatUint(uint64(v), 10))
}

// Build returns the accumulated payload bytes.
func (b *Builder) Build() []byte {
	return b.buf
}

// FieldString converts a raw field to a string (UTF-8 byte run, always
// valid since Go strings are byte-transparent).
func FieldString(fields [][]byte, index int) (string, error) {
	if index >= len(fields) {
		return "", &MalformedFieldError{Index: index, Reason: "missing field"}
	}
	return string(fields[index]), nil
}

// FieldUint64 parses field index as an unsigned 64-bit decimal integer.
func FieldUint64(fields [][]byte, index int) (uint64, error) {
	s, err := FieldString(fields, index)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &MalformedFieldError{Index: index, Reason: err.Error()}
	}
	return v, nil
}

// FieldInt64 parses field index as a signed 64-bit decimal integer.
func FieldInt64(fields [][]byte, index int) (int64, error) {
	s, err := FieldString(fields, index)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &MalformedFieldError{Index: index, Reason: err.Error()}
	}
	return v, nil
}

// FieldUint16 parses field index as an unsigned 16-bit decimal integer.
func FieldUint16(fields [][]byte, index int) (uint16, error) {
	s, err := FieldString(fields, index)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &MalformedFieldError{Index: index, Reason: err.Error()}
	}
	return uint16(v), nil
}
