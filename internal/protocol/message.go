package protocol

import (
	"fmt"

	"udpchain/internal/codec"
)

// Payload is implemented by every per-event payload struct: it knows its
// own event code and how to render/parse its tilde-delimited fields.
type Payload interface {
	EventCode() EventCode
	Encode() []byte
}

// PayloadDecoder parses raw payload fields (already split by
// codec.ParsePayload) into a Payload.
type PayloadDecoder func(fields [][]byte) (Payload, error)

var decoders = map[EventCode]PayloadDecoder{}

// registerDecoder wires an event code to its payload decoder. Called from
// each payload file's init so the registry is populated without a central
// switch statement.
func registerDecoder(code EventCode, decoder PayloadDecoder) {
	decoders[code] = decoder
}

// Message is a fully assembled protocol message: header plus typed
// payload.
type Message struct {
	Header  codec.Header
	Payload Payload
}

// NewMessage builds a Message for payload, computing its header's
// payload_length from the encoded payload bytes. The header's ID and
// StatusCode come from id and status.
func NewMessage(id uint16, status StatusCode, payload Payload) Message {
	encoded := payload.Encode()
	return Message{
		Header: codec.Header{
			EventCode:     uint8(payload.EventCode()),
			StatusCode:    uint8(status),
			ID:            id,
			PayloadLength: uint16(len(encoded)),
		},
		Payload: payload,
	}
}

// Encode renders the message as header bytes followed by payload bytes —
// the plaintext that gets sealed into a Nacl envelope.
func (m Message) Encode() []byte {
	header := m.Header.Encode()
	payload := m.Payload.Encode()
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header[:]...)
	out = append(out, payload...)
	return out
}

// DecodeMessage parses plaintext (header ∥ payload, as produced by
// opening a Nacl envelope) into a Message. It validates the header
// checksum and declared payload_length, and looks up a registered
// decoder for the header's event code.
func DecodeMessage(plaintext []byte) (Message, error) {
	header, err := codec.DecodeHeader(plaintext)
	if err != nil {
		return Message{}, err
	}
	switch StatusCode(header.StatusCode) {
	case StatusOk, StatusNoPeer, StatusUndefined:
	default:
		header.StatusCode = uint8(StatusUndefined)
	}

	body := plaintext[codec.HeaderSize:]
	if int(header.PayloadLength) != len(body) {
		return Message{}, fmt.Errorf("payload_length mismatch: header says %d, got %d bytes", header.PayloadLength, len(body))
	}

	decode, ok := decoders[EventCode(header.EventCode)]
	if !ok {
		return Message{}, &UnknownEventError{Code: EventCode(header.EventCode)}
	}

	fields := codec.ParsePayload(body)
	payload, err := decode(fields)
	if err != nil {
		return Message{}, err
	}

	return Message{Header: header, Payload: payload}, nil
}
