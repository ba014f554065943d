// Package protocol assembles the wire header (internal/codec) and payload
// fields into one struct per event, with matching encode/decode pairs.
package protocol

import "fmt"

// EventCode identifies the kind of message carried by a header.
type EventCode uint8

// The closed set of event codes. Ping, Pong, and Register carry numeric
// values pinned by the original protocol's own test vectors; the
// remainder of this set is this module's own sequential assignment
// (see DESIGN.md).
const (
	EventPing             EventCode = 0
	EventPong             EventCode = 1
	EventRegister         EventCode = 16
	EventRegisterAck      EventCode = 17
	EventPunsh            EventCode = 18
	EventExploreNetwork   EventCode = 19
	EventGetPeers         EventCode = 20
	EventGetPeersAck      EventCode = 21
	EventNewBlock         EventCode = 22
	EventBlockData        EventCode = 23
	EventBlockGen         EventCode = 24
	EventBlockFound       EventCode = 25
	EventHashVal          EventCode = 26
	EventHashValAck       EventCode = 27
	EventGetBlocks        EventCode = 28
	EventGetBlocksAck     EventCode = 29
	EventGetBlock         EventCode = 30
	EventGetBlockAck      EventCode = 31
	EventSyncBlocksReq    EventCode = 32
	EventSyncBlocksReqAck EventCode = 33
	EventNotAValidEvent   EventCode = 255
)

var eventNames = map[EventCode]string{
	EventPing:             "Ping",
	EventPong:             "Pong",
	EventRegister:         "Register",
	EventRegisterAck:      "RegisterAck",
	EventPunsh:            "Punsh",
	EventExploreNetwork:   "ExploreNetwork",
	EventGetPeers:         "GetPeers",
	EventGetPeersAck:      "GetPeersAck",
	EventNewBlock:         "NewBlock",
	EventBlockData:        "BlockData",
	EventBlockGen:         "BlockGen",
	EventBlockFound:       "BlockFound",
	EventHashVal:          "HashVal",
	EventHashValAck:       "HashValAck",
	EventGetBlocks:        "GetBlocks",
	EventGetBlocksAck:     "GetBlocksAck",
	EventGetBlock:         "GetBlock",
	EventGetBlockAck:      "GetBlockAck",
	EventSyncBlocksReq:    "SyncBlocksReq",
	EventSyncBlocksReqAck: "SyncBlocksReqAck",
	EventNotAValidEvent:   "NotAValidEvent",
}

// String renders the event name, or a numeric fallback for an unknown code.
func (e EventCode) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EventCode(%d)", uint8(e))
}

// Known reports whether e is one of the closed set of assigned codes.
func (e EventCode) Known() bool {
	if e == EventNotAValidEvent {
		return false
	}
	_, ok := eventNames[e]
	return ok
}

// StatusCode is the header's reserved disposition byte.
type StatusCode uint8

// Status codes in active use by this module. Ok and NoPeer are pinned by
// the original protocol; Undefined is the default/fallback for anything
// else, per spec.
const (
	StatusOk        StatusCode = 0
	StatusNoPeer    StatusCode = 16
	StatusUndefined StatusCode = 255
)

func (s StatusCode) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusNoPeer:
		return "NoPeer"
	case StatusUndefined:
		return "Undefined"
	default:
		return fmt.Sprintf("StatusCode(%d)", uint8(s))
	}
}

// UnknownEventError reports a header whose event code is not in the
// closed set this module understands.
type UnknownEventError struct {
	Code EventCode
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event code %d", uint8(e.Code))
}
