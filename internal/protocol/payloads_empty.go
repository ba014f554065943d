package protocol

// EmptyPayload is shared by every event whose payload carries no fields:
// Ping, Pong, ExploreNetwork, GetPeers, GetBlocks.
type EmptyPayload struct {
	code EventCode
}

// NewPing builds an empty Ping payload.
func NewPing() EmptyPayload { return EmptyPayload{code: EventPing} }

// NewPong builds an empty Pong payload.
func NewPong() EmptyPayload { return EmptyPayload{code: EventPong} }

// NewExploreNetwork builds an empty ExploreNetwork payload.
func NewExploreNetwork() EmptyPayload { return EmptyPayload{code: EventExploreNetwork} }

// NewGetPeers builds an empty GetPeers payload.
func NewGetPeers() EmptyPayload { return EmptyPayload{code: EventGetPeers} }

// NewGetBlocks builds an empty GetBlocks payload.
func NewGetBlocks() EmptyPayload { return EmptyPayload{code: EventGetBlocks} }

// EventCode implements Payload.
func (p EmptyPayload) EventCode() EventCode { return p.code }

// Encode implements Payload.
func (p EmptyPayload) Encode() []byte { return nil }

func decodeEmpty(code EventCode) PayloadDecoder {
	return func(fields [][]byte) (Payload, error) {
		return EmptyPayload{code: code}, nil
	}
}

func init() {
	registerDecoder(EventPing, decodeEmpty(EventPing))
	registerDecoder(EventPong, decodeEmpty(EventPong))
	registerDecoder(EventExploreNetwork, decodeEmpty(EventExploreNetwork))
	registerDecoder(EventGetPeers, decodeEmpty(EventGetPeers))
	registerDecoder(EventGetBlocks, decodeEmpty(EventGetBlocks))
}
