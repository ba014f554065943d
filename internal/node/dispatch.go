package node

import (
	"time"

	"udpchain/internal/codec"
	"udpchain/internal/protocol"
)

// dispatch implements the five-step receive pipeline from the spec:
// open envelope, decode header+payload, look up handler, invoke it. Any
// failure along the way drops the packet and returns without replying.
//
// One deliberate extension beyond the literal §4.5 pipeline: a source
// this node has no registered key for is given exactly one more chance,
// via the bootstrap envelope (§4.4/§4.11), but only for the debug tool's
// two requests (§6.1): ExploreNetwork, its read-only probe, and
// BlockData, its content submission. This mirrors the hole-puncher's own
// Register bootstrap rather than weakening I5 for any other event.
func (n *Node) dispatch(source string, packet []byte) {
	plaintext, err := n.envelope.Open(source, packet)
	if err != nil {
		if _, unknown := err.(*codec.UnknownSenderError); unknown {
			if n.tryExploreBootstrap(source, packet) {
				return
			}
		}
		n.log.WithError(err).WithField("source", source).Debug("dropping packet: envelope open failed")
		n.registry.Strike(source)
		return
	}

	msg, err := protocol.DecodeMessage(plaintext)
	if err != nil {
		n.log.WithError(err).WithField("source", source).Debug("dropping packet: decode failed")
		n.registry.Strike(source)
		return
	}

	handler, ok := n.handlers[msg.Payload.EventCode()]
	if !ok {
		n.log.WithField("event", msg.Payload.EventCode()).Debug("dropping packet: no handler registered")
		return
	}

	n.registry.Touch(source, time.Now())
	handler(n, source, msg)
}

// RegisterHandlers wires every event code this node understands to its
// handler. Called once from New.
func RegisterHandlers(n *Node) {
	n.handlers[protocol.EventPing] = handlePing
	n.handlers[protocol.EventPong] = handlePong
	n.handlers[protocol.EventRegisterAck] = handleRegisterAck
	n.handlers[protocol.EventPunsh] = handlePunsh
	n.handlers[protocol.EventGetPeersAck] = handleGetPeersAck
	n.handlers[protocol.EventGetPeers] = handleGetPeers
	n.handlers[protocol.EventNewBlock] = handleNewBlock
	n.handlers[protocol.EventBlockData] = handleBlockData
	n.handlers[protocol.EventBlockGen] = handleBlockGen
	n.handlers[protocol.EventHashVal] = handleHashVal
	n.handlers[protocol.EventHashValAck] = handleHashValAck
	n.handlers[protocol.EventGetBlocks] = handleGetBlocks
	n.handlers[protocol.EventGetBlocksAck] = handleGetBlocksAck
	n.handlers[protocol.EventGetBlock] = handleGetBlock
	n.handlers[protocol.EventGetBlockAck] = handleGetBlockAck
	n.handlers[protocol.EventSyncBlocksReq] = handleSyncBlocksReq
	n.handlers[protocol.EventSyncBlocksReqAck] = handleSyncBlocksReqAck
	n.handlers[protocol.EventExploreNetwork] = handleExploreNetwork
}
