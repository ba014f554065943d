package node

import (
	"time"

	"udpchain/internal/codec"
	"udpchain/internal/consensus"
	"udpchain/internal/keys"
	"udpchain/internal/mining"
	"udpchain/internal/protocol"
	"udpchain/internal/storage"
)

func handlePing(n *Node, source string, msg protocol.Message) {
	if err := n.Send(source, protocol.StatusOk, protocol.NewPong()); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply Pong")
	}
}

func handlePong(n *Node, source string, msg protocol.Message) {
	n.log.WithField("peer", source).Debug("received Pong")
}

func handleRegisterAck(n *Node, source string, msg protocol.Message) {
	n.log.WithField("hole_puncher", source).Info("registered with hole-puncher")
}

// handlePunsh learns of a newcomer's address and public key via the
// hole-puncher relay, registers it, and opens a NAT mapping to it with
// four spaced pings (§4.11).
func handlePunsh(n *Node, source string, msg protocol.Message) {
	punsh, ok := msg.Payload.(protocol.Punsh)
	if !ok {
		return
	}
	key, err := keys.DecodeKey(punsh.PublicKeyHex)
	if err != nil {
		n.log.WithError(err).WithField("peer", punsh.Address).Warn("Punsh carried an undecodable public key")
		return
	}
	n.RegisterPeer(punsh.Address, key)
	go pingOpener(n, punsh.Address)
}

// handleGetPeersAck populates the registry with the peer list handed to
// a newcomer by the hole-puncher, and opens a NAT mapping to each.
func handleGetPeersAck(n *Node, source string, msg protocol.Message) {
	ack, ok := msg.Payload.(protocol.GetPeersAck)
	if !ok {
		return
	}
	for _, peer := range ack.Peers {
		key, err := keys.DecodeKey(peer.PublicKeyHex)
		if err != nil {
			n.log.WithError(err).WithField("peer", peer.Address).Warn("GetPeersAck carried an undecodable public key")
			continue
		}
		n.RegisterPeer(peer.Address, key)
		go pingOpener(n, peer.Address)
	}
}

func handleGetPeers(n *Node, source string, msg protocol.Message) {
	snapshot := n.registry.Snapshot()
	peers := make([]protocol.PeerInfo, 0, len(snapshot))
	for _, peer := range snapshot {
		peers = append(peers, protocol.PeerInfo{
			Address:      peer.Address,
			PublicKeyHex: codec.ToHex(peer.PublicKey[:]),
		})
	}
	if err := n.Send(source, protocol.StatusOk, protocol.GetPeersAck{Peers: peers}); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply GetPeersAck")
	}
}

// handleNewBlock mirrors the sender's collection round locally and
// replies with this node's queued content.
func handleNewBlock(n *Node, source string, msg protocol.Message) {
	newBlock, ok := msg.Payload.(protocol.NewBlock)
	if !ok {
		return
	}

	index, _ := n.headIndex()
	if head, has := n.headIndex(); has {
		index = head + 1
	} else {
		index = 0
	}
	n.consensus.StartCollecting(index, newBlock.Prev, time.Now())

	reply := protocol.BlockData{UniqueKey: n.selfAddress, Content: n.drainOutbox()}
	if err := n.Send(source, protocol.StatusOk, reply); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply BlockData")
	}
}

// handleBlockData records a peer's contribution for the round currently
// being collected. If no round is open, the sender is treated as the
// debug tool's out-of-band content submission (§6.1 `block` subcommand)
// and the content is queued for this node's own next contribution
// instead of being dropped.
func handleBlockData(n *Node, source string, msg protocol.Message) {
	blockData, ok := msg.Payload.(protocol.BlockData)
	if !ok {
		return
	}
	if n.consensus.CurrentState() != consensus.Collecting {
		n.QueueContent(blockData.Content)
		return
	}
	n.consensus.AddBlockData(blockData.UniqueKey, blockData.Content)
}

func handleBlockGen(n *Node, source string, msg protocol.Message) {
	gen, ok := msg.Payload.(protocol.BlockGen)
	if !ok {
		return
	}
	n.tryMine(gen)
}

// handleHashVal recomputes the candidate hash and replies with the
// node's own recomputation, per §4.9's "Recipients recompute the hash".
func handleHashVal(n *Node, source string, msg protocol.Message) {
	hv, ok := msg.Payload.(protocol.HashVal)
	if !ok {
		return
	}
	hash := mining.Verify(hv.Content, hv.Index, hv.Timestamp, hv.Prev, hv.Nonce)
	n.rememberRecomputed(hv.Index, hash)

	ack := protocol.HashValAck{Index: hv.Index, Hash: hash}
	if err := n.Send(source, protocol.StatusOk, ack); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply HashValAck")
	}
}

// handleHashValAck tallies a peer's vote. A vote that contradicts this
// node's own recomputation for the same index is a strike against the
// sender rather than a counted vote (§4.9).
func handleHashValAck(n *Node, source string, msg protocol.Message) {
	ack, ok := msg.Payload.(protocol.HashValAck)
	if !ok {
		return
	}
	if own, known := n.ownRecomputed(ack.Index); known && own != ack.Hash {
		n.registry.Strike(source)
		return
	}
	n.castVoteAndMaybeFinalize(ack.Index, ack.Hash)
}

func handleGetBlocks(n *Node, source string, msg protocol.Message) {
	names, err := n.store.List()
	if err != nil {
		n.log.WithError(err).Warn("failed to list block inventory")
		return
	}
	if err := n.Send(source, protocol.StatusOk, protocol.GetBlocksAck{Blocks: names}); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply GetBlocksAck")
	}
}

func handleGetBlocksAck(n *Node, source string, msg protocol.Message) {
	ack, ok := msg.Payload.(protocol.GetBlocksAck)
	if !ok {
		return
	}
	for _, filename := range ack.Blocks {
		if filename == "" || n.store.Has(filename) {
			continue
		}
		if err := n.Send(source, protocol.StatusOk, protocol.GetBlock{Block: filename}); err != nil {
			n.log.WithError(err).WithField("peer", source).Warn("failed to request missing block")
		}
	}
}

func handleGetBlock(n *Node, source string, msg protocol.Message) {
	getBlock, ok := msg.Payload.(protocol.GetBlock)
	if !ok {
		return
	}
	record, err := n.store.Read(getBlock.Block)
	if err != nil {
		n.log.WithError(err).WithField("block", getBlock.Block).Debug("GetBlock for unknown block")
		return
	}
	ack := protocol.GetBlockAck{
		Filename:  getBlock.Block,
		Index:     record.Index,
		Content:   record.Content,
		Timestamp: record.Timestamp,
		Nonce:     record.Nonce,
		Prev:      record.Prev,
		Hash:      record.Hash,
	}
	if err := n.Send(source, protocol.StatusOk, ack); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply GetBlockAck")
	}
}

func handleGetBlockAck(n *Node, source string, msg protocol.Message) {
	ack, ok := msg.Payload.(protocol.GetBlockAck)
	if !ok {
		return
	}
	n.acceptSyncedBlock(source, ack.Index, ack.Content, ack.Timestamp, ack.Nonce, ack.Prev, ack.Hash)
}

func handleSyncBlocksReq(n *Node, source string, msg protocol.Message) {
	req, ok := msg.Payload.(protocol.SyncBlocksReq)
	if !ok {
		return
	}
	record, err := n.store.Read(req.Block)
	if err != nil {
		n.log.WithError(err).WithField("block", req.Block).Debug("SyncBlocksReq for unknown block")
		return
	}
	ack := protocol.SyncBlocksReqAck{
		Filename:  req.Block,
		Index:     record.Index,
		Content:   record.Content,
		Timestamp: record.Timestamp,
		Nonce:     record.Nonce,
		Prev:      record.Prev,
		Hash:      record.Hash,
	}
	if err := n.Send(source, protocol.StatusOk, ack); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("failed to reply SyncBlocksReqAck")
	}
}

func handleSyncBlocksReqAck(n *Node, source string, msg protocol.Message) {
	ack, ok := msg.Payload.(protocol.SyncBlocksReqAck)
	if !ok {
		return
	}
	n.acceptSyncedBlock(source, ack.Index, ack.Content, ack.Timestamp, ack.Nonce, ack.Prev, ack.Hash)
}

// acceptSyncedBlock validates a block offered by a sync reply against I1
// and I2 before persisting it, striking the sender on failure (§4.12).
func (n *Node) acceptSyncedBlock(source string, index uint64, content string, timestamp int64, nonce uint64, prev, hash string) {
	if err := mining.VerifyRecord(content, index, timestamp, prev, nonce, hash); err != nil {
		n.log.WithError(err).WithField("peer", source).Warn("synced block fails I1, dropping")
		n.registry.Strike(source)
		return
	}
	if prev != genesisPrev && !n.store.Has(prev) {
		n.log.WithField("peer", source).WithField("prev", prev).Warn("synced block fails I2, dropping")
		n.registry.Strike(source)
		return
	}

	record := storage.Record{
		Index:     index,
		Content:   content,
		Timestamp: timestamp,
		Nonce:     nonce,
		Prev:      prev,
		Hash:      hash,
	}
	if err := n.store.Write(record); err != nil {
		n.log.WithError(err).WithField("hash", hash).Error("failed to persist synced block")
	}
}

// handleExploreNetwork answers a debug-tool probe with this node's
// current registry view, out-of-band from the consensus path.
func handleExploreNetwork(n *Node, source string, msg protocol.Message) {
	handleGetPeers(n, source, msg)
}
