package node

import (
	"context"
	"time"

	"udpchain/internal/protocol"
)

// syncInterval is how often this node asks every known peer for its
// block inventory, in case a GetBlocksAck or GetBlockAck from an earlier
// cycle was lost — the spec explicitly has no per-request timeout, just
// re-request on the next cycle (§5).
const syncInterval = 30 * time.Second

// syncLoop periodically requests inventory from every peer so that
// blocks missed during normal mining broadcasts are still caught up.
func (n *Node) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.requestInventory()
		}
	}
}

func (n *Node) requestInventory() {
	for _, addr := range n.registry.Addresses() {
		if err := n.Send(addr, protocol.StatusOk, protocol.NewGetBlocks()); err != nil {
			n.log.WithError(err).WithField("peer", addr).Debug("failed to request block inventory")
		}
	}
}
