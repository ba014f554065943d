package node

import (
	"time"

	"udpchain/internal/protocol"
)

// pingCount and pingSpacing implement the hole-puncher relay's NAT-opener
// sequence: four Ping packets spaced 250ms apart (§4.11/§5). Neither side
// treats these as authoritative liveness checks.
const (
	pingCount   = 4
	pingSpacing = 250 * time.Millisecond
)

// pingOpener sends the NAT-opening ping sequence to address. It runs on
// its own short-lived goroutine, per the spec's "Ping sender" thread role.
func pingOpener(n *Node, address string) {
	for i := 0; i < pingCount; i++ {
		if err := n.Send(address, protocol.StatusOk, protocol.NewPing()); err != nil {
			n.log.WithError(err).WithField("peer", address).Debug("NAT-opener ping failed")
		}
		if i < pingCount-1 {
			time.Sleep(pingSpacing)
		}
	}
}
