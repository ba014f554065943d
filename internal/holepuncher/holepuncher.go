// Package holepuncher implements the stateless UDP rendezvous relay
// (C11): it records the observed source address of every Register and
// introduces newcomers and existing peers to one another so each side
// can open a NAT mapping toward the other (§4.11).
package holepuncher

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"udpchain/internal/codec"
	"udpchain/internal/keys"
	"udpchain/internal/protocol"
	"udpchain/internal/registry"
)

const maxDatagramSize = 1500

// strikeLimit is the eviction threshold handed to the relay's peer
// registry. The relay never strikes a peer (it has no liveness concept),
// so registered peers are never evicted; the value only has to be a
// bound that is never reached.
const strikeLimit = 1 << 30

// Relay is a running hole-puncher: a UDP socket, a key pair, and the
// current peer list. It holds no block-chain or mining state — unlike a
// peer node it never runs a cadence tick.
type Relay struct {
	conn     *net.UDPConn
	keys     keys.Pair
	envelope *codec.Envelope
	peers    *registry.Registry
	nextID   uint32
	log      *logrus.Entry
}

// New binds a Relay to port using the given key pair.
func New(port int, pair keys.Pair) (*Relay, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding udp port %d: %w", port, err)
	}

	return &Relay{
		conn:     conn,
		keys:     pair,
		envelope: codec.NewEnvelope(pair.Public, pair.Secret),
		peers:    registry.New(strikeLimit, conn.LocalAddr().String()),
		log:      logrus.WithField("component", "holepuncher"),
	}, nil
}

// LocalAddr returns the bound UDP address.
func (r *Relay) LocalAddr() string { return r.conn.LocalAddr().String() }

// PublicKeyHex returns this relay's public key as hex, for operators to
// hand out to peers as their configured hole_puncher.public_key.
func (r *Relay) PublicKeyHex() string { return r.keys.PublicHex() }

// Close shuts down the UDP socket, unblocking Run.
func (r *Relay) Close() error { return r.conn.Close() }

// Run reads packets until ctx is cancelled or the socket closes.
func (r *Relay) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		size, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				r.log.WithError(err).Warn("udp read failed")
				continue
			}
		}
		r.dispatch(addr.String(), append([]byte(nil), buf[:size]...))
	}
}

// dispatch handles exactly one inbound packet. Every message the relay
// ever receives is a Register, always sent as a bootstrap envelope
// (§4.11/4.4): the relay cannot have a registered key for an address it
// has never seen, so the ordinary per-address Open cannot apply to the
// relay's inbound side at all.
func (r *Relay) dispatch(source string, packet []byte) {
	senderKey, plaintext, err := r.envelope.OpenBootstrap(packet)
	if err != nil {
		r.log.WithError(err).WithField("source", source).Debug("dropping packet: bootstrap open failed")
		return
	}

	msg, err := protocol.DecodeMessage(plaintext)
	if err != nil {
		r.log.WithError(err).WithField("source", source).Debug("dropping packet: decode failed")
		return
	}

	reg, ok := msg.Payload.(protocol.Register)
	if !ok {
		r.log.WithField("event", msg.Payload.EventCode()).Debug("dropping packet: relay only understands Register")
		return
	}

	if reg.PublicKeyHex != "" && reg.PublicKeyHex != codec.ToHex(senderKey[:]) {
		r.log.WithField("source", source).Warn("Register payload key disagrees with bootstrap-authenticated key, ignoring payload copy")
	}

	r.handleRegister(source, senderKey)
}

func (r *Relay) allocateID() uint16 {
	r.nextID++
	return uint16(r.nextID)
}

// handleRegister implements the three-step §4.11 sequence for a newly
// observed address A.
func (r *Relay) handleRegister(address string, publicKey *[32]byte) {
	existing := r.peers.Snapshot()

	r.envelope.RegisterPeer(address, publicKey)
	r.peers.Insert(address, *publicKey, time.Now())

	// 1. Tell every existing peer P about the newcomer.
	for _, p := range existing {
		punsh := protocol.Punsh{Address: address, PublicKeyHex: codec.ToHex(publicKey[:])}
		if err := r.send(p.Address, punsh); err != nil {
			r.log.WithError(err).WithField("peer", p.Address).Warn("failed to relay Punsh")
		}
	}

	// 2. Acknowledge the registration and hand the newcomer the
	// existing peer list (empty on the very first Register).
	if err := r.send(address, protocol.RegisterAck{}); err != nil {
		r.log.WithError(err).WithField("peer", address).Warn("failed to send RegisterAck")
	}

	infos := make([]protocol.PeerInfo, len(existing))
	for i, p := range existing {
		infos[i] = protocol.PeerInfo{Address: p.Address, PublicKeyHex: codec.ToHex(p.PublicKey[:])}
	}
	if err := r.send(address, protocol.GetPeersAck{Peers: infos}); err != nil {
		r.log.WithError(err).WithField("peer", address).Warn("failed to send GetPeersAck")
	}

	r.log.WithField("peer", address).WithField("known_peers", len(existing)).Info("registered newcomer")
}

// send seals payload for dest using this relay's ordinary (non-bootstrap)
// envelope — by the time this is called dest's key is always already
// registered, either as the newcomer itself (step 2/3) or as an existing
// peer (step 1).
func (r *Relay) send(dest string, payload protocol.Payload) error {
	destPeer, ok := r.peers.Get(dest)
	if !ok {
		return fmt.Errorf("no known public key for %s", dest)
	}

	msg := protocol.NewMessage(r.allocateID(), protocol.StatusOk, payload)
	sealed, err := r.envelope.Seal(dest, &destPeer.PublicKey, msg.Encode())
	if err != nil {
		return err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dest, err)
	}
	_, err = r.conn.WriteToUDP(sealed, udpAddr)
	return err
}
