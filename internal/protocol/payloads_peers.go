package protocol

import (
	"fmt"
	"strings"

	"udpchain/internal/codec"
)

// Register announces this peer to the hole-puncher, carrying the hex
// encoding of its Nacl public key so recipients can open future packets
// from it.
type Register struct {
	PublicKeyHex string
}

func (p Register) EventCode() EventCode { return EventRegister }

func (p Register) Encode() []byte {
	return codec.NewBuilder().AddStringOverflow(p.PublicKeyHex).Build()
}

func decodeRegister(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return Register{}, nil
	}
	key, err := codec.FieldString(fields, 0)
	if err != nil {
		return nil, err
	}
	return Register{PublicKeyHex: key}, nil
}

// RegisterAck acknowledges a Register. The hole-puncher's actual peer
// hand-off happens through GetPeersAck; this is a bare disposition ack.
type RegisterAck struct{}

func (p RegisterAck) EventCode() EventCode { return EventRegisterAck }

func (p RegisterAck) Encode() []byte { return nil }

func decodeRegisterAck(fields [][]byte) (Payload, error) {
	return RegisterAck{}, nil
}

// Punsh carries the newcomer's address and public key so the recipient
// can both open a NAT mapping to it and seal packets for it — the
// hole-puncher relay is the only party that has learned both from the
// newcomer's Register.
type Punsh struct {
	Address      string
	PublicKeyHex string
}

func (p Punsh) EventCode() EventCode { return EventPunsh }

func (p Punsh) Encode() []byte {
	return codec.NewBuilder().
		AddString(p.Address).
		AddStringOverflow(p.PublicKeyHex).
		Build()
}

func decodePunsh(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return Punsh{}, nil
	}
	addr, err := codec.FieldString(fields, 0)
	if err != nil {
		return nil, err
	}
	key := codec.JoinOverflow(fields, 1)
	return Punsh{Address: addr, PublicKeyHex: string(key)}, nil
}

// peerFieldSeparator separates an address from its public key within one
// PeerInfo entry; peerListSeparator separates entries. Addresses and hex
// keys never contain either character.
const (
	peerFieldSeparator = "@"
	peerListSeparator  = ","
)

// PeerInfo pairs a peer's address with its public key, as handed out by
// GetPeersAck.
type PeerInfo struct {
	Address      string
	PublicKeyHex string
}

func (p PeerInfo) String() string {
	return fmt.Sprintf("%s%s%s", p.Address, peerFieldSeparator, p.PublicKeyHex)
}

func parsePeerInfo(s string) (PeerInfo, bool) {
	idx := strings.LastIndex(s, peerFieldSeparator)
	if idx < 0 {
		return PeerInfo{}, false
	}
	return PeerInfo{Address: s[:idx], PublicKeyHex: s[idx+1:]}, true
}

// GetPeersAck carries the hole-puncher's current peer list, handed to a
// newly registered peer.
type GetPeersAck struct {
	Peers []PeerInfo
}

func (p GetPeersAck) EventCode() EventCode { return EventGetPeersAck }

func (p GetPeersAck) Encode() []byte {
	entries := make([]string, len(p.Peers))
	for i, peer := range p.Peers {
		entries[i] = peer.String()
	}
	return codec.NewBuilder().AddStringOverflow(strings.Join(entries, peerListSeparator)).Build()
}

func decodeGetPeersAck(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return GetPeersAck{}, nil
	}
	joined := codec.JoinOverflow(fields, 0)
	if len(joined) == 0 {
		return GetPeersAck{}, nil
	}

	var peers []PeerInfo
	for _, entry := range strings.Split(string(joined), peerListSeparator) {
		if info, ok := parsePeerInfo(entry); ok {
			peers = append(peers, info)
		}
	}
	return GetPeersAck{Peers: peers}, nil
}

func init() {
	registerDecoder(EventRegister, decodeRegister)
	registerDecoder(EventRegisterAck, decodeRegisterAck)
	registerDecoder(EventPunsh, decodePunsh)
	registerDecoder(EventGetPeersAck, decodeGetPeersAck)
}
