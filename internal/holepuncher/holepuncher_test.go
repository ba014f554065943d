package holepuncher

import (
	"testing"

	"udpchain/internal/codec"
	"udpchain/internal/keys"
	"udpchain/internal/protocol"
)

func mustRelay(t *testing.T) *Relay {
	t.Helper()
	pair, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}
	r, err := New(0, pair)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// sealRegister builds the bootstrap-enveloped Register packet a peer
// would send as its very first message to the relay.
func sealRegister(t *testing.T, peerPair keys.Pair, relayPublicKey *[32]byte, dest string) []byte {
	t.Helper()
	env := codec.NewEnvelope(peerPair.Public, peerPair.Secret)
	msg := protocol.NewMessage(1, protocol.StatusOk, protocol.Register{PublicKeyHex: peerPair.PublicHex()})
	sealed, err := env.SealBootstrap(dest, relayPublicKey, msg.Encode())
	if err != nil {
		t.Fatalf("SealBootstrap() error: %v", err)
	}
	return sealed
}

func TestRelayRegisterSequence(t *testing.T) {
	relay := mustRelay(t)

	peerA, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}
	peerB, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}

	// A registers first: no existing peers, so the relay only owes A a
	// RegisterAck and an empty GetPeersAck.
	packetA := sealRegister(t, peerA, relay.keys.Public, "1.2.3.4:5")
	relay.dispatch("1.2.3.4:5", packetA)

	if relay.peers.Count() != 1 {
		t.Fatalf("peer count after A registers = %d, want 1", relay.peers.Count())
	}
	if _, ok := relay.peers.Get("1.2.3.4:5"); !ok {
		t.Fatalf("relay did not record A's address")
	}

	// B registers second: the relay now owes A a Punsh{address: B} and
	// owes B a GetPeersAck containing A.
	packetB := sealRegister(t, peerB, relay.keys.Public, "6.7.8.9:10")
	relay.dispatch("6.7.8.9:10", packetB)

	if relay.peers.Count() != 2 {
		t.Fatalf("peer count after B registers = %d, want 2", relay.peers.Count())
	}
	bPeer, ok := relay.peers.Get("6.7.8.9:10")
	if !ok || bPeer.PublicKey != *peerB.Public {
		t.Fatalf("relay did not record B's public key correctly")
	}
}

func TestRelayDropsNonRegisterEvent(t *testing.T) {
	relay := mustRelay(t)
	peer, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}

	env := codec.NewEnvelope(peer.Public, peer.Secret)
	msg := protocol.NewMessage(1, protocol.StatusOk, protocol.NewPing())
	sealed, err := env.SealBootstrap("peer-addr", relay.keys.Public, msg.Encode())
	if err != nil {
		t.Fatalf("SealBootstrap() error: %v", err)
	}

	relay.dispatch("peer-addr", sealed)

	if relay.peers.Count() != 0 {
		t.Fatalf("relay registered a peer from a non-Register packet")
	}
}

func TestRelayDropsBadBootstrapAuth(t *testing.T) {
	relay := mustRelay(t)
	peer, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}

	env := codec.NewEnvelope(peer.Public, peer.Secret)
	msg := protocol.NewMessage(1, protocol.StatusOk, protocol.Register{PublicKeyHex: peer.PublicHex()})
	sealed, err := env.SealBootstrap("peer-addr", relay.keys.Public, msg.Encode())
	if err != nil {
		t.Fatalf("SealBootstrap() error: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	relay.dispatch("peer-addr", sealed)

	if relay.peers.Count() != 0 {
		t.Fatalf("relay registered a peer from a packet that failed authentication")
	}
}
