package node

import (
	"context"
	"net"
	"testing"
	"time"

	"udpchain/internal/codec"
	"udpchain/internal/config"
	"udpchain/internal/keys"
	"udpchain/internal/mining"
	"udpchain/internal/protocol"
	"udpchain/internal/storage"
)

// newTestNode builds a Node bound to an ephemeral loopback port with a
// fresh key pair, bypassing the hole-puncher handshake — tests wire
// peers together directly via RegisterPeer.
func newTestNode(t *testing.T) *Node {
	t.Helper()
	pair, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}
	cfg := config.Config{
		Port:       0,
		Storage:    t.TempDir(),
		Difficulty: "",
		SecretKey:  pair.SecretHex(),
		PublicKey:  pair.PublicHex(),
	}
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

// link registers a and b's keys with each other so they can exchange
// sealed packets without the hole-puncher relay.
func link(a, b *Node) {
	a.RegisterPeer(b.LocalAddr(), b.keys.Public)
	b.RegisterPeer(a.LocalAddr(), a.keys.Public)
}

func runNode(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)
	t.Cleanup(cancel)
}

func TestPingPongRoundTrip(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	link(a, b)

	runNode(t, a)
	runNode(t, b)

	before := time.Now()
	if err := a.Send(b.LocalAddr(), protocol.StatusOk, protocol.NewPing()); err != nil {
		t.Fatalf("Send(Ping) error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if peer, ok := a.registry.Get(b.LocalAddr()); ok && peer.LastSeen.After(before) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("b never acknowledged a's Ping with a Pong that touched a's registry")
}

// mineGenesis produces a trivially-difficult (empty SignKey) Record that
// passes mining.VerifyRecord, standing in for a real block a peer already
// holds.
func mineGenesis(t *testing.T) storage.Record {
	t.Helper()
	job := mining.Job{Content: "hello", Index: 0, Timestamp: 1700000000, Prev: genesisPrev}
	result, err := mining.Search(job, nil)
	if err != nil {
		t.Fatalf("mining.Search() error: %v", err)
	}
	return storage.Record{
		Index:     job.Index,
		Content:   job.Content,
		Timestamp: job.Timestamp,
		Nonce:     result.Nonce,
		Prev:      job.Prev,
		Hash:      result.Hash,
	}
}

func TestGetBlocksSyncsMissingBlock(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	link(a, b)

	record := mineGenesis(t)
	if err := b.Store().Write(record); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	runNode(t, a)
	runNode(t, b)

	if err := a.Send(b.LocalAddr(), protocol.StatusOk, protocol.NewGetBlocks()); err != nil {
		t.Fatalf("Send(GetBlocks) error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Store().Has(record.Hash) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("a never synced b's block %s", record.Hash)
}

func TestExploreNetworkBootstrapProbe(t *testing.T) {
	n := newTestNode(t)
	runNode(t, n)

	probePair, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate() error: %v", err)
	}
	probeEnv := codec.NewEnvelope(probePair.Public, probePair.Secret)

	msg := protocol.NewMessage(1, protocol.StatusOk, protocol.NewExploreNetwork())
	sealed, err := probeEnv.SealBootstrap(n.LocalAddr(), n.keys.Public, msg.Encode())
	if err != nil {
		t.Fatalf("SealBootstrap() error: %v", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp", n.LocalAddr())
	if err != nil {
		t.Fatalf("ResolveUDPAddr() error: %v", err)
	}
	if _, err := conn.WriteToUDP(sealed, addr); err != nil {
		t.Fatalf("WriteToUDP() error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	size, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("no reply from probed node: %v", err)
	}

	// The probe registers n's key the same way the debug tool does,
	// purely to open n's reply with the ordinary per-address Open.
	probeEnv.RegisterPeer(n.LocalAddr(), n.keys.Public)
	plaintext, err := probeEnv.Open(n.LocalAddr(), buf[:size])
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	reply, err := protocol.DecodeMessage(plaintext)
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if _, ok := reply.Payload.(protocol.GetPeersAck); !ok {
		t.Fatalf("reply event = %s, want GetPeersAck", reply.Payload.EventCode())
	}

	// The probe must have been forgotten again: it never becomes a real
	// peer n would broadcast consensus traffic to.
	if n.registry.Count() != 0 {
		t.Fatalf("registry.Count() = %d, want 0 after the probe was forgotten", n.registry.Count())
	}
}
