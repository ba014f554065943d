// Command debug is a minimal-contract explorer tool for a running peer:
// `explore` prints the registry a peer reports back, and `block` submits
// ad hoc content for the peer's next mined block (spec.md §6.1). Unlike
// cmd/peer and cmd/holepuncher it never joins the network itself — it
// speaks exactly one bootstrap-enveloped request and, for `explore`,
// waits for exactly one reply.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"udpchain/internal/codec"
	"udpchain/internal/keys"
	"udpchain/internal/protocol"
)

const probeTimeout = 3 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logrus.SetFormatter(&logrus.TextFormatter{})

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: debug <explore|block> [flags]")
		return 2
	}

	switch args[0] {
	case "explore":
		return runExplore(args[1:])
	case "block":
		return runBlock(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return 2
	}
}

// correlationID derives this request's 16-bit wire id from a fresh UUID,
// so concurrent debug invocations against the same peer rarely collide.
func correlationID() uint16 {
	id := uuid.New()
	return binary.BigEndian.Uint16(id[:2])
}

func runExplore(args []string) int {
	fs := flag.NewFlagSet("explore", flag.ContinueOnError)
	peerAddr := fs.String("peer", "", "peer address, ip:port")
	peerPubkey := fs.String("peer-pubkey", "", "peer's hex-encoded public key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *peerAddr == "" || *peerPubkey == "" {
		fmt.Fprintln(os.Stderr, "explore: -peer and -peer-pubkey are required")
		return 2
	}

	peerKey, err := keys.DecodeKey(*peerPubkey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "explore: %v\n", err)
		return 2
	}

	conn, env, err := dialProbe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "explore: %v\n", err)
		return 1
	}
	defer conn.Close()

	msg := protocol.NewMessage(correlationID(), protocol.StatusOk, protocol.NewExploreNetwork())
	sealed, err := env.SealBootstrap(*peerAddr, peerKey, msg.Encode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "explore: %v\n", err)
		return 1
	}
	if err := sendTo(conn, *peerAddr, sealed); err != nil {
		fmt.Fprintf(os.Stderr, "explore: %v\n", err)
		return 1
	}

	// The peer registers this probe's key just long enough to seal its
	// reply, so the ordinary per-address Open applies on this side too.
	env.RegisterPeer(*peerAddr, peerKey)

	conn.SetReadDeadline(time.Now().Add(probeTimeout))
	buf := make([]byte, 1500)
	size, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "explore: no reply from %s: %v\n", *peerAddr, err)
		return 1
	}

	plaintext, err := env.Open(*peerAddr, buf[:size])
	if err != nil {
		fmt.Fprintf(os.Stderr, "explore: %v\n", err)
		return 1
	}
	reply, err := protocol.DecodeMessage(plaintext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "explore: %v\n", err)
		return 1
	}
	ack, ok := reply.Payload.(protocol.GetPeersAck)
	if !ok {
		fmt.Fprintf(os.Stderr, "explore: unexpected reply event %s\n", reply.Payload.EventCode())
		return 1
	}

	fmt.Printf("%s reports %d known peer(s):\n", *peerAddr, len(ack.Peers))
	for _, p := range ack.Peers {
		fmt.Printf("  %s  %s\n", p.Address, p.PublicKeyHex)
	}
	return 0
}

func runBlock(args []string) int {
	fs := flag.NewFlagSet("block", flag.ContinueOnError)
	peerAddr := fs.String("peer", "", "peer address, ip:port")
	peerPubkey := fs.String("peer-pubkey", "", "peer's hex-encoded public key")
	message := fs.String("message", "", "content to submit for the next cadence tick")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *peerAddr == "" || *peerPubkey == "" || *message == "" {
		fmt.Fprintln(os.Stderr, "block: -peer, -peer-pubkey, and -message are required")
		return 2
	}

	peerKey, err := keys.DecodeKey(*peerPubkey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "block: %v\n", err)
		return 2
	}

	conn, env, err := dialProbe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "block: %v\n", err)
		return 1
	}
	defer conn.Close()

	payload := protocol.BlockData{UniqueKey: fmt.Sprintf("debug:%s", uuid.New()), Content: *message}
	msg := protocol.NewMessage(correlationID(), protocol.StatusOk, payload)
	sealed, err := env.SealBootstrap(*peerAddr, peerKey, msg.Encode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "block: %v\n", err)
		return 1
	}
	if err := sendTo(conn, *peerAddr, sealed); err != nil {
		fmt.Fprintf(os.Stderr, "block: %v\n", err)
		return 1
	}

	fmt.Printf("submitted %d bytes of content to %s\n", len(*message), *peerAddr)
	return 0
}

// dialProbe binds an ephemeral UDP socket and a throwaway key pair for a
// single request/reply exchange.
func dialProbe() (*net.UDPConn, *codec.Envelope, error) {
	pair, err := keys.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("generating probe key pair: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, nil, fmt.Errorf("binding probe socket: %w", err)
	}
	return conn, codec.NewEnvelope(pair.Public, pair.Secret), nil
}

func sendTo(conn *net.UDPConn, dest string, packet []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dest, err)
	}
	_, err = conn.WriteToUDP(packet, udpAddr)
	return err
}
