// Package node composes the wire codec, peer registry, block storage,
// mining engine, and consensus machine into one running peer, following
// the teacher's context+ticker composition shape (main_new.go).
package node

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"udpchain/internal/codec"
	"udpchain/internal/config"
	"udpchain/internal/consensus"
	"udpchain/internal/keys"
	"udpchain/internal/mining"
	"udpchain/internal/protocol"
	"udpchain/internal/registry"
	"udpchain/internal/storage"
)

// maxDatagramSize is the MTU ceiling the wire format is built around;
// oversized datagrams are truncated to this size on read, and the
// truncated box then fails authentication in the envelope layer, so they
// are dropped before any header is decoded.
const maxDatagramSize = 1500

// strikeLimit is the number of strikes a peer may collect before it is
// evicted from the registry. A strike is recorded for a packet that fails
// to open or decode, a synced block that fails I1/I2, or a vote that
// contradicts this node's own recomputation; any handled packet from the
// peer resets the count.
const strikeLimit = 5

// minerPoolSize is the number of workers the mining engine runs on.
// Invariant I3 only ever allows one active mining attempt at a time, so
// a single worker already matches the real concurrency the node uses.
const minerPoolSize = 1

// Handler processes one decoded message from source.
type Handler func(n *Node, source string, msg protocol.Message)

// Node is a running peer: UDP socket, cryptographic identity, and every
// component from the spec wired together.
type Node struct {
	conn        *net.UDPConn
	keys        keys.Pair
	envelope    *codec.Envelope
	registry    *registry.Registry
	store       *storage.Store
	consensus   *consensus.Machine
	miners      *mining.Pool
	selfAddress string
	puncherAddr string
	difficulty  string
	nextID      uint32
	handlers    map[protocol.EventCode]Handler

	outboxMu sync.Mutex
	outbox   []string

	// recomputed tracks this node's own HashVal recomputation per index,
	// so a later HashValAck that disagrees can be struck per §4.9.
	recomputedMu sync.Mutex
	recomputed   map[uint64]string

	log *logrus.Entry
}

// New builds a Node bound to cfg.Port, ready to Run.
func New(cfg config.Config) (*Node, error) {
	pub, err := keys.DecodeKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public_key: %w", err)
	}
	sec, err := keys.DecodeKey(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decoding secret_key: %w", err)
	}

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding udp port %d: %w", cfg.Port, err)
	}

	n := &Node{
		conn:        conn,
		keys:        keys.Pair{Public: pub, Secret: sec},
		envelope:    codec.NewEnvelope(pub, sec),
		registry:    registry.New(strikeLimit, conn.LocalAddr().String()),
		selfAddress: conn.LocalAddr().String(),
		store:       storage.New(cfg.Storage),
		consensus:   consensus.New(),
		miners:      mining.NewPool(minerPoolSize),
		puncherAddr: fmt.Sprintf("%s:%d", cfg.HolePuncher.IP, cfg.HolePuncher.Port),
		difficulty:  cfg.Difficulty,
		handlers:    make(map[protocol.EventCode]Handler),
		recomputed:  make(map[uint64]string),
		log:         logrus.WithField("component", "node"),
	}
	RegisterHandlers(n)

	if cfg.HolePuncher.PublicKeyHex != "" {
		puncherKey, err := keys.DecodeKey(cfg.HolePuncher.PublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decoding hole_puncher.public_key: %w", err)
		}
		n.RegisterPuncherKey(puncherKey)
	}

	return n, nil
}

// Start performs the §4.10 startup handshake: announce this node to the
// hole-puncher so it learns of the rest of the network. Register is the
// one message this node ever sends as a bootstrap envelope (§4.11):
// the hole-puncher knows this node's address from the UDP source but has
// no prior public key for it, so the ordinary Seal/Open pair (which
// requires the recipient to already have the sender's key registered)
// cannot apply. The reply (RegisterAck, followed asynchronously by
// GetPeersAck/Punsh) is handled by the normal dispatch table once Run's
// receive loop is up.
func (n *Node) Start() error {
	destKey, ok := n.destinationKey(n.puncherAddr)
	if !ok {
		return fmt.Errorf("no known public key for hole-puncher %s", n.puncherAddr)
	}

	msg := protocol.NewMessage(n.allocateID(), protocol.StatusOk, protocol.Register{PublicKeyHex: n.PublicKeyHex()})
	sealed, err := n.envelope.SealBootstrap(n.puncherAddr, destKey, msg.Encode())
	if err != nil {
		return err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", n.puncherAddr)
	if err != nil {
		return fmt.Errorf("resolving hole-puncher %s: %w", n.puncherAddr, err)
	}
	_, err = n.conn.WriteToUDP(sealed, udpAddr)
	return err
}

// LocalAddr returns the bound UDP address.
func (n *Node) LocalAddr() string { return n.conn.LocalAddr().String() }

// Registry exposes the peer registry for handlers and callers outside
// the package.
func (n *Node) Registry() *registry.Registry { return n.registry }

// Store exposes block storage.
func (n *Node) Store() *storage.Store { return n.store }

// Consensus exposes the round state machine.
func (n *Node) Consensus() *consensus.Machine { return n.consensus }

// PublicKeyHex returns this node's public key as hex, for Register.
func (n *Node) PublicKeyHex() string { return n.keys.PublicHex() }

func (n *Node) allocateID() uint16 {
	return uint16(atomic.AddUint32(&n.nextID, 1))
}

// RegisterPeer records a peer's address and public key in both the
// registry and the envelope layer together, since the two must agree.
func (n *Node) RegisterPeer(address string, publicKey *[32]byte) {
	n.registry.Insert(address, *publicKey, time.Now())
	n.envelope.RegisterPeer(address, publicKey)
}

// ForgetPeer removes a peer from both the registry and envelope layer.
func (n *Node) ForgetPeer(address string) {
	n.registry.Remove(address)
	n.envelope.ForgetPeer(address)
}

// Send seals and transmits payload to dest, whose public key must
// already be registered with the envelope layer (via RegisterPeer or
// RegisterPuncherKey).
func (n *Node) Send(dest string, status protocol.StatusCode, payload protocol.Payload) error {
	msg := protocol.NewMessage(n.allocateID(), status, payload)
	plaintext := msg.Encode()

	destKey, ok := n.destinationKey(dest)
	if !ok {
		return fmt.Errorf("no known public key for destination %s", dest)
	}

	sealed, err := n.envelope.Seal(dest, destKey, plaintext)
	if err != nil {
		return err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return fmt.Errorf("resolving destination %s: %w", dest, err)
	}
	_, err = n.conn.WriteToUDP(sealed, udpAddr)
	return err
}

func (n *Node) destinationKey(dest string) (*[32]byte, bool) {
	if peer, ok := n.registry.Get(dest); ok {
		key := peer.PublicKey
		return &key, true
	}
	return nil, false
}

// RegisterPuncherKey records the hole-puncher's public key so Register
// can be sealed and sent to it before any peer relationship exists.
func (n *Node) RegisterPuncherKey(publicKey *[32]byte) {
	n.envelope.RegisterPeer(n.puncherAddr, publicKey)
	n.registry.Insert(n.puncherAddr, *publicKey, time.Now())
}

// PuncherAddress returns the configured hole-puncher address.
func (n *Node) PuncherAddress() string { return n.puncherAddr }

// QueueContent appends content to this node's outbound queue. It is sent
// as this node's BlockData contribution the next time a NewBlock arrives
// (or is emitted locally), then cleared.
func (n *Node) QueueContent(content string) {
	n.outboxMu.Lock()
	defer n.outboxMu.Unlock()
	n.outbox = append(n.outbox, content)
}

// drainOutbox returns the queued content joined into one contribution and
// empties the queue.
func (n *Node) drainOutbox() string {
	n.outboxMu.Lock()
	defer n.outboxMu.Unlock()
	joined := strings.Join(n.outbox, "")
	n.outbox = nil
	return joined
}

// headIndex reports the locally known head block index, if any.
func (n *Node) headIndex() (index uint64, has bool) {
	record, err := n.store.Last()
	if err != nil {
		return 0, false
	}
	return record.Index, true
}

// Run starts the receive loop and the cadence/sync background loops,
// blocking until ctx is cancelled or the socket is closed.
func (n *Node) Run(ctx context.Context) error {
	go n.cadenceLoop(ctx)
	go n.roundTimeoutLoop(ctx)
	go n.syncLoop(ctx)
	return n.receiveLoop(ctx)
}

// Close shuts down the UDP socket and miner pool, unblocking the receive
// loop.
func (n *Node) Close() error {
	n.miners.Close()
	return n.conn.Close()
}

func (n *Node) receiveLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		size, addr, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				n.log.WithError(err).Warn("udp read failed")
				continue
			}
		}

		n.dispatch(addr.String(), append([]byte(nil), buf[:size]...))
	}
}

// cadenceLoop wakes every second to check the consensus cadence
// condition, matching the spec's "every even minute, second zero" tick
// without requiring wall-clock drift handling beyond a 1-second ticker.
func (n *Node) cadenceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if consensus.ShouldCollect(now, n.registry.Count()) {
				n.startCollecting(now)
			}
		}
	}
}

// roundTimeoutLoop enforces the 5-minute round ceiling (§4.9 "Any state
// -> Idle on 5-minute timeout"). A round caught in Voting at the deadline
// is finalized via the lexicographic tie-break rule instead of being
// discarded, since votes already in hand still have a well-defined
// winner.
func (n *Node) roundTimeoutLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			block, ok := n.consensus.HandleTimeout(now)
			if !ok {
				continue
			}
			n.log.WithField("index", block.Index).WithField("hash", block.Hash).Warn("round timed out, finalizing by tie-break")
			n.persistFinalized(block)
		}
	}
}

// collectionWindow bounds how long an initiator waits for peer BlockData
// replies before emitting BlockGen for whatever content arrived.
const collectionWindow = 3 * time.Second

func (n *Node) startCollecting(now time.Time) {
	record, err := n.store.Last()
	prev := genesisPrev
	index := uint64(0)
	if err == nil {
		prev = record.Hash
		index = record.Index + 1
	}

	if !n.consensus.StartCollecting(index, prev, now) {
		return
	}
	n.consensus.AddBlockData(n.selfAddress, n.drainOutbox())

	n.log.WithField("index", index).Info("broadcasting NewBlock")
	for _, addr := range n.registry.Addresses() {
		if err := n.Send(addr, protocol.StatusOk, protocol.NewBlock{Prev: prev}); err != nil {
			n.log.WithError(err).WithField("peer", addr).Warn("failed to send NewBlock")
		}
	}

	time.AfterFunc(collectionWindow, func() { n.finishCollecting(index, prev) })
}

// genesisPrev is the fixed zero-hash used as the previous-block pointer
// for the very first block.
const genesisPrev = "0000000000000000000000000000000000000000000000000000000000000000"

// finishCollecting closes the collection window this node opened as
// initiator, broadcasting BlockGen with whatever content arrived and
// starting this node's own mining attempt alongside every peer's.
func (n *Node) finishCollecting(index uint64, prev string) {
	content, ok := n.consensus.BeginMining()
	if !ok {
		return
	}

	timestamp := time.Now().Unix()
	gen := protocol.BlockGen{
		Index:     index,
		Timestamp: timestamp,
		Prev:      prev,
		SignKey:   n.difficulty,
		Content:   content,
	}
	n.log.WithField("index", index).Info("broadcasting BlockGen")
	for _, addr := range n.registry.Addresses() {
		if err := n.Send(addr, protocol.StatusOk, gen); err != nil {
			n.log.WithError(err).WithField("peer", addr).Warn("failed to send BlockGen")
		}
	}

	n.tryMine(gen)
}

// tryMine acquires the re-entrancy flag for a BlockGen (local or received
// from a peer) and, if acquired, submits the search to the miner pool so
// the receive loop is never blocked by mining.
func (n *Node) tryMine(gen protocol.BlockGen) {
	head, hasHead := n.headIndex()
	ok, err := n.consensus.TryStartLocalMining(gen.Index, hasHead, head)
	if err != nil {
		n.log.WithError(err).WithField("index", gen.Index).Debug("rejecting BlockGen")
		return
	}
	if !ok {
		n.log.WithField("index", gen.Index).Debug("already mining, ignoring BlockGen")
		return
	}

	job := mining.Job{
		Content:   gen.Content,
		Index:     gen.Index,
		Timestamp: gen.Timestamp,
		Prev:      gen.Prev,
		SignKey:   gen.SignKey,
	}
	n.miners.Submit(func() { n.mineAndBroadcast(job) })
}

// mineAndBroadcast runs the proof-of-work search for job on a miner pool
// worker and broadcasts HashVal to every peer on success. The search is
// cancelled as soon as the round moves on without this node (finalized
// by another peer's votes, or reset by the 5-minute round timeout).
func (n *Node) mineAndBroadcast(job mining.Job) {
	cancelled := func() bool { return !n.consensus.StillMining(job.Index) }
	result, err := mining.Search(job, cancelled)
	if err != nil {
		n.log.WithError(err).Warn("mining search did not complete")
		return
	}

	n.consensus.FinishLocalMining(job.Content, job.Index, job.Timestamp, job.Prev, result.Nonce, result.Hash)

	payload := protocol.HashVal{
		Content:   job.Content,
		Timestamp: job.Timestamp,
		Index:     job.Index,
		Prev:      job.Prev,
		Nonce:     result.Nonce,
	}
	for _, addr := range n.registry.Addresses() {
		if err := n.Send(addr, protocol.StatusOk, payload); err != nil {
			n.log.WithError(err).WithField("peer", addr).Warn("failed to send HashVal")
		}
	}
	// Cast this node's own vote too, the same way a peer's HashValAck
	// would be processed.
	n.castVoteAndMaybeFinalize(job.Index, result.Hash)
}

// castVoteAndMaybeFinalize records a vote for index/hash and, once it
// finalizes the round, persists the block and resets consensus state.
func (n *Node) castVoteAndMaybeFinalize(index uint64, hash string) {
	total := n.registry.Count() + 1 // peers plus this node
	block, ok := n.consensus.CastVote(index, hash, total)
	if !ok {
		return
	}
	n.persistFinalized(block)
}

// rememberRecomputed records this node's own recomputed hash for index,
// so a later disagreeing HashValAck from a peer can be struck.
func (n *Node) rememberRecomputed(index uint64, hash string) {
	n.recomputedMu.Lock()
	defer n.recomputedMu.Unlock()
	n.recomputed[index] = hash
}

// ownRecomputed returns this node's recomputed hash for index, if any.
func (n *Node) ownRecomputed(index uint64) (string, bool) {
	n.recomputedMu.Lock()
	defer n.recomputedMu.Unlock()
	hash, ok := n.recomputed[index]
	return hash, ok
}

// debugBootstrapEvents are the only event codes this node will ever
// accept from an unregistered source via the bootstrap envelope — both
// belong to the debug tool's minimal, read-only-or-queue-only contract
// (§6.1), never to block-affecting peer traffic.
var debugBootstrapEvents = map[protocol.EventCode]bool{
	protocol.EventExploreNetwork: true,
	protocol.EventBlockData:      true,
}

// tryExploreBootstrap handles a packet from an unregistered source that
// cannot be opened through the ordinary per-address Open. It only ever
// accepts the debug tool's one-shot introductions this way; anything
// else is left for the caller to drop and strike. On success the
// prober's key is registered so a reply (if any) can be sealed normally,
// same as any other peer, then immediately forgotten.
func (n *Node) tryExploreBootstrap(source string, packet []byte) bool {
	senderKey, plaintext, err := n.envelope.OpenBootstrap(packet)
	if err != nil {
		return false
	}

	msg, err := protocol.DecodeMessage(plaintext)
	if err != nil {
		return false
	}
	if !debugBootstrapEvents[msg.Payload.EventCode()] {
		return false
	}

	n.RegisterPeer(source, senderKey)
	n.handlers[msg.Payload.EventCode()](n, source, msg)
	n.ForgetPeer(source)
	return true
}

func (n *Node) persistFinalized(block consensus.FinalizedBlock) {
	record := storage.Record{
		Index:     block.Index,
		Content:   block.Content,
		Timestamp: block.Timestamp,
		Nonce:     block.Nonce,
		Prev:      block.Prev,
		Hash:      block.Hash,
	}
	if err := n.store.Write(record); err != nil {
		n.log.WithError(err).WithField("index", block.Index).Error("failed to persist finalized block")
	} else {
		n.log.WithField("index", block.Index).WithField("hash", block.Hash).Info("block finalized")
	}
	n.consensus.Reset()
}
