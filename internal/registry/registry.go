// Package registry tracks known peers: their public key, liveness, and
// strike count, guarded by a single mutex the same way the teacher's
// preconf index is guarded.
package registry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Peer is one entry in the registry: everything known about a single
// remote address.
type Peer struct {
	Address   string
	PublicKey [32]byte
	LastSeen  time.Time
	Strikes   int
}

// Registry is a concurrency-safe map from peer address to Peer, with
// strike-based eviction.
type Registry struct {
	mu          sync.RWMutex
	peers       map[string]*Peer
	strikeLimit int
	selfAddress string
	log         *logrus.Entry
}

// New constructs a Registry that evicts a peer once its strike count
// reaches strikeLimit. selfAddress is never allowed into the registry,
// enforcing invariant I4.
func New(strikeLimit int, selfAddress string) *Registry {
	return &Registry{
		peers:       make(map[string]*Peer),
		strikeLimit: strikeLimit,
		selfAddress: selfAddress,
		log:         logrus.WithField("component", "registry"),
	}
}

// Insert adds or replaces a peer's public key, resetting its strike
// count and last-seen timestamp. A no-op for the registry's own address.
func (r *Registry) Insert(address string, publicKey [32]byte, now time.Time) {
	if address == r.selfAddress {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[address] = &Peer{
		Address:   address,
		PublicKey: publicKey,
		LastSeen:  now,
		Strikes:   0,
	}
}

// Remove deletes a peer entirely.
func (r *Registry) Remove(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, address)
}

// Touch resets a peer's strike count and updates its last-seen time. It
// is a no-op if the peer is unknown.
func (r *Registry) Touch(address string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[address]
	if !ok {
		return
	}
	peer.Strikes = 0
	peer.LastSeen = now
}

// Strike increments a peer's strike count and returns the new value.
// Once the count reaches the configured limit, the peer is evicted and
// Strike returns -1.
func (r *Registry) Strike(address string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[address]
	if !ok {
		return 0
	}

	peer.Strikes++
	if peer.Strikes >= r.strikeLimit {
		delete(r.peers, address)
		r.log.WithField("address", address).Warn("evicting peer after repeated strikes")
		return -1
	}
	return peer.Strikes
}

// Get returns a copy of the peer entry for address, if known.
func (r *Registry) Get(address string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[address]
	if !ok {
		return Peer{}, false
	}
	return *peer, true
}

// Snapshot returns a copy of every known peer, safe for the caller to
// range over without holding the registry's lock.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		out = append(out, *peer)
	}
	return out
}

// Count returns the number of known peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Addresses returns every known peer address, for handlers that only
// need to iterate destinations.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.peers))
	for addr := range r.peers {
		out = append(out, addr)
	}
	return out
}
