package registry

import (
	"testing"
	"time"
)

func TestInsertAndGet(t *testing.T) {
	r := New(3, "self:1")
	now := time.Now()
	var key [32]byte
	key[0] = 0xAB

	r.Insert("peer:1", key, now)

	peer, ok := r.Get("peer:1")
	if !ok {
		t.Fatalf("Get() ok = false, want true")
	}
	if peer.PublicKey != key {
		t.Fatalf("PublicKey = %x, want %x", peer.PublicKey, key)
	}
	if peer.Strikes != 0 {
		t.Fatalf("Strikes = %d, want 0", peer.Strikes)
	}
}

func TestInsertRejectsSelfAddress(t *testing.T) {
	r := New(3, "self:1")
	var key [32]byte
	r.Insert("self:1", key, time.Now())

	if _, ok := r.Get("self:1"); ok {
		t.Fatalf("Get(self) ok = true, want false (I4)")
	}
}

func TestTouchResetsStrikes(t *testing.T) {
	r := New(5, "self:1")
	var key [32]byte
	r.Insert("peer:1", key, time.Now())

	r.Strike("peer:1")
	r.Strike("peer:1")
	r.Touch("peer:1", time.Now())

	peer, _ := r.Get("peer:1")
	if peer.Strikes != 0 {
		t.Fatalf("Strikes after Touch = %d, want 0", peer.Strikes)
	}
}

func TestStrikeEvictsAtLimit(t *testing.T) {
	r := New(2, "self:1")
	var key [32]byte
	r.Insert("peer:1", key, time.Now())

	if n := r.Strike("peer:1"); n != 1 {
		t.Fatalf("first Strike() = %d, want 1", n)
	}
	if n := r.Strike("peer:1"); n != -1 {
		t.Fatalf("second Strike() = %d, want -1 (eviction)", n)
	}
	if _, ok := r.Get("peer:1"); ok {
		t.Fatalf("peer should be evicted after reaching strike limit")
	}
}

func TestStrikeUnknownPeerIsNoop(t *testing.T) {
	r := New(2, "self:1")
	if n := r.Strike("ghost:1"); n != 0 {
		t.Fatalf("Strike() on unknown peer = %d, want 0", n)
	}
}

func TestRemove(t *testing.T) {
	r := New(3, "self:1")
	var key [32]byte
	r.Insert("peer:1", key, time.Now())
	r.Remove("peer:1")

	if _, ok := r.Get("peer:1"); ok {
		t.Fatalf("peer should be gone after Remove")
	}
}

func TestSnapshotAndCount(t *testing.T) {
	r := New(3, "self:1")
	var key [32]byte
	r.Insert("peer:1", key, time.Now())
	r.Insert("peer:2", key, time.Now())

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}

	snapshot := r.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snapshot))
	}
}

func TestAddresses(t *testing.T) {
	r := New(3, "self:1")
	var key [32]byte
	r.Insert("peer:1", key, time.Now())
	r.Insert("peer:2", key, time.Now())

	addrs := r.Addresses()
	if len(addrs) != 2 {
		t.Fatalf("Addresses() len = %d, want 2", len(addrs))
	}
}
