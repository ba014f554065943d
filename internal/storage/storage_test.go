package storage

import (
	"errors"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	record := Record{
		Index:     0,
		Content:   "genesis content",
		Timestamp: 1000,
		Nonce:     7,
		Prev:      "0000000000000000000000000000000000000000000000000000000000000",
		Hash:      "abc123",
	}

	if err := store.Write(record); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if !store.Has("abc123") {
		t.Fatalf("Has() = false, want true")
	}

	got, err := store.Read("abc123")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got != record {
		t.Fatalf("Read() = %+v, want %+v", got, record)
	}
}

func TestWriteUpdatesLast(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	first := Record{Index: 0, Content: "a", Timestamp: 1, Nonce: 0, Prev: "0", Hash: "h1"}
	second := Record{Index: 1, Content: "b", Timestamp: 2, Nonce: 1, Prev: "h1", Hash: "h2"}

	if err := store.Write(first); err != nil {
		t.Fatalf("Write(first) error: %v", err)
	}
	if err := store.Write(second); err != nil {
		t.Fatalf("Write(second) error: %v", err)
	}

	last, err := store.Last()
	if err != nil {
		t.Fatalf("Last() error: %v", err)
	}
	if last != second {
		t.Fatalf("Last() = %+v, want %+v", last, second)
	}
}

func TestReadNotFound(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Read("missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %T (%v)", err, err)
	}
}

func TestReadMalformed(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	if err := writeAtomic(store.path("bad"), "only one line"); err != nil {
		t.Fatalf("writeAtomic() error: %v", err)
	}

	_, err := store.Read("bad")
	var malformed *MalformedBlockError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedBlockError, got %T (%v)", err, err)
	}
}

func TestListExcludesLastAndTemp(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	for i, hash := range []string{"h1", "h2", "h3"} {
		record := Record{Index: uint64(i), Content: "c", Timestamp: int64(i), Nonce: uint64(i), Prev: "0", Hash: hash}
		if err := store.Write(record); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("List() = %v, want 3 entries", names)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 3 {
		t.Fatalf("Count() = %d, want 3", count)
	}
}
