// Package storage persists blocks as six-line UTF-8 files named by their
// content hash, written to a temporary file and renamed into place for
// crash-safe updates.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// lastFilename is the regular file that always holds the head block's
// full contents.
const lastFilename = "last"

// Record is a single persisted block.
type Record struct {
	Index     uint64
	Content   string
	Timestamp int64
	Nonce     uint64
	Prev      string
	Hash      string
}

// NotFoundError reports a read for a filename that isn't on disk.
type NotFoundError struct {
	Filename string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("block not found: %s", e.Filename)
}

// MalformedBlockError reports a block file that doesn't parse as six
// lines, or whose numeric fields aren't valid.
type MalformedBlockError struct {
	Filename string
	Reason   string
}

func (e *MalformedBlockError) Error() string {
	return fmt.Sprintf("malformed block %s: %s", e.Filename, e.Reason)
}

// Store is a directory of block files plus a "last" head pointer.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New returns a Store rooted at dir, creating it (and any missing
// parents) if it doesn't already exist, mirroring the teacher's
// MkdirAll-before-write discipline for its own output directory.
func New(dir string) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logrus.WithError(err).WithField("dir", dir).Warn("failed to create block storage directory")
	}
	return &Store{dir: dir}
}

func (s *Store) path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// Has reports whether a block file with this name exists.
func (s *Store) Has(filename string) bool {
	_, err := os.Stat(s.path(filename))
	return err == nil
}

func encodeRecord(r Record) string {
	lines := []string{
		strconv.FormatUint(r.Index, 10),
		r.Content,
		strconv.FormatInt(r.Timestamp, 10),
		strconv.FormatUint(r.Nonce, 10),
		r.Prev,
		r.Hash,
	}
	return strings.Join(lines, "\n")
}

func decodeRecord(filename string, body string) (Record, error) {
	lines := strings.Split(body, "\n")
	if len(lines) != 6 {
		return Record{}, &MalformedBlockError{Filename: filename, Reason: fmt.Sprintf("expected 6 lines, got %d", len(lines))}
	}

	index, err := strconv.ParseUint(lines[0], 10, 64)
	if err != nil {
		return Record{}, &MalformedBlockError{Filename: filename, Reason: "invalid index: " + err.Error()}
	}
	timestamp, err := strconv.ParseInt(lines[2], 10, 64)
	if err != nil {
		return Record{}, &MalformedBlockError{Filename: filename, Reason: "invalid timestamp: " + err.Error()}
	}
	nonce, err := strconv.ParseUint(lines[3], 10, 64)
	if err != nil {
		return Record{}, &MalformedBlockError{Filename: filename, Reason: "invalid nonce: " + err.Error()}
	}

	return Record{
		Index:     index,
		Content:   lines[1],
		Timestamp: timestamp,
		Nonce:     nonce,
		Prev:      lines[4],
		Hash:      lines[5],
	}, nil
}

// Read loads and parses a block file by name.
func (s *Store) Read(filename string) (Record, error) {
	data, err := os.ReadFile(s.path(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, &NotFoundError{Filename: filename}
		}
		return Record{}, err
	}
	return decodeRecord(filename, string(data))
}

// Last loads the head block via the "last" pointer file.
func (s *Store) Last() (Record, error) {
	data, err := os.ReadFile(s.path(lastFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, &NotFoundError{Filename: lastFilename}
		}
		return Record{}, err
	}
	return decodeRecord(lastFilename, string(data))
}

// writeAtomic writes body to path by first writing to a temporary file
// in the same directory and renaming it into place, so a concurrent
// reader never observes a partially written file.
func writeAtomic(path string, body string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// Write persists record under its hash as filename and atomically
// updates the "last" head pointer to the same content.
func (s *Store) Write(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := encodeRecord(record)

	if err := writeAtomic(s.path(record.Hash), body); err != nil {
		return err
	}
	return writeAtomic(s.path(lastFilename), body)
}

// List returns every block filename in the store, excluding the "last"
// pointer and any leftover temporary files.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == lastFilename || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Count returns the number of persisted blocks.
func (s *Store) Count() (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}
