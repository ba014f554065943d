// Package mining implements the proof-of-work search, grounded on the
// original block_gen.rs hashing loop, and the worker pool it runs on.
package mining

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// cancelCheckInterval bounds how many nonce iterations elapse between
// checks of the cancellation flag.
const cancelCheckInterval = 4096

// Job describes a block a node is trying to mine.
type Job struct {
	Content   string
	Index     uint64
	Timestamp int64
	Prev      string
	SignKey   string
}

// Result is a successful proof-of-work search outcome.
type Result struct {
	Nonce uint64
	Hash  string
}

// NonceExhaustedError reports that the u64 nonce space wrapped around
// without finding a satisfying hash.
type NonceExhaustedError struct{}

func (e *NonceExhaustedError) Error() string { return "nonce space exhausted without a match" }

// CancelledError reports that the search was cancelled before finding a
// match.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "mining cancelled" }

func candidate(j Job, nonce uint64) string {
	return j.Content +
		strconv.FormatUint(j.Index, 10) +
		strconv.FormatInt(j.Timestamp, 10) +
		j.Prev +
		strconv.FormatUint(nonce, 10)
}

func hashHex(s string) string {
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Search performs the proof-of-work search described in job, checking
// cancelled every cancelCheckInterval iterations. It returns
// *CancelledError if cancelled() becomes true, or *NonceExhaustedError
// if the u64 nonce space wraps before a match is found.
func Search(job Job, cancelled func() bool) (Result, error) {
	var nonce uint64
	iterations := 0

	for {
		hash := hashHex(candidate(job, nonce))
		if len(job.SignKey) <= len(hash) && hash[:len(job.SignKey)] == job.SignKey {
			return Result{Nonce: nonce, Hash: hash}, nil
		}

		iterations++
		if iterations >= cancelCheckInterval {
			iterations = 0
			if cancelled != nil && cancelled() {
				return Result{}, &CancelledError{}
			}
		}

		next := nonce + 1
		if next == 0 {
			return Result{}, &NonceExhaustedError{}
		}
		nonce = next
	}
}

// Verify recomputes and returns the hash for a candidate (content, index,
// timestamp, prev, nonce) tuple — used by recipients of HashVal to cast a
// vote without redoing the search.
func Verify(content string, index uint64, timestamp int64, prev string, nonce uint64) string {
	job := Job{Content: content, Index: index, Timestamp: timestamp, Prev: prev}
	return hashHex(candidate(job, nonce))
}

// VerifyRecord checks invariant I1: hash must equal SHA3-256 of
// content ∥ index ∥ timestamp ∥ prev ∥ nonce.
func VerifyRecord(content string, index uint64, timestamp int64, prev string, nonce uint64, hash string) error {
	got := Verify(content, index, timestamp, prev, nonce)
	if got != hash {
		return fmt.Errorf("hash mismatch: computed %s, record claims %s", got, hash)
	}
	return nil
}
