// Package consensus implements the per-block-index round state machine:
// Idle -> Collecting -> Mining -> Voting -> Finalized -> Idle.
package consensus

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is one stage of a mining round.
type State int

const (
	Idle State = iota
	Collecting
	Mining
	Voting
	Finalized
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Collecting:
		return "Collecting"
	case Mining:
		return "Mining"
	case Voting:
		return "Voting"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// roundTimeout is the maximum time a round may remain outside Idle
// before it is force-reset.
const roundTimeout = 5 * time.Minute

// StaleBlockGenError reports a BlockGen for an index at or below the
// current head, which must be rejected rather than processed.
type StaleBlockGenError struct {
	Index     uint64
	HeadIndex uint64
}

func (e *StaleBlockGenError) Error() string {
	return "stale BlockGen: index at or below current head"
}

// FinalizedBlock is the outcome of a completed round, ready to persist.
type FinalizedBlock struct {
	Index     uint64
	Content   string
	Timestamp int64
	Prev      string
	Nonce     uint64
	Hash      string
}

// Round holds the mutable state of one in-flight block index.
type Round struct {
	Index          uint64
	State          State
	Prev           string
	PendingContent map[string]string // unique_key -> content fragment
	pendingOrder   []string
	VoteTally      map[string]int // hash -> vote count
	CurrentHash    string
	CurrentNonce   uint64
	CurrentContent string
	Timestamp      int64
	StartedAt      time.Time
}

// Machine owns the single active round plus the re-entrancy flag
// described by invariant I3.
type Machine struct {
	mu            sync.Mutex
	round         *Round
	isCalculating bool
	log           *logrus.Entry
}

// New constructs an idle Machine.
func New() *Machine {
	return &Machine{log: logrus.WithField("component", "consensus")}
}

// ShouldCollect reports whether a cadence tick at now should start a new
// round: even minute, second zero, and at least two peers known. It does
// not mutate state.
func ShouldCollect(now time.Time, peerCount int) bool {
	return now.Second() == 0 && now.Minute()%2 == 0 && peerCount >= 2
}

// StartCollecting opens a new round at index with prev as the previous
// block's hash. It is a no-op (returns false) if a round is already
// active.
func (m *Machine) StartCollecting(index uint64, prev string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round != nil && m.round.State != Idle && m.round.State != Finalized {
		return false
	}

	m.round = &Round{
		Index:          index,
		State:          Collecting,
		Prev:           prev,
		PendingContent: make(map[string]string),
		VoteTally:      make(map[string]int),
		StartedAt:      now,
	}
	m.log.WithField("index", index).Info("round entering Collecting")
	return true
}

// AddBlockData records a peer's BlockData contribution. Idempotent: a
// repeated unique_key overwrites the prior value.
func (m *Machine) AddBlockData(uniqueKey, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round == nil || m.round.State != Collecting {
		return
	}
	if _, exists := m.round.PendingContent[uniqueKey]; !exists {
		m.round.pendingOrder = append(m.round.pendingOrder, uniqueKey)
	}
	m.round.PendingContent[uniqueKey] = content
}

// BeginMining transitions Collecting -> Mining, returning the
// concatenation of pending content in insertion order for the BlockGen
// broadcast.
func (m *Machine) BeginMining() (content string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round == nil || m.round.State != Collecting {
		return "", false
	}

	for _, key := range m.round.pendingOrder {
		content += m.round.PendingContent[key]
	}
	m.round.State = Mining
	m.log.WithField("index", m.round.Index).Info("round entering Mining")
	return content, true
}

// TryStartLocalMining sets the re-entrancy flag for a BlockGen the node
// received from a peer (invariant I3). headIndex/hasHead describe the
// locally known head block, if any (an empty store has no head, so any
// index including genesis's 0 is acceptable). Returns *StaleBlockGenError
// if index is at or below head, nil with ok=false if already calculating,
// and nil with ok=true once the flag is acquired.
func (m *Machine) TryStartLocalMining(index uint64, hasHead bool, headIndex uint64) (ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hasHead && index <= headIndex {
		return false, &StaleBlockGenError{Index: index, HeadIndex: headIndex}
	}
	if m.isCalculating {
		return false, nil
	}
	m.isCalculating = true
	return true, nil
}

// FinishLocalMining clears the re-entrancy flag and records the local
// mining result, ahead of broadcasting HashVal.
func (m *Machine) FinishLocalMining(content string, index uint64, timestamp int64, prev string, nonce uint64, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isCalculating = false
	if m.round == nil {
		m.round = &Round{Index: index, VoteTally: make(map[string]int)}
	}
	m.round.CurrentContent = content
	m.round.Timestamp = timestamp
	m.round.Prev = prev
	m.round.CurrentNonce = nonce
	m.round.CurrentHash = hash
	m.round.State = Voting
	m.log.WithField("index", index).Info("round entering Voting")
}

// CastVote records a HashValAck for the round at index. It returns the
// FinalizedBlock and true once a strict majority of totalPeers agree on
// one hash.
func (m *Machine) CastVote(index uint64, hash string, totalPeers int) (FinalizedBlock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round == nil || m.round.Index != index || m.round.State != Voting {
		return FinalizedBlock{}, false
	}

	m.round.VoteTally[hash]++

	winner, votes, tied := leadingHash(m.round.VoteTally)
	if votes <= totalPeers/2 {
		return FinalizedBlock{}, false
	}
	if tied {
		return FinalizedBlock{}, false
	}

	block := FinalizedBlock{
		Index:     m.round.Index,
		Content:   m.round.CurrentContent,
		Timestamp: m.round.Timestamp,
		Prev:      m.round.Prev,
		Nonce:     m.round.CurrentNonce,
		Hash:      winner,
	}
	m.round.State = Finalized
	m.log.WithField("index", index).WithField("hash", winner).Info("round Finalized")
	return block, true
}

// leadingHash returns the hash with the most votes, its vote count, and
// whether it is tied with another hash at the same count (in which case
// the lexicographically smaller hash is reported as winner but tied is
// true so the caller can decide whether the tie is actually decisive).
func leadingHash(tally map[string]int) (hash string, votes int, tied bool) {
	type entry struct {
		hash  string
		count int
	}
	entries := make([]entry, 0, len(tally))
	for h, c := range tally {
		entries = append(entries, entry{h, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].hash < entries[j].hash
	})
	if len(entries) == 0 {
		return "", 0, false
	}
	winner := entries[0]
	tiedWithNext := len(entries) > 1 && entries[1].count == winner.count
	return winner.hash, winner.count, tiedWithNext
}

// ResolveTie picks the lexicographically smallest hash among those tied
// for the lead at the round timeout, per the fixed tie-break rule.
func (m *Machine) ResolveTie(index uint64) (FinalizedBlock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round == nil || m.round.Index != index || m.round.State != Voting {
		return FinalizedBlock{}, false
	}

	best := ""
	bestVotes := -1
	for h, c := range m.round.VoteTally {
		if c > bestVotes || (c == bestVotes && h < best) {
			best = h
			bestVotes = c
		}
	}
	if bestVotes <= 0 {
		return FinalizedBlock{}, false
	}

	block := FinalizedBlock{
		Index:     m.round.Index,
		Content:   m.round.CurrentContent,
		Timestamp: m.round.Timestamp,
		Prev:      m.round.Prev,
		Nonce:     m.round.CurrentNonce,
		Hash:      best,
	}
	m.round.State = Finalized
	return block, true
}

// Reset returns the round to Idle, clearing pending content. Called on
// finalization and on round timeout.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = nil
	m.isCalculating = false
}

// StillMining reports whether this node is still the active miner for
// index — false once the round has moved on (finalized elsewhere, reset
// by timeout, or never matched this index), which the mining search uses
// as its cancellation signal (§5).
func (m *Machine) StillMining(index uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isCalculating && m.round != nil && m.round.Index == index
}

// CurrentState reports the active round's state, or Idle if no round is
// active.
func (m *Machine) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.round == nil {
		return Idle
	}
	return m.round.State
}

// TimedOut reports whether the active round has exceeded roundTimeout as
// of now.
func (m *Machine) TimedOut(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.round == nil {
		return false
	}
	return now.Sub(m.round.StartedAt) > roundTimeout
}

// HandleTimeout checks the active round against roundTimeout and, if it
// has expired while Voting, resolves the tie (§4.9 "at the deadline")
// before resetting to Idle. It returns the finalized block and true only
// when a timeout actually produced one; any other expired round (Idle,
// Collecting, Mining) is simply reset with no block.
func (m *Machine) HandleTimeout(now time.Time) (FinalizedBlock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round == nil || now.Sub(m.round.StartedAt) <= roundTimeout {
		return FinalizedBlock{}, false
	}

	var block FinalizedBlock
	var finalized bool
	if m.round.State == Voting {
		best := ""
		bestVotes := -1
		for h, c := range m.round.VoteTally {
			if c > bestVotes || (c == bestVotes && h < best) {
				best = h
				bestVotes = c
			}
		}
		if bestVotes > 0 {
			block = FinalizedBlock{
				Index:     m.round.Index,
				Content:   m.round.CurrentContent,
				Timestamp: m.round.Timestamp,
				Prev:      m.round.Prev,
				Nonce:     m.round.CurrentNonce,
				Hash:      best,
			}
			finalized = true
		}
	}

	m.round = nil
	m.isCalculating = false
	return block, finalized
}
