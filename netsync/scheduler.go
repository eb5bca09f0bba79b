// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netsync implements the headers-first IBD sync state machine
// and the bounded concurrent block-download scheduler.
package netsync

import (
	"sync"
	"time"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

const (
	// GlobalWindow bounds the total number of blocks in flight across all
	// peers at once.
	GlobalWindow = 16
	// PerPeerWindow bounds the number of blocks in flight to any single
	// peer at once.
	PerPeerWindow = 4
	// BlockTimeout is the in-flight deadline for one assigned block.
	BlockTimeout = 120 * time.Second
	// MaxBlockAttempts is how many timeouts a hash may accumulate before
	// it is given up on entirely; it is requeued after each earlier one.
	MaxBlockAttempts = 3
)

type inFlightEntry struct {
	peer     string
	deadline time.Time
}

// Scheduler is a pure, synchronous download scheduler: a
// FIFO of wanted block hashes bounded by a global in-flight window and a
// per-peer in-flight window, with timeout-driven reassignment.
type Scheduler struct {
	mu sync.Mutex

	queue    []chainhash.Hash
	queued   map[chainhash.Hash]struct{}
	inFlight map[chainhash.Hash]inFlightEntry
	perPeer  map[string]int
	attempts map[chainhash.Hash]int

	totalQueued uint64
	completed   uint64
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		queued:   make(map[chainhash.Hash]struct{}),
		inFlight: make(map[chainhash.Hash]inFlightEntry),
		perPeer:  make(map[string]int),
		attempts: make(map[chainhash.Hash]int),
	}
}

// Push appends hashes to the queue, skipping any hash already queued or
// in flight so the queue/in-flight union never holds a duplicate.
func (s *Scheduler) Push(hashes []chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hashes {
		if _, ok := s.queued[h]; ok {
			continue
		}
		if _, ok := s.inFlight[h]; ok {
			continue
		}
		s.queue = append(s.queue, h)
		s.queued[h] = struct{}{}
		s.totalQueued++
	}
}

// Assign drains the queue into peer's in-flight set while the global and
// per-peer windows allow, returning the hashes newly assigned to peer.
func (s *Scheduler) Assign(peer string) []chainhash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chainhash.Hash
	for len(s.inFlight) < GlobalWindow && s.perPeer[peer] < PerPeerWindow {
		if len(s.queue) == 0 {
			break
		}
		h := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, h)

		s.inFlight[h] = inFlightEntry{peer: peer, deadline: time.Now().Add(BlockTimeout)}
		s.perPeer[peer]++
		out = append(out, h)
	}
	return out
}

// Complete removes hash from the in-flight set and credits the completion
// toward the peer it was assigned to. Completing a hash that isn't in
// flight (e.g. a duplicate block delivery) is a no-op.
func (s *Scheduler) Complete(hash chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.inFlight[hash]
	if !ok {
		return
	}
	delete(s.inFlight, hash)
	if s.perPeer[entry.peer] > 0 {
		s.perPeer[entry.peer]--
	}
	delete(s.attempts, hash)
	s.completed++
}

// ReassignTimeouts sweeps the in-flight set for entries whose deadline has
// passed. Hashes under MaxBlockAttempts are re-pushed to the queue; hashes
// that have now exhausted their attempts are returned in dead instead and
// are not re-queued.
func (s *Scheduler) ReassignTimeouts() (requeued, dead []chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expired []chainhash.Hash
	for h, entry := range s.inFlight {
		if entry.deadline.After(now) {
			continue
		}
		expired = append(expired, h)
		if s.perPeer[entry.peer] > 0 {
			s.perPeer[entry.peer]--
		}
		delete(s.inFlight, h)
	}

	for _, h := range expired {
		s.attempts[h]++
		if s.attempts[h] >= MaxBlockAttempts {
			delete(s.attempts, h)
			dead = append(dead, h)
			continue
		}
		s.queue = append(s.queue, h)
		s.queued[h] = struct{}{}
		requeued = append(requeued, h)
	}
	return requeued, dead
}

// Stats reports the scheduler's current queue depth, in-flight count, and
// cumulative totals, for diagnostics.
func (s *Scheduler) Stats() (queued, inFlight int, totalQueued, completed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), len(s.inFlight), s.totalQueued, s.completed
}

// PerPeerInFlight reports how many blocks are currently in flight to peer.
func (s *Scheduler) PerPeerInFlight(peer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perPeer[peer]
}
