// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"sync"
	"time"

	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/headerstore"
	"github.com/exccoin-labs/xpeerd/wire"
)

// Phase is one of the headers-first IBD states. BlockDownloading and
// CaughtUp are the terminal states.
type Phase int

const (
	PhaseBootstrapNeeded Phase = iota
	PhaseHeadersSyncing
	PhaseHeadersSyncComplete
	PhaseBlockDownloading
	PhaseCaughtUp
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrapNeeded:
		return "bootstrap-needed"
	case PhaseHeadersSyncing:
		return "headers-syncing"
	case PhaseHeadersSyncComplete:
		return "headers-sync-complete"
	case PhaseBlockDownloading:
		return "block-downloading"
	case PhaseCaughtUp:
		return "caught-up"
	default:
		return "unknown"
	}
}

// syncCompleteThreshold is the block-height slack accepted before headers
// are considered synced (144 blocks, ~1 day).
const syncCompleteThreshold = 144

// headerStallLimit is how long we tolerate a sync peer with no headers
// batch before replacing it.
const headerStallLimit = 15 * time.Minute

// initialHeaderRequestDelay and fallbackHeaderRequestInterval govern the
// GetHeaders re-request timer.
const (
	initialHeaderRequestDelay     = 1 * time.Second
	fallbackHeaderRequestInterval = 2 * time.Second
	immediateFollowupSuppressTime = 60 * time.Second
)

// ExtendOutcome classifies the decision to take after processing one
// headers batch.
type ExtendOutcome int

const (
	// OutcomeImmediateFollowup: batch was a full 2000 and at least one
	// header was newly added; issue another GetHeaders to the same peer
	// right away and suppress the fallback timer for 60s.
	OutcomeImmediateFollowup ExtendOutcome = iota
	// OutcomeChainMismatch: batch was a full 2000 but nothing new was
	// added; the peer is on the wrong chain. Drop it and re-elect.
	OutcomeChainMismatch
	// OutcomeCheckComplete: a partial or empty batch; check whether
	// headers sync is now complete.
	OutcomeCheckComplete
	// OutcomeCheckpointMismatch: a header at a checkpoint height hashed
	// to something unexpected. The batch stops at that header and the
	// peer must be dropped as adversarial.
	OutcomeCheckpointMismatch
)

// peerInfo is what the sync state machine needs to remember about a
// handshaken peer for sync-peer election.
type peerInfo struct {
	services    wire.ServiceFlag
	startHeight int32
}

// SyncState is the headers-first IBD state machine: sync
// peer election, locator construction, header extension with checkpoint
// enforcement, and the sync-complete predicate. It owns no network I/O;
// the engine package drives it from received messages and timers.
type SyncState struct {
	mu sync.Mutex

	params *chaincfg.Params
	store  *headerstore.Store
	sched  *Scheduler

	headersSynced bool

	syncPeer     string
	haveSyncPeer bool
	peers        map[string]peerInfo
	untrusted    map[string]struct{}

	bestKnownHeight   int32
	headerChainHeight int32

	// haveHeader and recentChain track the full header chain since
	// genesis, indexed by height; recentChain is the locator source and
	// the queue of hashes handed to the download scheduler.
	haveHeader  map[chainhash.Hash]struct{}
	recentChain []chainhash.Hash
	cursor      chainhash.Hash

	syncPeerSelectedAt    time.Time
	lastHeaderRequestAt   time.Time
	suppressFallbackUntil time.Time
	lastHeadersReceivedAt time.Time
}

// New returns a SyncState seeded from store's current contents (which may
// be empty, for a fresh node, or already populated from a prior run).
func New(params *chaincfg.Params, store *headerstore.Store, sched *Scheduler) (*SyncState, error) {
	s := &SyncState{
		params:      params,
		store:       store,
		sched:       sched,
		peers:       make(map[string]peerInfo),
		untrusted:   make(map[string]struct{}),
		haveHeader:  make(map[chainhash.Hash]struct{}),
		recentChain: []chainhash.Hash{params.GenesisHash},
		cursor:      params.GenesisHash,
	}
	s.haveHeader[params.GenesisHash] = struct{}{}

	n := store.Len()
	for h := int32(1); h <= n; h++ {
		hash, err := store.HashAt(h)
		if err != nil {
			return nil, err
		}
		s.haveHeader[hash] = struct{}{}
		s.recentChain = append(s.recentChain, hash)
		s.cursor = hash
	}
	s.headerChainHeight = n
	return s, nil
}

// HeadersSynced reports whether the headers-first phase has completed.
func (s *SyncState) HeadersSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headersSynced
}

// HeaderChainHeight reports the current header chain height.
func (s *SyncState) HeaderChainHeight() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headerChainHeight
}

// HaveHeader reports whether hash is already present in the header chain
// (including genesis), for O(1) inv/getdata filtering.
func (s *SyncState) HaveHeader(hash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.haveHeader[hash]
	return ok
}

// SyncPeer returns the current sync peer address and whether one is set.
func (s *SyncState) SyncPeer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncPeer, s.haveSyncPeer
}

// MarkUntrusted flags addr as adversarial (e.g. a checkpoint mismatch) so
// it is never elected sync peer again this session.
func (s *SyncState) MarkUntrusted(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.untrusted[addr] = struct{}{}
}

// IsUntrusted reports whether addr was dropped for checkpoint mismatch and
// must never be re-elected sync peer this session.
func (s *SyncState) IsUntrusted(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.untrusted[addr]
	return ok
}

// PeerHandshakeComplete records a newly handshaken peer's advertised
// services and start height, updates the network's best known height, and
// applies the sync-peer election rule: qualify on NODE_NETWORK
// service and start_height > 0, then prefer the highest start_height,
// replacing the current sync peer only if this one strictly exceeds it.
func (s *SyncState) PeerHandshakeComplete(addr string, services wire.ServiceFlag, startHeight int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peers[addr] = peerInfo{services: services, startHeight: startHeight}
	if startHeight > s.bestKnownHeight {
		s.bestKnownHeight = startHeight
	}

	if s.headersSynced {
		return
	}
	if _, bad := s.untrusted[addr]; bad {
		return
	}
	if !services.HasFlag(wire.SFNodeNetwork) || startHeight <= 0 {
		return
	}

	if !s.haveSyncPeer {
		s.electSyncPeerLocked(addr, startHeight)
		return
	}
	if current, ok := s.peers[s.syncPeer]; !ok || startHeight > current.startHeight {
		s.electSyncPeerLocked(addr, startHeight)
	}
}

func (s *SyncState) electSyncPeerLocked(addr string, startHeight int32) {
	s.syncPeer = addr
	s.haveSyncPeer = true
	s.syncPeerSelectedAt = time.Now()
	s.lastHeaderRequestAt = time.Time{}
	s.lastHeadersReceivedAt = time.Now()
}

// PeerDisconnected drops bookkeeping for addr. If addr was the sync peer,
// it is cleared and a replacement is elected from the remaining connected
// peers, if any qualify.
func (s *SyncState) PeerDisconnected(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, addr)
	if s.haveSyncPeer && s.syncPeer == addr {
		s.clearSyncPeerLocked()
		s.electBestRemainingLocked("")
	}
}

// DropSyncPeer clears the current sync peer (e.g. on stall, chain
// mismatch, or checkpoint mismatch) without removing it from the
// connected-peers map, and elects a replacement from the other connected
// peers; the dropped peer is excluded from this election. Actually
// disconnecting the peer session, where warranted, is the caller's job.
func (s *SyncState) DropSyncPeer(markUntrusted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := ""
	if s.haveSyncPeer {
		dropped = s.syncPeer
		if markUntrusted {
			s.untrusted[dropped] = struct{}{}
		}
	}
	s.clearSyncPeerLocked()
	s.electBestRemainingLocked(dropped)
}

func (s *SyncState) clearSyncPeerLocked() {
	s.syncPeer = ""
	s.haveSyncPeer = false
}

func (s *SyncState) electBestRemainingLocked(exclude string) {
	var (
		bestAddr   string
		bestHeight int32 = -1
	)
	for addr, info := range s.peers {
		if addr == exclude {
			continue
		}
		if _, bad := s.untrusted[addr]; bad {
			continue
		}
		if !info.services.HasFlag(wire.SFNodeNetwork) || info.startHeight <= 0 {
			continue
		}
		if info.startHeight > bestHeight {
			bestAddr = addr
			bestHeight = info.startHeight
		}
	}
	if bestHeight >= 0 {
		s.electSyncPeerLocked(bestAddr, bestHeight)
	}
}

// StallElapsed reports whether the current sync peer has gone silent for
// longer than the 15-minute stall limit.
func (s *SyncState) StallElapsed(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveSyncPeer || s.headersSynced {
		return false
	}
	return now.Sub(s.lastHeadersReceivedAt) > headerStallLimit
}

// BuildLocator constructs a block locator from recent_chain: the most
// recent 10 hashes with step 1, then a doubling step, until 32 hashes are
// accumulated or genesis is reached. Genesis is always the final element.
func (s *SyncState) BuildLocator() []chainhash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocatorLocked()
}

func (s *SyncState) buildLocatorLocked() []chainhash.Hash {
	n := len(s.recentChain)
	loc := make([]chainhash.Hash, 0, wire.MaxBlockLocatorsPerMsg)
	step := 1
	idx := n - 1
	for len(loc) < wire.MaxBlockLocatorsPerMsg {
		loc = append(loc, s.recentChain[idx])
		if idx == 0 {
			break
		}
		idx -= step
		if idx < 0 {
			idx = 0
		}
		if len(loc) >= 10 {
			step *= 2
		}
	}
	if loc[len(loc)-1] != s.recentChain[0] {
		// The loop filled every slot before reaching genesis; genesis
		// must still terminate the locator, so it takes the final slot.
		loc[len(loc)-1] = s.recentChain[0]
	}
	return loc
}

// ShouldIssueHeaderRequest reports whether it is time to (re-)send
// GetHeaders to the sync peer: an initial request 1s after sync-peer
// selection, fallback every 2s thereafter, suspended for 60s after an
// immediate full-batch follow-up.
func (s *SyncState) ShouldIssueHeaderRequest(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headersSynced || !s.haveSyncPeer {
		return false
	}
	if s.lastHeaderRequestAt.IsZero() {
		return now.Sub(s.syncPeerSelectedAt) >= initialHeaderRequestDelay
	}
	if now.Before(s.suppressFallbackUntil) {
		return false
	}
	return now.Sub(s.lastHeaderRequestAt) >= fallbackHeaderRequestInterval
}

// MarkHeaderRequestSent records that a GetHeaders was just issued.
func (s *SyncState) MarkHeaderRequestSent(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeaderRequestAt = now
}

// ExtendHeaders processes one headers batch from fromAddr, iterating in
// order: skip already-known headers (advancing the
// cursor so later entries can still connect), stop at the first header
// whose PrevHash doesn't match the cursor, and enforce any checkpoint at
// the height being appended. Returns the count of newly appended headers
// and the decision the caller (the engine event loop) must act on.
func (s *SyncState) ExtendHeaders(headers []*wire.BlockHeader, fromAddr string) (added int, outcome ExtendOutcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeadersReceivedAt = time.Now()
	cursor := s.cursor

	for _, h := range headers {
		hash := h.BlockHash()
		if _, known := s.haveHeader[hash]; known {
			cursor = hash
			continue
		}
		if h.PrevBlock != cursor {
			err = ErrHeaderChainBreak
			break
		}

		nextHeight := s.headerChainHeight + 1
		if cp, ok := s.params.CheckpointByHeight(nextHeight); ok && hash != cp.Hash {
			s.cursor = cursor
			return added, OutcomeCheckpointMismatch, &CheckpointMismatchError{
				Height:   nextHeight,
				Expected: cp.Hash,
				Got:      hash,
			}
		}

		if appendErr := s.store.Append(*h); appendErr != nil {
			s.cursor = cursor
			return added, OutcomeCheckComplete, appendErr
		}
		s.haveHeader[hash] = struct{}{}
		s.recentChain = append(s.recentChain, hash)
		s.headerChainHeight++
		cursor = hash
		added++
	}
	s.cursor = cursor

	switch {
	case len(headers) == wire.MaxHeadersPerMsg && added > 0:
		s.suppressFallbackUntil = time.Now().Add(immediateFollowupSuppressTime)
		outcome = OutcomeImmediateFollowup
	case len(headers) == wire.MaxHeadersPerMsg && added == 0:
		outcome = OutcomeChainMismatch
	default:
		outcome = OutcomeCheckComplete
	}
	return added, outcome, err
}

// CheckHeadersSyncComplete applies the sync-complete predicate:
// best_known_height > 0 and header_chain_height within 144 blocks of it. On the transition, every recent_chain hash strictly above
// processorTipHeight is queued into the download scheduler. Returns true
// exactly once, on the transition.
func (s *SyncState) CheckHeadersSyncComplete(processorTipHeight int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headersSynced {
		return false
	}
	if s.bestKnownHeight <= 0 || s.headerChainHeight < s.bestKnownHeight-syncCompleteThreshold {
		return false
	}

	s.headersSynced = true

	floor := processorTipHeight
	if int32(len(s.recentChain))-1 > floor {
		toQueue := make([]chainhash.Hash, 0, int32(len(s.recentChain))-1-floor)
		for h := floor + 1; h <= s.headerChainHeight; h++ {
			toQueue = append(toQueue, s.recentChain[h])
		}
		s.sched.Push(toQueue)
	}
	return true
}

// Phase reports the coarse sync phase for diagnostics and RPC.
func (s *SyncState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.haveSyncPeer && !s.headersSynced && len(s.peers) == 0:
		return PhaseBootstrapNeeded
	case !s.headersSynced:
		return PhaseHeadersSyncing
	}
	queued, inFlight, _, _ := s.sched.Stats()
	if queued > 0 || inFlight > 0 {
		return PhaseBlockDownloading
	}
	return PhaseCaughtUp
}

// BestKnownHeight reports the highest start_height any handshaken peer has
// advertised.
func (s *SyncState) BestKnownHeight() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestKnownHeight
}
