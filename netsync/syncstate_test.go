// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"testing"

	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/headerstore"
	"github.com/exccoin-labs/xpeerd/wire"
)

func newTestState(t *testing.T) (*SyncState, *headerstore.Store, *chaincfg.Params) {
	t.Helper()
	params := chaincfg.ParamsForNetwork("regtest")
	store, err := headerstore.Open(t.TempDir(), "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	sched := NewScheduler()
	s, err := New(params, store, sched)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, store, params
}

// chainOf builds n headers extending from prev, returning them in order.
func chainOf(prev chainhash.Hash, n int) []*wire.BlockHeader {
	headers := make([]*wire.BlockHeader, 0, n)
	for i := 0; i < n; i++ {
		h := &wire.BlockHeader{PrevBlock: prev, Timestamp: uint32(i + 1)}
		prev = h.BlockHash()
		headers = append(headers, h)
	}
	return headers
}

func TestExtendHeadersAppendsInOrder(t *testing.T) {
	s, store, params := newTestState(t)

	headers := chainOf(params.GenesisHash, 5)
	added, outcome, err := s.ExtendHeaders(headers, "peer0")
	if err != nil {
		t.Fatalf("ExtendHeaders: %v", err)
	}
	if added != 5 {
		t.Fatalf("added = %d, want 5", added)
	}
	if outcome != OutcomeCheckComplete {
		t.Fatalf("outcome = %v, want OutcomeCheckComplete", outcome)
	}
	if got := store.Len(); got != 5 {
		t.Fatalf("store.Len() = %d, want 5", got)
	}
	if got := s.HeaderChainHeight(); got != 5 {
		t.Fatalf("HeaderChainHeight() = %d, want 5", got)
	}
	for _, h := range headers {
		if !s.HaveHeader(h.BlockHash()) {
			t.Fatalf("HaveHeader(%s) = false, want true", h.BlockHash())
		}
	}
}

func TestExtendHeadersSkipsAlreadyKnown(t *testing.T) {
	s, _, params := newTestState(t)

	headers := chainOf(params.GenesisHash, 3)
	if _, _, err := s.ExtendHeaders(headers, "peer0"); err != nil {
		t.Fatalf("first ExtendHeaders: %v", err)
	}

	more := chainOf(headers[len(headers)-1].BlockHash(), 2)
	batch := append(append([]*wire.BlockHeader{}, headers...), more...)
	added, _, err := s.ExtendHeaders(batch, "peer0")
	if err != nil {
		t.Fatalf("second ExtendHeaders: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2 (only the new headers)", added)
	}
	if got := s.HeaderChainHeight(); got != 5 {
		t.Fatalf("HeaderChainHeight() = %d, want 5", got)
	}
}

func TestExtendHeadersChainBreakStopsWithoutRollback(t *testing.T) {
	s, _, params := newTestState(t)

	headers := chainOf(params.GenesisHash, 3)
	var broken chainhash.Hash
	broken[0] = 0xff // does not match any real cursor
	bad := &wire.BlockHeader{PrevBlock: broken, Timestamp: 99}
	batch := append(append([]*wire.BlockHeader{}, headers...), bad)

	added, _, err := s.ExtendHeaders(batch, "peer0")
	if err != ErrHeaderChainBreak {
		t.Fatalf("err = %v, want ErrHeaderChainBreak", err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3 (earlier headers kept)", added)
	}
	if got := s.HeaderChainHeight(); got != 3 {
		t.Fatalf("HeaderChainHeight() = %d, want 3 (no rollback)", got)
	}
}

func TestExtendHeadersImmediateFollowupOnFullBatch(t *testing.T) {
	s, _, params := newTestState(t)

	headers := chainOf(params.GenesisHash, wire.MaxHeadersPerMsg)
	added, outcome, err := s.ExtendHeaders(headers, "peer0")
	if err != nil {
		t.Fatalf("ExtendHeaders: %v", err)
	}
	if added != wire.MaxHeadersPerMsg {
		t.Fatalf("added = %d, want %d", added, wire.MaxHeadersPerMsg)
	}
	if outcome != OutcomeImmediateFollowup {
		t.Fatalf("outcome = %v, want OutcomeImmediateFollowup", outcome)
	}
}

func TestExtendHeadersChainMismatchOnFullBatchNoProgress(t *testing.T) {
	s, _, _ := newTestState(t)

	var unrelated chainhash.Hash
	unrelated[0] = 0x42
	headers := chainOf(unrelated, wire.MaxHeadersPerMsg)
	added, outcome, err := s.ExtendHeaders(headers, "peer0")
	if err != ErrHeaderChainBreak {
		t.Fatalf("err = %v, want ErrHeaderChainBreak", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
	if outcome != OutcomeChainMismatch {
		t.Fatalf("outcome = %v, want OutcomeChainMismatch", outcome)
	}
}

func TestCheckpointMismatchStopsBatchAndFlagsPeer(t *testing.T) {
	params := &chaincfg.Params{
		Name:        "test",
		GenesisHash: chainhash.Hash{},
	}
	store, err := headerstore.Open(t.TempDir(), "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	s, err := New(params, store, NewScheduler())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headers := chainOf(params.GenesisHash, 2)
	wrongHash := headers[1].BlockHash()
	wrongHash[0] ^= 0xff
	params.Checkpoints = []chaincfg.Checkpoint{{Height: 2, Hash: wrongHash}}

	added, outcome, err := s.ExtendHeaders(headers, "peer0")
	if outcome != OutcomeCheckpointMismatch {
		t.Fatalf("outcome = %v, want OutcomeCheckpointMismatch", outcome)
	}
	if _, ok := err.(*CheckpointMismatchError); !ok {
		t.Fatalf("err = %v (%T), want *CheckpointMismatchError", err, err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1 (height 1 kept, height 2 rejected)", added)
	}
	if got := s.HeaderChainHeight(); got != 1 {
		t.Fatalf("HeaderChainHeight() = %d, want 1", got)
	}
}

func TestSyncPeerElectionPrefersHighestStartHeight(t *testing.T) {
	s, _, _ := newTestState(t)

	s.PeerHandshakeComplete("peerA", wire.SFNodeNetwork, 100)
	if addr, ok := s.SyncPeer(); !ok || addr != "peerA" {
		t.Fatalf("SyncPeer() = (%s, %v), want (peerA, true)", addr, ok)
	}

	s.PeerHandshakeComplete("peerB", wire.SFNodeNetwork, 50)
	if addr, _ := s.SyncPeer(); addr != "peerA" {
		t.Fatalf("SyncPeer() = %s, want peerA (lower height should not replace)", addr)
	}

	s.PeerHandshakeComplete("peerC", wire.SFNodeNetwork, 200)
	if addr, _ := s.SyncPeer(); addr != "peerC" {
		t.Fatalf("SyncPeer() = %s, want peerC (higher height replaces)", addr)
	}
}

func TestSyncPeerElectionIgnoresNonNetworkPeers(t *testing.T) {
	s, _, _ := newTestState(t)
	s.PeerHandshakeComplete("peerA", 0, 100)
	if _, ok := s.SyncPeer(); ok {
		t.Fatalf("SyncPeer() claimed a sync peer without NODE_NETWORK")
	}
}

func TestPeerDisconnectedReelectsFromRemaining(t *testing.T) {
	s, _, _ := newTestState(t)
	s.PeerHandshakeComplete("peerA", wire.SFNodeNetwork, 200)
	s.PeerHandshakeComplete("peerB", wire.SFNodeNetwork, 100)

	s.PeerDisconnected("peerA")
	if addr, ok := s.SyncPeer(); !ok || addr != "peerB" {
		t.Fatalf("SyncPeer() = (%s, %v), want (peerB, true)", addr, ok)
	}
}

func TestDropSyncPeerExcludesDroppedFromReelection(t *testing.T) {
	s, _, _ := newTestState(t)
	s.PeerHandshakeComplete("peerA", wire.SFNodeNetwork, 300)
	s.PeerHandshakeComplete("peerB", wire.SFNodeNetwork, 100)

	// peerA is the sync peer (higher height); dropping it for a chain
	// mismatch must hand the role to peerB even though peerA remains
	// connected with the better height.
	s.DropSyncPeer(false)
	if addr, ok := s.SyncPeer(); !ok || addr != "peerB" {
		t.Fatalf("SyncPeer() after drop = (%s, %v), want (peerB, true)", addr, ok)
	}
}

func TestDropSyncPeerUntrustedNeverReelected(t *testing.T) {
	s, _, _ := newTestState(t)
	s.PeerHandshakeComplete("peerA", wire.SFNodeNetwork, 200)
	s.DropSyncPeer(true)

	if !s.IsUntrusted("peerA") {
		t.Fatalf("IsUntrusted(peerA) = false, want true")
	}
	s.PeerHandshakeComplete("peerA", wire.SFNodeNetwork, 300)
	if addr, ok := s.SyncPeer(); ok && addr == "peerA" {
		t.Fatalf("untrusted peer was re-elected as sync peer")
	}
}

func TestCheckHeadersSyncCompleteThresholdAndQueueing(t *testing.T) {
	s, _, params := newTestState(t)

	headers := chainOf(params.GenesisHash, 10)
	if _, _, err := s.ExtendHeaders(headers, "peer0"); err != nil {
		t.Fatalf("ExtendHeaders: %v", err)
	}

	s.PeerHandshakeComplete("peer0", wire.SFNodeNetwork, 200)
	if s.CheckHeadersSyncComplete(0) {
		t.Fatalf("CheckHeadersSyncComplete() = true, want false (10 << 200-144)")
	}

	s.bestKnownHeight = 10 + syncCompleteThreshold
	if !s.CheckHeadersSyncComplete(0) {
		t.Fatalf("CheckHeadersSyncComplete() = false, want true")
	}
	if !s.HeadersSynced() {
		t.Fatalf("HeadersSynced() = false after transition")
	}
	if s.CheckHeadersSyncComplete(0) {
		t.Fatalf("CheckHeadersSyncComplete() fired a second time")
	}
}

func TestBuildLocatorEndsAtGenesis(t *testing.T) {
	s, _, params := newTestState(t)
	headers := chainOf(params.GenesisHash, 50)
	if _, _, err := s.ExtendHeaders(headers, "peer0"); err != nil {
		t.Fatalf("ExtendHeaders: %v", err)
	}

	loc := s.BuildLocator()
	if len(loc) == 0 {
		t.Fatalf("BuildLocator() returned empty locator")
	}
	if loc[len(loc)-1] != params.GenesisHash {
		t.Fatalf("BuildLocator() last element = %s, want genesis %s", loc[len(loc)-1], params.GenesisHash)
	}
	if len(loc) > wire.MaxBlockLocatorsPerMsg {
		t.Fatalf("BuildLocator() returned %d hashes, want <= %d", len(loc), wire.MaxBlockLocatorsPerMsg)
	}
}
