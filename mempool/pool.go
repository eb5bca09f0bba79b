// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/wire"
)

// ErrAlreadyInPool indicates add_tx was called with a txid already held.
var ErrAlreadyInPool = errors.New("mempool: transaction already in pool")

// ErrConflict indicates a non-replaceable double spend of an input already
// spent by a pooled transaction.
var ErrConflict = errors.New("mempool: conflicts with existing pool transaction")

// ErrNotInPool indicates remove_tx was called for an unknown txid.
var ErrNotInPool = errors.New("mempool: transaction not in pool")

// FeeEstimator is the subset of the fee estimator the pool notifies of
// admitted and confirmed fee rates. Accepting the narrow interface here
// (rather than importing package feeest directly) keeps the pool testable
// without a concrete estimator.
type FeeEstimator interface {
	AddTx(rate FeeRate)
	ConfirmTx(rate FeeRate, blockHeight int32)
	UpdateHeight(height int32)
}

// noopEstimator discards every sample; used when a caller doesn't need
// fee estimation (e.g. regtest harnesses).
type noopEstimator struct{}

func (noopEstimator) AddTx(FeeRate)            {}
func (noopEstimator) ConfirmTx(FeeRate, int32) {}
func (noopEstimator) UpdateHeight(int32)       {}

// Pool is the unconfirmed transaction graph: admission with RBF conflict
// resolution, full ancestor/descendant aggregate bookkeeping, size-based
// eviction, and block-template selection. The mempool is the one
// subsystem read concurrently (the RPC façade) while the event loop
// writes, so Pool is safe for concurrent use.
type Pool struct {
	mu sync.RWMutex

	policy    Policy
	estimator FeeEstimator

	entries map[chainhash.Hash]*MempoolEntry
	spends  map[wire.OutPoint]chainhash.Hash

	totalSize     int64
	totalFees     uint64
	currentHeight int32
}

// NewPool returns an empty Pool governed by policy. estimator may be nil,
// in which case fee samples are discarded.
func NewPool(policy Policy, estimator FeeEstimator) *Pool {
	if estimator == nil {
		estimator = noopEstimator{}
	}
	return &Pool{
		policy:    policy,
		estimator: estimator,
		entries:   make(map[chainhash.Hash]*MempoolEntry),
		spends:    make(map[wire.OutPoint]chainhash.Hash),
	}
}

// AddTx admits tx at the given fee (in satoshis) and block height. On
// success it returns the transaction's id.
func (p *Pool) AddTx(tx *wire.MsgTx, fee uint64, height int32) (chainhash.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	txid := tx.TxHash()
	if _, ok := p.entries[txid]; ok {
		return txid, ErrAlreadyInPool
	}

	vsize := tx.VSize()
	if vsize > p.policy.MaxTxSize {
		return txid, fmt.Errorf("mempool: tx too large: %d > %d", vsize, p.policy.MaxTxSize)
	}

	entry := newEntry(tx, fee, height, time.Now())

	minFee := p.policy.MinRelayFee.FeeForVSize(vsize)
	if fee < minFee {
		return txid, fmt.Errorf("mempool: fee rate too low: %d < %d sat", fee, minFee)
	}

	conflicts := p.findConflictsLocked(tx)
	if len(conflicts) > 0 && !entry.SignalsRBF {
		return txid, ErrConflict
	}
	if len(conflicts) > 0 {
		if err := p.handleReplacementLocked(entry, conflicts); err != nil {
			return txid, err
		}
	}

	parents := p.findParentsLocked(tx)
	ancestorCount, ancestorSize, ancestorFees := p.sumParentAncestorsLocked(parents)
	if err := p.policy.CheckAncestorLimits(ancestorCount+1, ancestorSize+vsize); err != nil {
		return txid, err
	}

	entry.Parents = parents
	entry.AncestorCount = ancestorCount + 1
	entry.AncestorSize = ancestorSize + vsize
	entry.AncestorFees = ancestorFees + fee

	for _, in := range tx.TxIn {
		p.spends[in.PreviousOutPoint] = txid
	}

	for parentTxid := range parents {
		if parent, ok := p.entries[parentTxid]; ok {
			parent.Children[txid] = struct{}{}
		}
	}
	// Propagate the new entry's size/fee/count to every ancestor's
	// descendant aggregate, not just its direct parents: the DFS over
	// the full parent closure so descendant_count/size/fees two hops up
	// stay correct after this insertion. entry has
	// no children yet, so its own Descendant aggregate is just itself.
	for _, ancestorTxid := range p.ancestorClosureLocked(parents) {
		if ancestor, ok := p.entries[ancestorTxid]; ok {
			ancestor.DescendantSize += entry.DescendantSize
			ancestor.DescendantFees += entry.DescendantFees
			ancestor.DescendantCount += entry.DescendantCount
		}
	}

	p.entries[txid] = entry
	p.totalSize += vsize
	p.totalFees += fee
	p.estimator.AddTx(entry.FeeRate())

	p.maybeEvictLocked()

	return txid, nil
}

// RemoveTx removes txid and returns its entry. Removing a transaction with
// present children is permitted; the children's Parents set simply drops
// the removed id.
func (p *Pool) RemoveTx(txid chainhash.Hash) (*MempoolEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeTxLocked(txid)
}

func (p *Pool) removeTxLocked(txid chainhash.Hash) (*MempoolEntry, error) {
	entry, ok := p.entries[txid]
	if !ok {
		return nil, ErrNotInPool
	}
	delete(p.entries, txid)

	for _, in := range entry.Tx.TxIn {
		if spender, ok := p.spends[in.PreviousOutPoint]; ok && spender == txid {
			delete(p.spends, in.PreviousOutPoint)
		}
	}

	for parentTxid := range entry.Parents {
		if parent, ok := p.entries[parentTxid]; ok {
			delete(parent.Children, txid)
		}
	}
	// entry.Descendant* already covers entry plus whatever of its own
	// descendants (e.g. C) remain attached through it; removing entry
	// detaches them from every ancestor in one step, which is why the
	// delta is entry's full Descendant aggregate and not just 1/self.
	for _, ancestorTxid := range p.ancestorClosureLocked(entry.Parents) {
		if ancestor, ok := p.entries[ancestorTxid]; ok {
			ancestor.DescendantSize -= entry.DescendantSize
			ancestor.DescendantFees -= entry.DescendantFees
			ancestor.DescendantCount -= entry.DescendantCount
		}
	}

	for childTxid := range entry.Children {
		if child, ok := p.entries[childTxid]; ok {
			delete(child.Parents, txid)
		}
	}
	// Mirror image: entry's whole Ancestor aggregate (itself plus
	// whatever ancestor chain it carried) is detached from every
	// descendant still reachable through it.
	for _, descendantTxid := range p.descendantClosureLocked(entry.Children) {
		if descendant, ok := p.entries[descendantTxid]; ok {
			descendant.AncestorSize -= entry.AncestorSize
			descendant.AncestorFees -= entry.AncestorFees
			descendant.AncestorCount -= entry.AncestorCount
		}
	}

	p.totalSize -= entry.VSize
	p.totalFees -= entry.Fee
	return entry, nil
}

func (p *Pool) findConflictsLocked(tx *wire.MsgTx) []chainhash.Hash {
	seen := make(map[chainhash.Hash]struct{})
	var conflicts []chainhash.Hash
	for _, in := range tx.TxIn {
		if existing, ok := p.spends[in.PreviousOutPoint]; ok {
			if _, dup := seen[existing]; !dup {
				seen[existing] = struct{}{}
				conflicts = append(conflicts, existing)
			}
		}
	}
	return conflicts
}

func (p *Pool) findParentsLocked(tx *wire.MsgTx) map[chainhash.Hash]struct{} {
	parents := make(map[chainhash.Hash]struct{})
	for _, in := range tx.TxIn {
		if _, ok := p.entries[in.PreviousOutPoint.Hash]; ok {
			parents[in.PreviousOutPoint.Hash] = struct{}{}
		}
	}
	return parents
}

// sumParentAncestorsLocked sums the direct parents' own ancestor
// aggregates, which already include their own ancestors (so the caller
// adds self once on top).
func (p *Pool) sumParentAncestorsLocked(parents map[chainhash.Hash]struct{}) (count int, size int64, fees uint64) {
	for parentTxid := range parents {
		if parent, ok := p.entries[parentTxid]; ok {
			count += parent.AncestorCount
			size += parent.AncestorSize
			fees += parent.AncestorFees
		}
	}
	return count, size, fees
}

// ancestorClosureLocked returns every transitive ancestor reachable from
// start's Parents sets (start itself excluded), via DFS over the parent
// graph, each id appearing once.
func (p *Pool) ancestorClosureLocked(start map[chainhash.Hash]struct{}) []chainhash.Hash {
	visited := make(map[chainhash.Hash]struct{})
	var stack, out []chainhash.Hash
	for txid := range start {
		stack = append(stack, txid)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		out = append(out, cur)
		if entry, ok := p.entries[cur]; ok {
			for parent := range entry.Parents {
				if _, ok := visited[parent]; !ok {
					stack = append(stack, parent)
				}
			}
		}
	}
	return out
}

// descendantClosureLocked is the mirror of ancestorClosureLocked over the
// Children graph.
func (p *Pool) descendantClosureLocked(start map[chainhash.Hash]struct{}) []chainhash.Hash {
	visited := make(map[chainhash.Hash]struct{})
	var stack, out []chainhash.Hash
	for txid := range start {
		stack = append(stack, txid)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		out = append(out, cur)
		if entry, ok := p.entries[cur]; ok {
			for child := range entry.Children {
				if _, ok := visited[child]; !ok {
					stack = append(stack, child)
				}
			}
		}
	}
	return out
}

// handleReplacementLocked applies the BIP 125 rules: every conflict must
// itself signal replacement, the fee delta must clear the incremental
// relay fee for the size delta, and on success the conflicts are removed.
func (p *Pool) handleReplacementLocked(newEntry *MempoolEntry, conflicts []chainhash.Hash) error {
	var conflictFees uint64
	var conflictSize int64
	for _, txid := range conflicts {
		conflict, ok := p.entries[txid]
		if !ok {
			continue
		}
		if !conflict.SignalsRBF {
			return fmt.Errorf("mempool: conflicting tx %s does not signal replacement", txid)
		}
		conflictFees += conflict.Fee
		conflictSize += conflict.VSize
	}

	feeDelta := int64(newEntry.Fee) - int64(conflictFees)
	sizeDelta := newEntry.VSize - conflictSize
	if err := p.policy.CheckRBF(feeDelta, sizeDelta); err != nil {
		return err
	}

	for _, txid := range conflicts {
		if _, err := p.removeTxLocked(txid); err != nil && !errors.Is(err, ErrNotInPool) {
			return err
		}
	}
	return nil
}

// maybeEvictLocked repeatedly drops the lowest fee-rate entry while the
// pool exceeds its size budget.
func (p *Pool) maybeEvictLocked() {
	for p.totalSize > p.policy.MaxSize && len(p.entries) > 0 {
		var (
			worstTxid chainhash.Hash
			worstRate FeeRate
			first     = true
		)
		for txid, entry := range p.entries {
			rate := entry.FeeRate()
			if first || rate < worstRate {
				worstTxid, worstRate, first = txid, rate, false
			}
		}
		p.removeTxLocked(worstTxid)
	}
}

// UpdateHeight advances the pool's notion of current height, forwards it
// to the fee estimator, and drops every entry older than the policy's
// expiry window.
func (p *Pool) UpdateHeight(height int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentHeight = height
	p.estimator.UpdateHeight(height)

	cutoff := time.Now().Add(-p.policy.Expiry)
	var expired []chainhash.Hash
	for txid, entry := range p.entries {
		if entry.Time.Before(cutoff) {
			expired = append(expired, txid)
		}
	}
	for _, txid := range expired {
		p.removeTxLocked(txid)
	}
}

// RemoveForBlock drops every txid that was just mined at height from the
// pool (if present) and reports its fee rate as confirmed to the fee
// estimator, then applies the height update and expiry sweep.
func (p *Pool) RemoveForBlock(txids []chainhash.Hash, height int32) {
	p.mu.Lock()
	for _, txid := range txids {
		entry, ok := p.entries[txid]
		if !ok {
			continue
		}
		rate := entry.FeeRate()
		if _, err := p.removeTxLocked(txid); err == nil {
			p.estimator.ConfirmTx(rate, height)
		}
	}
	p.mu.Unlock()
	p.UpdateHeight(height)
}

// GetBlockTemplate returns transactions to fill a block of at most
// maxWeight (vsize*4), choosing candidates by descending ancestor fee
// rate and pulling in each candidate's not-yet-included ancestors first,
// .
func (p *Pool) GetBlockTemplate(maxWeight int64) []*wire.MsgTx {
	p.mu.RLock()
	defer p.mu.RUnlock()

	candidates := make([]*MempoolEntry, 0, len(p.entries))
	for _, entry := range p.entries {
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].AncestorFeeRate() > candidates[j].AncestorFeeRate()
	})

	var (
		template      []*wire.MsgTx
		included      = make(map[chainhash.Hash]struct{})
		currentWeight int64
	)

	for _, entry := range candidates {
		if _, ok := included[entry.Txid]; ok {
			continue
		}
		txWeight := entry.VSize * 4

		ancestors := p.ancestorClosureLocked(entry.Parents)
		sort.Slice(ancestors, func(i, j int) bool {
			ai, aj := p.entries[ancestors[i]], p.entries[ancestors[j]]
			if ai == nil || aj == nil {
				return false
			}
			return ai.AncestorCount < aj.AncestorCount
		})

		var pending int64
		fits := true
		for _, ancestorTxid := range ancestors {
			if _, ok := included[ancestorTxid]; ok {
				continue
			}
			ancestor, ok := p.entries[ancestorTxid]
			if !ok {
				continue
			}
			if currentWeight+pending+ancestor.VSize*4 > maxWeight {
				fits = false
				break
			}
			pending += ancestor.VSize * 4
		}
		if !fits || currentWeight+pending+txWeight > maxWeight {
			continue
		}

		for _, ancestorTxid := range ancestors {
			if _, ok := included[ancestorTxid]; ok {
				continue
			}
			if ancestor, ok := p.entries[ancestorTxid]; ok {
				template = append(template, ancestor.Tx)
				included[ancestorTxid] = struct{}{}
				currentWeight += ancestor.VSize * 4
			}
		}
		template = append(template, entry.Tx)
		included[entry.Txid] = struct{}{}
		currentWeight += txWeight
	}

	return template
}

// GetTx returns the pooled transaction for txid, if present.
func (p *Pool) GetTx(txid chainhash.Hash) (*wire.MsgTx, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[txid]
	if !ok {
		return nil, false
	}
	return entry.Tx, true
}

// Contains reports whether txid is currently pooled.
func (p *Pool) Contains(txid chainhash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[txid]
	return ok
}

// Stats is a snapshot of pool-wide totals, the shape RPC's
// getmempoolinfo consumes.
type Stats struct {
	Size          int
	Bytes         int64
	TotalFees     uint64
	MaxSize       int64
	MinRelayFee   FeeRate
	CurrentHeight int32
}

// Stats returns a snapshot of the pool's current totals.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Size:          len(p.entries),
		Bytes:         p.totalSize,
		TotalFees:     p.totalFees,
		MaxSize:       p.policy.MaxSize,
		MinRelayFee:   p.policy.MinRelayFee,
		CurrentHeight: p.currentHeight,
	}
}

// AllTxids returns every pooled transaction id, in no particular order.
func (p *Pool) AllTxids() []chainhash.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chainhash.Hash, 0, len(p.entries))
	for txid := range p.entries {
		out = append(out, txid)
	}
	return out
}

// Entry returns a copy of the bookkeeping for txid, for RPC's
// getrawmempool verbose mode.
func (p *Pool) Entry(txid chainhash.Hash) (MempoolEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[txid]
	if !ok {
		return MempoolEntry{}, false
	}
	return *entry, true
}
