// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempool implements the unconfirmed transaction pool: entry
// bookkeeping with full ancestor/descendant
// aggregate tracking, per-network admission policy, RBF conflict
// resolution, size-based eviction, and block-template selection.
package mempool

import (
	"time"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/wire"
)

// FeeRate is a fee expressed in satoshis per virtual byte.
type FeeRate uint64

// FeeRateFromSatPerVB constructs a FeeRate directly from a sat/vB value.
func FeeRateFromSatPerVB(satPerVB uint64) FeeRate { return FeeRate(satPerVB) }

// FeeRateFromSatPerKVB constructs a FeeRate from a sat/kvB value, the unit
// most RPC and policy tables use.
func FeeRateFromSatPerKVB(satPerKVB uint64) FeeRate { return FeeRate(satPerKVB / 1000) }

// AsSatPerVB returns the rate in satoshis per virtual byte.
func (r FeeRate) AsSatPerVB() uint64 { return uint64(r) }

// AsSatPerKVB returns the rate in satoshis per thousand virtual bytes.
func (r FeeRate) AsSatPerKVB() uint64 { return uint64(r) * 1000 }

// FeeForVSize returns the fee owed by a transaction of the given virtual
// size at this rate.
func (r FeeRate) FeeForVSize(vsize int64) uint64 {
	if vsize <= 0 {
		return 0
	}
	return uint64(r) * uint64(vsize)
}

// MempoolEntry is one transaction held in the pool, together with
// ancestor/descendant aggregates that always reflect the full transitive
// closure (plus self).
type MempoolEntry struct {
	Tx    *wire.MsgTx
	Txid  chainhash.Hash
	VSize int64
	Fee   uint64

	Time   time.Time
	Height int32

	// SignalsRBF is true if any input's sequence number is below
	// 0xfffffffe (BIP 125).
	SignalsRBF bool

	Parents  map[chainhash.Hash]struct{}
	Children map[chainhash.Hash]struct{}

	AncestorSize  int64
	AncestorCount int
	AncestorFees  uint64

	DescendantSize  int64
	DescendantCount int
	DescendantFees  uint64
}

// FeeRate returns the entry's own fee rate (fee / vsize), ignoring
// ancestors and descendants.
func (e *MempoolEntry) FeeRate() FeeRate {
	if e.VSize <= 0 {
		return 0
	}
	return FeeRate(e.Fee / uint64(e.VSize))
}

// AncestorFeeRate is ancestor_fees / max(ancestor_size, 1), the metric the
// block-template selector sorts candidates by.
func (e *MempoolEntry) AncestorFeeRate() FeeRate {
	size := e.AncestorSize
	if size < 1 {
		size = 1
	}
	return FeeRate(e.AncestorFees / uint64(size))
}

// DescendantFeeRate is descendant_fees / max(descendant_size, 1).
func (e *MempoolEntry) DescendantFeeRate() FeeRate {
	size := e.DescendantSize
	if size < 1 {
		size = 1
	}
	return FeeRate(e.DescendantFees / uint64(size))
}

// newEntry builds a MempoolEntry from a raw transaction. The caller fills
// in the ancestor/descendant aggregates once parents are known.
func newEntry(tx *wire.MsgTx, fee uint64, height int32, now time.Time) *MempoolEntry {
	vsize := tx.VSize()
	signals := false
	for _, in := range tx.TxIn {
		if in.SignalsReplacement() {
			signals = true
			break
		}
	}
	e := &MempoolEntry{
		Tx:         tx,
		Txid:       tx.TxHash(),
		VSize:      vsize,
		Fee:        fee,
		Time:       now,
		Height:     height,
		SignalsRBF: signals,
		Parents:    make(map[chainhash.Hash]struct{}),
		Children:   make(map[chainhash.Hash]struct{}),
	}
	e.AncestorSize, e.AncestorCount, e.AncestorFees = vsize, 1, fee
	e.DescendantSize, e.DescendantCount, e.DescendantFees = vsize, 1, fee
	return e
}
