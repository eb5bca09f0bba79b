// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feeest implements a bucketed confirmation-count fee
// estimator: fixed sat/vB buckets, a per-bucket confirmation-count
// histogram indexed by blocks-to-confirmation, and a target-block fee
// estimate with a fallback when a bucket lacks enough samples.
package feeest

import (
	"sync"
	"time"

	"github.com/exccoin-labs/xpeerd/mempool"
)

// FeeRate is an alias to mempool.FeeRate so callers can pass values
// between the pool and the estimator without a conversion.
type FeeRate = mempool.FeeRate

// maxBlockTarget bounds how many blocks ahead a confirmation is tracked.
const maxBlockTarget = 25

// minConfirmationSamples is the minimum confirmation count a bucket needs
// before its fee rate is trusted as an estimate.
const minConfirmationSamples = 5

// maxHistory caps the in-memory sample history retained for Stats.
const maxHistory = 10000

// historyRetention prunes samples older than this on every UpdateHeight.
const historyRetention = 24 * time.Hour

// buckets are the fixed sat/vB fee-rate tiers the estimator tracks.
var buckets = [...]uint64{1, 2, 3, 5, 10, 20, 30, 50, 100, 200, 300, 500, 1000}

// Priority is a coarse confirmation-target shortcut over EstimateFee.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
	PriorityEconomy
)

// TargetBlocks returns the block target a priority level maps to.
func (p Priority) TargetBlocks() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 6
	case PriorityEconomy:
		return 12
	default:
		return 3
	}
}

type historicalSample struct {
	feeRate FeeRate
	time    time.Time
}

// Estimator produces target-block fee quotes from fixed fee-rate
// buckets of recent confirmation counts.
type Estimator struct {
	mu sync.Mutex

	history []historicalSample

	confirmations [len(buckets)][maxBlockTarget]int

	currentHeight int32
	minTrackedFee FeeRate
	fallbackFee   FeeRate
}

// New returns an Estimator seeded with the default minimum tracked fee
// (1 sat/vB) and fallback fee (20 sat/vB).
func New() *Estimator {
	return &Estimator{
		minTrackedFee: mempool.FeeRateFromSatPerVB(1),
		fallbackFee:   mempool.FeeRateFromSatPerVB(20),
	}
}

// AddTx records a sample entering the mempool at rate. Samples below the
// minimum tracked fee are dropped outright.
func (e *Estimator) AddTx(rate FeeRate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rate < e.minTrackedFee {
		return
	}
	e.history = append(e.history, historicalSample{feeRate: rate, time: time.Now()})
	if over := len(e.history) - maxHistory; over > 0 {
		e.history = e.history[over:]
	}
}

// ConfirmTx records that a transaction at rate confirmed at blockHeight,
// incrementing the confirmation histogram at
// [bucket(rate)][blockHeight-current_height].
func (e *Estimator) ConfirmTx(rate FeeRate, blockHeight int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bucket := e.findBucketLocked(rate)
	blocksToConfirm := int(blockHeight - e.currentHeight)
	if blocksToConfirm > 0 && blocksToConfirm < maxBlockTarget {
		e.confirmations[bucket][blocksToConfirm]++
	}
}

// UpdateHeight advances the estimator's notion of current height and
// prunes samples older than the rolling history window.
func (e *Estimator) UpdateHeight(height int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentHeight = height

	cutoff := time.Now().Add(-historyRetention)
	i := 0
	for i < len(e.history) && e.history[i].time.Before(cutoff) {
		i++
	}
	if i > 0 {
		e.history = e.history[i:]
	}
}

// EstimateFee returns the smallest bucket fee whose confirmation count at
// targetBlocks meets the minimum sample threshold, scanning buckets from
// lowest to highest fee rate and falling back to the configured fallback
// fee when no bucket qualifies.
func (e *Estimator) EstimateFee(targetBlocks int) FeeRate {
	e.mu.Lock()
	defer e.mu.Unlock()

	if targetBlocks <= 0 || targetBlocks >= maxBlockTarget {
		return e.fallbackFee
	}
	for i := 0; i < len(buckets); i++ {
		if e.confirmations[i][targetBlocks] >= minConfirmationSamples {
			return mempool.FeeRateFromSatPerVB(buckets[i])
		}
	}
	return e.fallbackFee
}

// EstimateFeeForPriority is EstimateFee keyed by the coarse Priority
// levels (High/Medium/Low/Economy).
func (e *Estimator) EstimateFeeForPriority(p Priority) FeeRate {
	return e.EstimateFee(p.TargetBlocks())
}

func (e *Estimator) findBucketLocked(rate FeeRate) int {
	satVB := rate.AsSatPerVB()
	for i, bucketFee := range buckets {
		if satVB <= bucketFee {
			return i
		}
	}
	return len(buckets) - 1
}

// SetFallbackFee overrides the fee returned when no bucket has enough
// samples.
func (e *Estimator) SetFallbackFee(rate FeeRate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallbackFee = rate
}

// Stats is a snapshot of the estimator's bookkeeping, for RPC's
// getmempoolinfo/getnetworkinfo-adjacent fee fields.
type Stats struct {
	TrackedSamples  int
	MinTrackedFee   FeeRate
	FallbackFee     FeeRate
	CurrentHeight   int32
	EconomyFee      FeeRate
	StandardFee     FeeRate
	HighPriorityFee FeeRate
}

// Stats returns a snapshot of the estimator's current state.
func (e *Estimator) Stats() Stats {
	e.mu.Lock()
	tracked := len(e.history)
	minFee := e.minTrackedFee
	fallback := e.fallbackFee
	height := e.currentHeight
	e.mu.Unlock()

	return Stats{
		TrackedSamples:  tracked,
		MinTrackedFee:   minFee,
		FallbackFee:     fallback,
		CurrentHeight:   height,
		EconomyFee:      e.EstimateFeeForPriority(PriorityEconomy),
		StandardFee:     e.EstimateFeeForPriority(PriorityMedium),
		HighPriorityFee: e.EstimateFeeForPriority(PriorityHigh),
	}
}
