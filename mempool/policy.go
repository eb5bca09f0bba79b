// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"time"
)

// Policy is the per-network admission and eviction configuration.
type Policy struct {
	MaxSize int64
	Expiry  time.Duration

	MinRelayFee FeeRate

	MaxAncestors      int
	MaxAncestorSize   int64
	MaxDescendants    int
	MaxDescendantSize int64

	MaxTxSize int64

	DustRelayFee        FeeRate
	IncrementalRelayFee FeeRate
	EnableRBF           bool
	RequireStandard     bool
}

// DefaultPolicy returns the mainnet policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxSize:             300 * 1024 * 1024,
		Expiry:              336 * time.Hour,
		MinRelayFee:         FeeRateFromSatPerVB(1),
		MaxAncestors:        25,
		MaxAncestorSize:     101 * 1024,
		MaxDescendants:      25,
		MaxDescendantSize:   101 * 1024,
		MaxTxSize:           100_000,
		DustRelayFee:        FeeRateFromSatPerVB(3),
		IncrementalRelayFee: FeeRateFromSatPerVB(1),
		EnableRBF:           true,
		RequireStandard:     true,
	}
}

// TestnetPolicy returns the testnet policy, identical to mainnet's.
func TestnetPolicy() Policy { return DefaultPolicy() }

// RegtestPolicy returns the regtest policy: zero relay fee floor and
// standardness checks disabled, so locally constructed test transactions
// are never rejected on policy grounds.
func RegtestPolicy() Policy {
	p := DefaultPolicy()
	p.MinRelayFee = FeeRateFromSatPerVB(0)
	p.RequireStandard = false
	return p
}

// PolicyForNetwork returns the named network's policy, falling back to
// RegtestPolicy for any unrecognized name (mirrors
// chaincfg.ParamsForNetwork's fallback rule).
func PolicyForNetwork(name string) Policy {
	switch name {
	case "mainnet":
		return DefaultPolicy()
	case "testnet3", "testnet4", "signet":
		return TestnetPolicy()
	default:
		return RegtestPolicy()
	}
}

// CheckAncestorLimits rejects a candidate whose resulting ancestor cluster
// would exceed either admission cap.
func (p *Policy) CheckAncestorLimits(count int, size int64) error {
	if count > p.MaxAncestors {
		return fmt.Errorf("too many ancestors: %d > %d", count, p.MaxAncestors)
	}
	if size > p.MaxAncestorSize {
		return fmt.Errorf("ancestor size too large: %d > %d", size, p.MaxAncestorSize)
	}
	return nil
}

// CheckDescendantLimits rejects a candidate whose resulting descendant
// cluster would exceed either admission cap.
func (p *Policy) CheckDescendantLimits(count int, size int64) error {
	if count > p.MaxDescendants {
		return fmt.Errorf("too many descendants: %d > %d", count, p.MaxDescendants)
	}
	if size > p.MaxDescendantSize {
		return fmt.Errorf("descendant size too large: %d > %d", size, p.MaxDescendantSize)
	}
	return nil
}

// CheckRBF enforces the BIP 125 fee rule: the replacement must pay at
// least incremental_relay_fee per byte of size delta beyond what it
// rebates in conflicting fees.
func (p *Policy) CheckRBF(feeDelta int64, sizeDelta int64) error {
	if !p.EnableRBF {
		return fmt.Errorf("replace-by-fee is disabled")
	}
	absSizeDelta := sizeDelta
	if absSizeDelta < 0 {
		absSizeDelta = -absSizeDelta
	}
	required := p.IncrementalRelayFee.FeeForVSize(absSizeDelta)
	if feeDelta < 0 || uint64(feeDelta) < required {
		return fmt.Errorf("insufficient fee for replacement: delta %d < required %d", feeDelta, required)
	}
	return nil
}

// DustThreshold returns the minimum output value (in satoshis) not
// considered dust for an output of the given byte size, using
// DustRelayFee as the base rate.
func (p *Policy) DustThreshold(outputSize int64) uint64 {
	return p.DustRelayFee.FeeForVSize(outputSize)
}
