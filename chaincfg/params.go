// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the per-network chain parameters that the sync
// engine and mempool policy consult: magic bytes, default port, DNS seed
// list, checkpoints, assume-valid hash, and the minimum cumulative chain
// work floor.
package chaincfg

import (
	"math/big"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/wire"
)

// Network identifies one of the chains xpeerd knows how to speak to. It is
// an alias for wire.Network, since the wire frame's magic prefix and the
// chain parameters it selects are the same identifier.
type Network = wire.Network

// Magic values for each network's wire frame prefix, forwarded from the
// wire package so callers can write chaincfg.MainNet alongside
// chaincfg.MainNetParams().
const (
	MainNet  = wire.MainNet
	TestNet3 = wire.TestNet3
	TestNet4 = wire.TestNet4
	SigNet   = wire.SigNet
	RegNet   = wire.RegNet
)

// DNSSeed identifies a DNS seed used to discover peers at bootstrap.
type DNSSeed struct {
	Host string
	// HasFiltering indicates the seed supports filtering by service bit.
	HasFiltering bool
}

// Checkpoint identifies a block by (height, hash) that any chain claiming
// to be this network must match. A peer whose headers disagree at a
// checkpoint height is on the wrong chain.
type Checkpoint struct {
	Height int32
	Hash   chainhash.Hash
}

// Params defines the immutable parameters for a bitcoin-style network that
// the P2P engine and mempool policy consult. Params is never mutated after
// construction.
type Params struct {
	// Name is the human readable identifier, e.g. "mainnet".
	Name string

	// Net is the magic number identifying this network on the wire.
	Net Network

	// DefaultPort is the default peer-to-peer port for the network.
	DefaultPort string

	// DNSSeeds is the list of seeds used to discover peers at bootstrap.
	// Empty for regtest.
	DNSSeeds []DNSSeed

	// GenesisHash is the hash of the genesis block, implicit at height 0
	// of the header store.
	GenesisHash chainhash.Hash

	// Checkpoints is ordered strictly ascending by height.
	Checkpoints []Checkpoint

	// AssumeValid is, if non-nil, a hash below which the external
	// processor may skip signature verification. It is a hint only; the
	// core never interprets it.
	AssumeValid *chainhash.Hash

	// MinimumChainWork is, if non-nil, a 256-bit cumulative-work floor
	// (represented as a big.Int) below which a chain is not worth
	// following. A hint consumed
	// by the external processor; the core does not compute cumulative
	// work itself since that requires the per-block target, which lives
	// in the consensus engine.
	MinimumChainWork *big.Int
}

// CheckpointByHeight returns the checkpoint at the given height and true if
// one exists, else the zero value and false.
func (p *Params) CheckpointByHeight(height int32) (Checkpoint, bool) {
	for _, cp := range p.Checkpoints {
		if cp.Height == height {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// LatestCheckpointHeight returns the height of the final checkpoint, or -1
// if the network has none (regtest).
func (p *Params) LatestCheckpointHeight() int32 {
	if len(p.Checkpoints) == 0 {
		return -1
	}
	return p.Checkpoints[len(p.Checkpoints)-1].Height
}

func hashPtr(h chainhash.Hash) *chainhash.Hash { return &h }

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

func mustWork(hexStr string) *big.Int {
	u, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("chaincfg: invalid minimum chain work hex: " + hexStr)
	}
	return u
}

// ParamsForNetwork returns the registered Params for name, falling back to
// RegNetParams for any unknown or legacy network name per the network-enum
// fallback rule: an unrecognized chain gets regtest-shaped parameters
// (empty seed list, no checkpoints) rather than failing startup.
func ParamsForNetwork(name string) *Params {
	switch name {
	case "mainnet":
		return MainNetParams()
	case "testnet3":
		return TestNet3Params()
	case "testnet4":
		return TestNet4Params()
	case "signet":
		return SigNetParams()
	case "regtest", "regnet":
		return RegNetParams()
	default:
		return RegNetParams()
	}
}
