// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockprocessor defines the contract between the sync engine
// and the external chainstate/consensus collaborator: xpeerd hands it opaque, framed block bytes in strict FIFO order
// and consults it for tip bookkeeping, but never interprets scripts,
// validates proof of work, or maintains a UTXO set itself.
package blockprocessor

import "github.com/exccoin-labs/xpeerd/chaincfg/chainhash"

// Outcome is the external processor's verdict on one submitted block.
type Outcome int

const (
	// Accepted means the block extended (or reorganized onto) the
	// processor's chain. NewTip reports whether it became the new tip.
	Accepted Outcome = iota
	// AlreadyKnown means the processor had already validated this block.
	// This is not an error and requires no corrective action.
	AlreadyKnown
	// Invalid means the block failed validation; Reason holds a
	// human-readable explanation.
	Invalid
)

// Result is returned by ProcessBlock for one submitted block.
type Result struct {
	Outcome Outcome
	NewTip  bool
	Reason  string
}

// BlockProcessor is implemented by the external chainstate/consensus
// component. ProcessBlock is called sequentially from exactly one
// goroutine (single-consumer block channel), so
// implementations need no internal locking against concurrent calls to
// ProcessBlock itself, though TipHeight/BestBlockHash/BlockHashAt may be
// called concurrently from the RPC façade.
type BlockProcessor interface {
	// ProcessBlock validates and, if valid, applies raw (a full
	// serialized block: 80-byte header plus transaction payload).
	ProcessBlock(raw []byte) (Result, error)

	// TipHeight returns the height of the current best chain, or -1 if
	// no chain exists yet.
	TipHeight() int32

	// BestBlockHash returns the hash of the current tip. It is an error
	// to call this when TipHeight returns -1.
	BestBlockHash() (chainhash.Hash, error)

	// BlockHashAt returns the hash of the block at height on the best
	// chain. It is an error for height to be out of range.
	BlockHashAt(height int32) (chainhash.Hash, error)
}
