// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine owns the peer manager event loop: single
// threaded cooperative scheduling over every connected peer's socket,
// bounded per-tick receives, and the message dispatch table that wires
// together netsync, the download scheduler, the mempool, the fee
// estimator, and the external BlockProcessor.
package engine

import (
	"time"

	"github.com/exccoin-labs/xpeerd/blockprocessor"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/mempool"
	"github.com/exccoin-labs/xpeerd/wire"
)

const (
	// ibdRecvTimeout is the per-peer bounded receive during initial block
	// download, generous enough to tolerate large header batches.
	ibdRecvTimeout = 2 * time.Second
	// caughtUpRecvTimeout is the bounded receive once headers are synced,
	// favoring responsiveness over large-batch tolerance.
	caughtUpRecvTimeout = 100 * time.Millisecond

	// maxAddrRelay bounds how many addresses are handed back in response
	// to a peer's getaddr.
	maxAddrRelay = 1000

	// blockQueueDepth bounds the single-consumer block processing
	// channel. When the processor falls behind by this many blocks the
	// event loop blocks on the enqueue until it catches up; blocks are
	// never dropped.
	blockQueueDepth = 64

	// pingInterval spaces the liveness pings broadcast to every connected
	// peer.
	pingInterval = 2 * time.Minute
)

// FeeOracle supplies the satoshi fee paid by tx, the one piece of data the
// mempool engine needs that xpeerd's core cannot derive itself: computing
// a fee requires looking up the value of every spent output, and UTXO
// maintenance belongs to the external BlockProcessor. An integrator that wants mempool admission for relayed
// transactions supplies a FeeOracle backed by its own UTXO view; Manager
// runs without one (fee-rate-gated mempool, but no in-flight tx
// admission) when nil.
type FeeOracle interface {
	// TxFee returns the fee tx pays and true, or false if one of its
	// inputs' values is not yet known (e.g. its parent is still
	// unconfirmed and unseen).
	TxFee(tx *wire.MsgTx) (fee uint64, ok bool)
}

// Config collects everything Manager needs to run: the network
// parameters, the data directory for header and address-manager
// persistence, the explicitly configured peers from the --peer flag,
// and the external collaborators.
type Config struct {
	Params    *chaincfg.Params
	DataDir   string
	Peers     []string
	UserAgent string

	Processor blockprocessor.BlockProcessor
	FeeOracle FeeOracle
	Policy    mempool.Policy
}
