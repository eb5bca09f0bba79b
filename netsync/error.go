// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"errors"
	"fmt"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

// ErrHeaderChainBreak indicates a header's PrevHash did not match the
// extension cursor. Already-applied headers earlier in the same batch are
// not rolled back; processing simply stops at this header.
var ErrHeaderChainBreak = errors.New("netsync: header chain break")

// CheckpointMismatchError indicates a header at a checkpoint height hashed
// to something other than the expected checkpoint hash. The peer is
// adversarial: it is dropped and never trusted again this session.
type CheckpointMismatchError struct {
	Height   int32
	Expected chainhash.Hash
	Got      chainhash.Hash
}

func (e *CheckpointMismatchError) Error() string {
	return fmt.Sprintf("netsync: checkpoint mismatch at height %d: expected %s, got %s",
		e.Height, e.Expected, e.Got)
}
