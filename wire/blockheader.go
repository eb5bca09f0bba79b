// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

// BlockHeaderSize is the number of bytes in the fixed, serialized form of a
// BlockHeader: version(4) + prev_hash(32) + merkle_root(32) + time(4) +
// bits(4) + nonce(4).
const BlockHeaderSize = 80

// BlockHeader defines information about a block and is used in the bitcoin
// block (MsgBlock) and headers (MsgHeaders) messages.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// BlockHash computes the block identifier hash for the header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	var buf bytes.Buffer
	buf.Grow(BlockHeaderSize)
	_ = h.Serialize(&buf)
	return chainhash.HashH(buf.Bytes())
}

// Serialize writes the 80-byte fixed-width header encoding to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	return writeElements(w, h.Version, &h.PrevBlock, &h.MerkleRoot,
		h.Timestamp, h.Bits, h.Nonce)
}

// Deserialize reads the 80-byte fixed-width header encoding from r.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	return readElements(r, &h.Version, &h.PrevBlock, &h.MerkleRoot,
		&h.Timestamp, &h.Bits, &h.Nonce)
}

func writeElements(w io.Writer, elements ...interface{}) error {
	for _, e := range elements {
		if err := writeElement(w, e); err != nil {
			return err
		}
	}
	return nil
}

func readElements(r io.Reader, elements ...interface{}) error {
	for _, e := range elements {
		if err := readElement(r, e); err != nil {
			return err
		}
	}
	return nil
}
