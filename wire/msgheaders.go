// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

// MaxBlockLocatorsPerMsg is the maximum number of block locator hashes
// allowed per getheaders message.
const MaxBlockLocatorsPerMsg = 32

// MaxHeadersPerMsg is the maximum number of headers allowed in a single
// headers message, the batch size the sync machine's full-batch logic
// keys off of.
const MaxHeadersPerMsg = 2000

// MsgGetHeaders implements the Message interface for the getheaders
// message: a block locator plus a stop hash.
type MsgGetHeaders struct {
	ProtocolVersion    uint32
	BlockLocatorHashes []chainhash.Hash
	HashStop           chainhash.Hash
}

func (m *MsgGetHeaders) BtcDecode(r io.Reader) error {
	if err := readElement(r, &m.ProtocolVersion); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockLocatorsPerMsg {
		return fmt.Errorf("%w: too many block locator hashes "+
			"[count %d, max %d]", ErrMalformed, count, MaxBlockLocatorsPerMsg)
	}
	m.BlockLocatorHashes = make([]chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		var h chainhash.Hash
		if err := readElement(r, &h); err != nil {
			return err
		}
		m.BlockLocatorHashes = append(m.BlockLocatorHashes, h)
	}
	return readElement(r, &m.HashStop)
}

func (m *MsgGetHeaders) BtcEncode(w io.Writer) error {
	if len(m.BlockLocatorHashes) > MaxBlockLocatorsPerMsg {
		return fmt.Errorf("%w: too many block locator hashes "+
			"[count %d, max %d]", ErrMalformed, len(m.BlockLocatorHashes), MaxBlockLocatorsPerMsg)
	}
	if err := writeElement(w, m.ProtocolVersion); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.BlockLocatorHashes))); err != nil {
		return err
	}
	for i := range m.BlockLocatorHashes {
		if err := writeElement(w, &m.BlockLocatorHashes[i]); err != nil {
			return err
		}
	}
	return writeElement(w, &m.HashStop)
}

func (m *MsgGetHeaders) Command() string          { return CmdGetHeaders }
func (m *MsgGetHeaders) MaxPayloadLength() uint32 { return 4 + 9 + MaxBlockLocatorsPerMsg*32 + 32 }

// MsgHeaders implements the Message interface for the headers message: a
// batch of block headers with a trailing zero-length tx-count varint per
// header (the wire quirk the original protocol carries from MsgBlock).
type MsgHeaders struct {
	Headers []*BlockHeader
}

func (m *MsgHeaders) AddBlockHeader(h *BlockHeader) error {
	if len(m.Headers)+1 > MaxHeadersPerMsg {
		return fmt.Errorf("%w: headers message exceeds max of %d",
			ErrMalformed, MaxHeadersPerMsg)
	}
	m.Headers = append(m.Headers, h)
	return nil
}

func (m *MsgHeaders) BtcDecode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxHeadersPerMsg {
		return fmt.Errorf("%w: too many headers in message "+
			"[count %d, max %d]", ErrMalformed, count, MaxHeadersPerMsg)
	}
	m.Headers = make([]*BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		h := &BlockHeader{}
		if err := h.Deserialize(r); err != nil {
			return err
		}
		// Each header is followed by a txn_count varint which is
		// always zero in a headers message; consume and ignore it.
		txCount, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		if txCount != 0 {
			return fmt.Errorf("%w: headers message header carries "+
				"non-zero tx count %d", ErrMalformed, txCount)
		}
		m.Headers = append(m.Headers, h)
	}
	return nil
}

func (m *MsgHeaders) BtcEncode(w io.Writer) error {
	if len(m.Headers) > MaxHeadersPerMsg {
		return fmt.Errorf("%w: too many headers in message "+
			"[count %d, max %d]", ErrMalformed, len(m.Headers), MaxHeadersPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.Headers))); err != nil {
		return err
	}
	for _, h := range m.Headers {
		if err := h.Serialize(w); err != nil {
			return err
		}
		if err := WriteVarInt(w, 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgHeaders) Command() string          { return CmdHeaders }
func (m *MsgHeaders) MaxPayloadLength() uint32 { return 9 + MaxHeadersPerMsg*(BlockHeaderSize+1) }
