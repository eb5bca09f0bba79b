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

// witnessMarkerFlag is the two-byte marker (0x00) and flag (0x01) that
// precede a SegWit transaction's input count, per BIP 144.
var witnessMarkerFlag = [2]byte{0x00, 0x01}

// OutPoint defines a bitcoin data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxIn defines a bitcoin transaction input. xpeerd does not interpret
// SignatureScript or Witness beyond their byte length: script verification
// is an external collaborator's responsibility.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
	Witness          [][]byte
}

// SignalsReplacement reports whether the input's sequence number signals
// BIP 125 replaceability: any sequence < 0xfffffffe.
func (ti *TxIn) SignalsReplacement() bool {
	return ti.Sequence < 0xfffffffe
}

// TxOut defines a bitcoin transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// MsgTx implements the Message interface for the tx message.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// hasWitness reports whether any input carries witness data.
func (m *MsgTx) hasWitness() bool {
	for _, in := range m.TxIn {
		if len(in.Witness) > 0 {
			return true
		}
	}
	return false
}

// TxHash returns the transaction id: the double-SHA256 of the legacy
// (pre-SegWit) serialization.
func (m *MsgTx) TxHash() chainhash.Hash {
	var buf bytes.Buffer
	_ = m.serialize(&buf, false)
	return chainhash.HashH(buf.Bytes())
}

// SerializeSize returns the number of bytes the transaction occupies when
// serialized in its wire form (including witness data, if present).
func (m *MsgTx) SerializeSize() int {
	var buf bytes.Buffer
	_ = m.serialize(&buf, m.hasWitness())
	return buf.Len()
}

// BaseSize returns the legacy (witness-stripped) serialized size.
func (m *MsgTx) BaseSize() int {
	var buf bytes.Buffer
	_ = m.serialize(&buf, false)
	return buf.Len()
}

// Weight returns the SegWit transaction weight: 3*base_size + total_size.
// For a transaction with no witness data this reduces to 4*base_size.
func (m *MsgTx) Weight() int64 {
	base := m.BaseSize()
	if !m.hasWitness() {
		return int64(base) * 4
	}
	total := m.SerializeSize()
	return int64(base)*3 + int64(total)
}

// VSize returns the virtual size: weight/4 rounded up, the SegWit-aware
// size metric used for fee rate computation.
func (m *MsgTx) VSize() int64 {
	w := m.Weight()
	return (w + 3) / 4
}

func (m *MsgTx) serialize(w io.Writer, witness bool) error {
	if err := writeElement(w, m.Version); err != nil {
		return err
	}
	if witness {
		if _, err := w.Write(witnessMarkerFlag[:]); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(m.TxIn))); err != nil {
		return err
	}
	for _, in := range m.TxIn {
		if err := writeElement(w, &in.PreviousOutPoint.Hash); err != nil {
			return err
		}
		if err := writeElement(w, in.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := WriteVarBytes(w, in.SignatureScript); err != nil {
			return err
		}
		if err := writeElement(w, in.Sequence); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(m.TxOut))); err != nil {
		return err
	}
	for _, out := range m.TxOut {
		if err := writeElement(w, out.Value); err != nil {
			return err
		}
		if err := WriteVarBytes(w, out.PkScript); err != nil {
			return err
		}
	}
	if witness {
		for _, in := range m.TxIn {
			if err := WriteVarInt(w, uint64(len(in.Witness))); err != nil {
				return err
			}
			for _, item := range in.Witness {
				if err := WriteVarBytes(w, item); err != nil {
					return err
				}
			}
		}
	}
	return writeElement(w, m.LockTime)
}

// maxTxInPerMsg and maxTxOutPerMsg bound decode-time allocation; they are
// intentionally generous since the policy layer (mempool.Policy.MaxTxSize)
// enforces the real economic limit.
const (
	maxTxInPerMsg  = 100_000
	maxTxOutPerMsg = 100_000
)

func (m *MsgTx) BtcDecode(r io.Reader) error {
	if err := readElement(r, &m.Version); err != nil {
		return err
	}

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}

	witness := false
	if count == 0 {
		// Possible SegWit marker: a zero input count is otherwise
		// invalid, so a following flag byte of 0x01 signals SegWit
		// encoding.
		var flag [1]byte
		if _, err := io.ReadFull(r, flag[:]); err != nil {
			return err
		}
		if flag[0] != 0x01 {
			return ErrMalformed
		}
		witness = true
		count, err = ReadVarInt(r)
		if err != nil {
			return err
		}
	}
	if count > maxTxInPerMsg {
		return ErrMalformed
	}

	m.TxIn = make([]*TxIn, 0, count)
	for i := uint64(0); i < count; i++ {
		in := &TxIn{}
		if err := readElement(r, &in.PreviousOutPoint.Hash); err != nil {
			return err
		}
		if err := readElement(r, &in.PreviousOutPoint.Index); err != nil {
			return err
		}
		sigScript, err := ReadVarBytes(r, MaxMessagePayload, "signature script")
		if err != nil {
			return err
		}
		in.SignatureScript = sigScript
		if err := readElement(r, &in.Sequence); err != nil {
			return err
		}
		m.TxIn = append(m.TxIn, in)
	}

	outCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if outCount > maxTxOutPerMsg {
		return ErrMalformed
	}
	m.TxOut = make([]*TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out := &TxOut{}
		if err := readElement(r, &out.Value); err != nil {
			return err
		}
		pkScript, err := ReadVarBytes(r, MaxMessagePayload, "public key script")
		if err != nil {
			return err
		}
		out.PkScript = pkScript
		m.TxOut = append(m.TxOut, out)
	}

	if witness {
		for _, in := range m.TxIn {
			itemCount, err := ReadVarInt(r)
			if err != nil {
				return err
			}
			items := make([][]byte, 0, itemCount)
			for j := uint64(0); j < itemCount; j++ {
				item, err := ReadVarBytes(r, MaxMessagePayload, "witness item")
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			in.Witness = items
		}
	}

	return readElement(r, &m.LockTime)
}

func (m *MsgTx) BtcEncode(w io.Writer) error {
	return m.serialize(w, m.hasWitness())
}

func (m *MsgTx) Command() string          { return CmdTx }
func (m *MsgTx) MaxPayloadLength() uint32 { return MaxMessagePayload }

// MsgBlock carries a header plus the raw, undecoded transaction payload
// bytes that follow it. Block bodies are forwarded to the external
// BlockProcessor as opaque bytes; xpeerd decodes only the header
// so it can compute the block hash for scheduler bookkeeping.
type MsgBlock struct {
	Header       BlockHeader
	RawTxPayload []byte
}

func (m *MsgBlock) BlockHash() chainhash.Hash { return m.Header.BlockHash() }

func (m *MsgBlock) BtcDecode(r io.Reader) error {
	if err := m.Header.Deserialize(r); err != nil {
		return err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.RawTxPayload = raw
	return nil
}

func (m *MsgBlock) BtcEncode(w io.Writer) error {
	if err := m.Header.Serialize(w); err != nil {
		return err
	}
	_, err := w.Write(m.RawTxPayload)
	return err
}

func (m *MsgBlock) Command() string          { return CmdBlock }
func (m *MsgBlock) MaxPayloadLength() uint32 { return MaxMessagePayload }

// SerializeFull returns the full wire bytes of the block (header + raw
// transaction payload), the form handed to BlockProcessor.ProcessBlock.
func (m *MsgBlock) SerializeFull() []byte {
	var buf bytes.Buffer
	buf.Grow(BlockHeaderSize + len(m.RawTxPayload))
	_ = m.BtcEncode(&buf)
	return buf.Bytes()
}
