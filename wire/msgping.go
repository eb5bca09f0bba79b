// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPing implements the Message interface for the ping message.
type MsgPing struct {
	Nonce uint64
}

func (m *MsgPing) BtcDecode(r io.Reader) error { return readElement(r, &m.Nonce) }
func (m *MsgPing) BtcEncode(w io.Writer) error { return writeElement(w, m.Nonce) }
func (m *MsgPing) Command() string             { return CmdPing }
func (m *MsgPing) MaxPayloadLength() uint32    { return 8 }

// MsgPong implements the Message interface for the pong message, sent in
// reply to a ping with the same nonce.
type MsgPong struct {
	Nonce uint64
}

func (m *MsgPong) BtcDecode(r io.Reader) error { return readElement(r, &m.Nonce) }
func (m *MsgPong) BtcEncode(w io.Writer) error { return writeElement(w, m.Nonce) }
func (m *MsgPong) Command() string             { return CmdPong }
func (m *MsgPong) MaxPayloadLength() uint32    { return 8 }

// MsgFeeFilter implements the Message interface for the feefilter message:
// a requested minimum fee rate in sat/vB that the sender wants relayed to
// it.
type MsgFeeFilter struct {
	MinFee int64
}

func (m *MsgFeeFilter) BtcDecode(r io.Reader) error { return readElement(r, &m.MinFee) }
func (m *MsgFeeFilter) BtcEncode(w io.Writer) error { return writeElement(w, m.MinFee) }
func (m *MsgFeeFilter) Command() string             { return CmdFeeFilter }
func (m *MsgFeeFilter) MaxPayloadLength() uint32    { return 8 }

// MsgMemPool implements the Message interface for the empty mempool
// message, a request for the receiver's current mempool contents.
type MsgMemPool struct{}

func (m *MsgMemPool) BtcDecode(r io.Reader) error { return nil }
func (m *MsgMemPool) BtcEncode(w io.Writer) error { return nil }
func (m *MsgMemPool) Command() string             { return CmdMemPool }
func (m *MsgMemPool) MaxPayloadLength() uint32    { return 0 }

// RejectCode represents a reason a message or transaction was rejected, as
// used in the reject message.
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

// MsgReject implements the Message interface for the reject message.
type MsgReject struct {
	Cmd    string
	Code   RejectCode
	Reason string
	Hash   [32]byte
}

func (m *MsgReject) BtcDecode(r io.Reader) error {
	cmd, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.Cmd = cmd
	var code [1]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		return err
	}
	m.Code = RejectCode(code[0])
	reason, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.Reason = reason
	// Hash is only present for tx/block rejects; ignore absence.
	_, _ = io.ReadFull(r, m.Hash[:])
	return nil
}

func (m *MsgReject) BtcEncode(w io.Writer) error {
	if err := WriteVarString(w, m.Cmd); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.Code)}); err != nil {
		return err
	}
	if err := WriteVarString(w, m.Reason); err != nil {
		return err
	}
	if m.Cmd == CmdBlock || m.Cmd == CmdTx {
		_, err := w.Write(m.Hash[:])
		return err
	}
	return nil
}

func (m *MsgReject) Command() string          { return CmdReject }
func (m *MsgReject) MaxPayloadLength() uint32 { return MaxVarStringLen*2 + 32 + 10 }
