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

// InvType represents the type of inventory vector.
type InvType uint32

const (
	InvTypeError InvType = 0
	InvTypeTx    InvType = 1
	InvTypeBlock InvType = 2
)

// MaxInvPerMsg is the maximum number of inventory vectors accepted in a
// single inv/getdata/notfound message.
const MaxInvPerMsg = 50000

// InvVect identifies a (type, hash) pair announced or requested via
// inv/getdata.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

func decodeInvList(r io.Reader) ([]InvVect, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxInvPerMsg {
		return nil, fmt.Errorf("%w: too many inventory vectors "+
			"[count %d, max %d]", ErrMalformed, count, MaxInvPerMsg)
	}
	list := make([]InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		var typ uint32
		var iv InvVect
		if err := readElement(r, &typ); err != nil {
			return nil, err
		}
		iv.Type = InvType(typ)
		if err := readElement(r, &iv.Hash); err != nil {
			return nil, err
		}
		list = append(list, iv)
	}
	return list, nil
}

func encodeInvList(w io.Writer, list []InvVect) error {
	if len(list) > MaxInvPerMsg {
		return fmt.Errorf("%w: too many inventory vectors "+
			"[count %d, max %d]", ErrMalformed, len(list), MaxInvPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(list))); err != nil {
		return err
	}
	for _, iv := range list {
		if err := writeElement(w, uint32(iv.Type)); err != nil {
			return err
		}
		if err := writeElement(w, &iv.Hash); err != nil {
			return err
		}
	}
	return nil
}

// MsgInv implements the Message interface for the inv message.
type MsgInv struct {
	InvList []InvVect
}

func (m *MsgInv) BtcDecode(r io.Reader) error {
	list, err := decodeInvList(r)
	m.InvList = list
	return err
}
func (m *MsgInv) BtcEncode(w io.Writer) error { return encodeInvList(w, m.InvList) }
func (m *MsgInv) Command() string             { return CmdInv }
func (m *MsgInv) MaxPayloadLength() uint32    { return 9 + MaxInvPerMsg*36 }

// MsgGetData implements the Message interface for the getdata message.
type MsgGetData struct {
	InvList []InvVect
}

func (m *MsgGetData) BtcDecode(r io.Reader) error {
	list, err := decodeInvList(r)
	m.InvList = list
	return err
}
func (m *MsgGetData) BtcEncode(w io.Writer) error { return encodeInvList(w, m.InvList) }
func (m *MsgGetData) Command() string             { return CmdGetData }
func (m *MsgGetData) MaxPayloadLength() uint32    { return 9 + MaxInvPerMsg*36 }

// MsgNotFound implements the Message interface for the notfound message,
// sent in reply to a getdata for inventory the peer no longer has.
type MsgNotFound struct {
	InvList []InvVect
}

func (m *MsgNotFound) BtcDecode(r io.Reader) error {
	list, err := decodeInvList(r)
	m.InvList = list
	return err
}
func (m *MsgNotFound) BtcEncode(w io.Writer) error { return encodeInvList(w, m.InvList) }
func (m *MsgNotFound) Command() string             { return CmdNotFound }
func (m *MsgNotFound) MaxPayloadLength() uint32    { return 9 + MaxInvPerMsg*36 }
