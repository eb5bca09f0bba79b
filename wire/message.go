// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

// Commands used in bitcoin message headers which describe the type of
// message. This is the full supported catalog; any other command string
// decodes to an *MsgUnknown that higher layers ignore.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdWtxidRelay  = "wtxidrelay"
	CmdSendHeaders = "sendheaders"
	CmdSendCmpct   = "sendcmpct"
	CmdGetAddr     = "getaddr"
	CmdAddr        = "addr"
	CmdAddrV2      = "addrv2"
	CmdPing        = "ping"
	CmdPong        = "pong"
	CmdGetHeaders  = "getheaders"
	CmdHeaders     = "headers"
	CmdInv         = "inv"
	CmdGetData     = "getdata"
	CmdNotFound    = "notfound"
	CmdBlock       = "block"
	CmdTx          = "tx"
	CmdFeeFilter   = "feefilter"
	CmdMemPool     = "mempool"
	CmdReject      = "reject"
)

// commandSize is the fixed size in bytes of a command field: a
// null-padded ASCII string.
const commandSize = 12

// MaxMessagePayload is the maximum allowed size, in bytes, of a message
// payload accepted by the codec. A peer advertising a larger payload is
// malformed.
const MaxMessagePayload = 32 * 1024 * 1024

// MessageHeaderSize is the number of bytes in a wire frame's header:
// magic(4) + command(12) + length(4) + checksum(4).
const MessageHeaderSize = 4 + commandSize + 4 + 4

// Message is implemented by every type in the message catalog.
type Message interface {
	BtcDecode(r io.Reader) error
	BtcEncode(w io.Writer) error
	Command() string
	MaxPayloadLength() uint32
}

// MsgUnknown wraps the opaque payload of a command xpeerd's catalog does
// not recognize. Unknown commands are delivered to higher layers rather
// than treated as malformed.
type MsgUnknown struct {
	Cmd     string
	Payload []byte
}

func (m *MsgUnknown) BtcDecode(r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.Payload = buf
	return nil
}

func (m *MsgUnknown) BtcEncode(w io.Writer) error {
	_, err := w.Write(m.Payload)
	return err
}

func (m *MsgUnknown) Command() string          { return m.Cmd }
func (m *MsgUnknown) MaxPayloadLength() uint32 { return MaxMessagePayload }

// makeEmptyMessage returns a fresh, zero-valued Message for the given
// command, or an *MsgUnknown if the command is not in the catalog.
func makeEmptyMessage(command string) Message {
	switch command {
	case CmdVersion:
		return &MsgVersion{}
	case CmdVerAck:
		return &MsgVerAck{}
	case CmdWtxidRelay:
		return &MsgWtxidRelay{}
	case CmdSendHeaders:
		return &MsgSendHeaders{}
	case CmdSendCmpct:
		return &MsgSendCmpct{}
	case CmdGetAddr:
		return &MsgGetAddr{}
	case CmdAddr:
		return &MsgAddr{}
	case CmdAddrV2:
		return &MsgAddrV2{}
	case CmdPing:
		return &MsgPing{}
	case CmdPong:
		return &MsgPong{}
	case CmdGetHeaders:
		return &MsgGetHeaders{}
	case CmdHeaders:
		return &MsgHeaders{}
	case CmdInv:
		return &MsgInv{}
	case CmdGetData:
		return &MsgGetData{}
	case CmdNotFound:
		return &MsgNotFound{}
	case CmdBlock:
		return &MsgBlock{}
	case CmdTx:
		return &MsgTx{}
	case CmdFeeFilter:
		return &MsgFeeFilter{}
	case CmdMemPool:
		return &MsgMemPool{}
	case CmdReject:
		return &MsgReject{}
	default:
		return &MsgUnknown{Cmd: command}
	}
}

// checksum returns the first 4 bytes of the double-SHA256 of payload.
func checksum(payload []byte) [4]byte {
	h := chainhash.HashB(payload)
	var sum [4]byte
	copy(sum[:], h[:4])
	return sum
}

// WriteMessage encodes and frames msg onto w for the given network magic:
// magic(4) || command(12) || len(4) || checksum(4) || payload.
func WriteMessage(w io.Writer, msg Message, pver uint32, magic Network) error {
	var payloadBuf bytes.Buffer
	if err := msg.BtcEncode(&payloadBuf); err != nil {
		return err
	}
	payload := payloadBuf.Bytes()
	if uint32(len(payload)) > msg.MaxPayloadLength() {
		return fmt.Errorf("%w: %s payload of %d bytes exceeds max of %d",
			ErrMalformed, msg.Command(), len(payload), msg.MaxPayloadLength())
	}

	var cmd [commandSize]byte
	copy(cmd[:], msg.Command())

	var header bytes.Buffer
	header.Grow(MessageHeaderSize)
	_ = binary.Write(&header, littleEndian, uint32(magic))
	header.Write(cmd[:])
	_ = binary.Write(&header, littleEndian, uint32(len(payload)))
	sum := checksum(payload)
	header.Write(sum[:])

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadMessage reads one complete, framed message from r for the given
// network magic. It distinguishes EarlyEof (peer closed cleanly before
// any bytes of a new frame) from Malformed (a frame began but failed to
// parse), so callers can tell a dead peer from a misbehaving one.
func ReadMessage(r io.Reader, pver uint32, magic Network) (Message, []byte, error) {
	var header [MessageHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, nil, ErrEarlyEOF
		}
		return nil, nil, err
	}

	gotMagic := Network(littleEndian.Uint32(header[0:4]))
	if gotMagic != magic {
		return nil, nil, fmt.Errorf("%w: unexpected network magic %08x, want %08x",
			ErrMalformed, gotMagic, magic)
	}

	cmdBytes := header[4 : 4+commandSize]
	n := bytes.IndexByte(cmdBytes, 0)
	if n == -1 {
		n = commandSize
	}
	command := string(cmdBytes[:n])

	length := littleEndian.Uint32(header[4+commandSize : 4+commandSize+4])
	wantChecksum := header[4+commandSize+4:]

	msg := makeEmptyMessage(command)
	if length > msg.MaxPayloadLength() {
		return nil, nil, fmt.Errorf("%w: %s payload of %d bytes exceeds max of %d",
			ErrMalformed, command, length, msg.MaxPayloadLength())
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("%w: short payload read: %v", ErrMalformed, err)
	}

	gotChecksum := checksum(payload)
	if !bytes.Equal(gotChecksum[:], wantChecksum) {
		return nil, nil, fmt.Errorf("%w: checksum mismatch for command %q", ErrMalformed, command)
	}

	if err := msg.BtcDecode(bytes.NewReader(payload)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return msg, payload, nil
}
