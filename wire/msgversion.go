// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// ProtocolVersion is the protocol version xpeerd advertises and requires
// of a peer before performing wtxid-relay negotiation.
const ProtocolVersion uint32 = 70016

// ServiceFlag is a bitfield advertising the services a peer supports.
type ServiceFlag uint64

const (
	// SFNodeNetwork indicates the peer serves the full block chain.
	SFNodeNetwork ServiceFlag = 1 << 0
	// SFNodeWitness indicates the peer can serve SegWit blocks and
	// transactions.
	SFNodeWitness ServiceFlag = 1 << 3
)

// HasFlag reports whether f is set in s.
func (s ServiceFlag) HasFlag(f ServiceFlag) bool { return s&f == f }

// NetAddress is the (services, ip, port) triple used in version and addr
// messages.
type NetAddress struct {
	Services ServiceFlag
	IP       [16]byte
	Port     uint16
}

// MsgVersion implements the Message interface for the version message,
// the first message exchanged in the handshake.
type MsgVersion struct {
	ProtocolVersion int32
	Services        ServiceFlag
	Timestamp       int64
	AddrYou         NetAddress
	AddrMe          NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	// Relay indicates whether transaction inv messages should be relayed
	// before bloom filters or wtxid relay is negotiated.
	Relay bool
}

// NewMsgVersion returns a MsgVersion advertising the given parameters.
// StartHeight is always the caller's validated tip, never a peer-reported
// value.
func NewMsgVersion(me, you NetAddress, nonce uint64, startHeight int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: int32(ProtocolVersion),
		Services:        SFNodeWitness,
		AddrYou:         you,
		AddrMe:          me,
		Nonce:           nonce,
		UserAgent:       "/xpeerd:0.1.0/",
		StartHeight:     startHeight,
		Relay:           true,
	}
}

func (m *MsgVersion) BtcDecode(r io.Reader) error {
	var services uint64
	if err := readElements(r, &m.ProtocolVersion, &services, &m.Timestamp); err != nil {
		return err
	}
	m.Services = ServiceFlag(services)

	if err := readNetAddress(r, &m.AddrYou); err != nil {
		return err
	}
	if err := readNetAddress(r, &m.AddrMe); err != nil {
		return err
	}
	if err := readElement(r, &m.Nonce); err != nil {
		return err
	}
	ua, err := ReadVarString(r)
	if err != nil {
		return err
	}
	m.UserAgent = ua
	if err := readElement(r, &m.StartHeight); err != nil {
		return err
	}
	// Relay is optional on the wire (older peers omit it); EOF here means
	// the peer implicitly wants relay enabled.
	if err := readElement(r, &m.Relay); err != nil {
		if err == io.EOF {
			m.Relay = true
			return nil
		}
		return err
	}
	return nil
}

func (m *MsgVersion) BtcEncode(w io.Writer) error {
	if err := writeElements(w, m.ProtocolVersion, uint64(m.Services), m.Timestamp); err != nil {
		return err
	}
	if err := writeNetAddress(w, m.AddrYou); err != nil {
		return err
	}
	if err := writeNetAddress(w, m.AddrMe); err != nil {
		return err
	}
	if err := writeElement(w, m.Nonce); err != nil {
		return err
	}
	if err := WriteVarString(w, m.UserAgent); err != nil {
		return err
	}
	if err := writeElement(w, m.StartHeight); err != nil {
		return err
	}
	return writeElement(w, m.Relay)
}

func (m *MsgVersion) Command() string          { return CmdVersion }
func (m *MsgVersion) MaxPayloadLength() uint32 { return 512 }

func readNetAddress(r io.Reader, na *NetAddress) error {
	var services uint64
	if err := readElement(r, &services); err != nil {
		return err
	}
	na.Services = ServiceFlag(services)
	if _, err := io.ReadFull(r, na.IP[:]); err != nil {
		return err
	}
	var portBytes [2]byte
	if _, err := io.ReadFull(r, portBytes[:]); err != nil {
		return err
	}
	na.Port = uint16(portBytes[0])<<8 | uint16(portBytes[1])
	return nil
}

func writeNetAddress(w io.Writer, na NetAddress) error {
	if err := writeElement(w, uint64(na.Services)); err != nil {
		return err
	}
	if _, err := w.Write(na.IP[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(na.Port >> 8), byte(na.Port)})
	return err
}

// MsgVerAck implements the Message interface for the empty verack
// message.
type MsgVerAck struct{}

func (m *MsgVerAck) BtcDecode(r io.Reader) error { return nil }
func (m *MsgVerAck) BtcEncode(w io.Writer) error { return nil }
func (m *MsgVerAck) Command() string             { return CmdVerAck }
func (m *MsgVerAck) MaxPayloadLength() uint32    { return 0 }

// MsgWtxidRelay implements the Message interface for the empty wtxidrelay
// message (BIP 339), which must precede verack for peers at protocol
// version >= 70016.
type MsgWtxidRelay struct{}

func (m *MsgWtxidRelay) BtcDecode(r io.Reader) error { return nil }
func (m *MsgWtxidRelay) BtcEncode(w io.Writer) error { return nil }
func (m *MsgWtxidRelay) Command() string             { return CmdWtxidRelay }
func (m *MsgWtxidRelay) MaxPayloadLength() uint32    { return 0 }

// MsgSendHeaders implements the Message interface for the empty
// sendheaders message.
type MsgSendHeaders struct{}

func (m *MsgSendHeaders) BtcDecode(r io.Reader) error { return nil }
func (m *MsgSendHeaders) BtcEncode(w io.Writer) error { return nil }
func (m *MsgSendHeaders) Command() string             { return CmdSendHeaders }
func (m *MsgSendHeaders) MaxPayloadLength() uint32    { return 0 }

// MsgSendCmpct implements the Message interface for the sendcmpct message.
// The engine negotiates compact blocks but treats received compact blocks
// as opaque hints rather than reconstructing them.
type MsgSendCmpct struct {
	Announce bool
	Version  uint64
}

func (m *MsgSendCmpct) BtcDecode(r io.Reader) error {
	return readElements(r, &m.Announce, &m.Version)
}
func (m *MsgSendCmpct) BtcEncode(w io.Writer) error {
	return writeElements(w, m.Announce, m.Version)
}
func (m *MsgSendCmpct) Command() string          { return CmdSendCmpct }
func (m *MsgSendCmpct) MaxPayloadLength() uint32 { return 9 }

// MsgGetAddr implements the Message interface for the empty getaddr
// message.
type MsgGetAddr struct{}

func (m *MsgGetAddr) BtcDecode(r io.Reader) error { return nil }
func (m *MsgGetAddr) BtcEncode(w io.Writer) error { return nil }
func (m *MsgGetAddr) Command() string             { return CmdGetAddr }
func (m *MsgGetAddr) MaxPayloadLength() uint32    { return 0 }
