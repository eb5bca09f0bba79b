// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

// TestMessageRoundTrip verifies decode(encode(m)) == m for every message
// type in the catalog.
func TestMessageRoundTrip(t *testing.T) {
	hash := chainhash.HashH([]byte("xpeerd"))

	tests := []Message{
		NewMsgVersion(NetAddress{}, NetAddress{}, 1234, 100),
		&MsgVerAck{},
		&MsgWtxidRelay{},
		&MsgSendHeaders{},
		&MsgSendCmpct{Announce: true, Version: 1},
		&MsgGetAddr{},
		&MsgAddr{AddrList: []TimestampedAddress{{Timestamp: 1, NetAddress: NetAddress{Services: SFNodeNetwork, Port: 8333}}}},
		&MsgAddrV2{AddrList: []AddrV2Entry{{Timestamp: 1, Services: 1, NetworkID: 1, Addr: []byte{1, 2, 3, 4}, Port: 8333}}},
		&MsgPing{Nonce: 42},
		&MsgPong{Nonce: 42},
		&MsgGetHeaders{ProtocolVersion: ProtocolVersion, BlockLocatorHashes: []chainhash.Hash{hash}, HashStop: chainhash.Hash{}},
		&MsgHeaders{Headers: []*BlockHeader{{Version: 1, PrevBlock: hash, MerkleRoot: hash, Timestamp: 1, Bits: 2, Nonce: 3}}},
		&MsgInv{InvList: []InvVect{{Type: InvTypeBlock, Hash: hash}}},
		&MsgGetData{InvList: []InvVect{{Type: InvTypeTx, Hash: hash}}},
		&MsgNotFound{InvList: []InvVect{{Type: InvTypeTx, Hash: hash}}},
		&MsgFeeFilter{MinFee: 1000},
		&MsgMemPool{},
		&MsgReject{Cmd: CmdTx, Code: RejectInsufficientFee, Reason: "fee too low"},
		&MsgTx{
			Version: 1,
			TxIn: []*TxIn{{
				PreviousOutPoint: OutPoint{Hash: hash, Index: 0},
				SignatureScript:  []byte{0x01, 0x02},
				Sequence:         0xffffffff,
			}},
			TxOut: []*TxOut{{Value: 5000, PkScript: []byte{0xac}}},
		},
	}

	for _, msg := range tests {
		var buf bytes.Buffer
		if err := WriteMessage(&buf, msg, ProtocolVersion, MainNet); err != nil {
			t.Fatalf("%s: WriteMessage: %v", msg.Command(), err)
		}
		got, _, err := ReadMessage(&buf, ProtocolVersion, MainNet)
		if err != nil {
			t.Fatalf("%s: ReadMessage: %v", msg.Command(), err)
		}
		if !reflect.DeepEqual(got, msg) {
			t.Fatalf("%s: round trip mismatch\n got: %#v\nwant: %#v", msg.Command(), got, msg)
		}
	}
}

// TestReadMessageBadMagic verifies a magic mismatch is reported as
// malformed.
func TestReadMessageBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, &MsgVerAck{}, ProtocolVersion, MainNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	raw := buf.Bytes()
	raw[0] ^= 0xff // corrupt the magic

	if _, _, err := ReadMessage(bytes.NewReader(raw), ProtocolVersion, MainNet); err == nil {
		t.Fatal("expected magic mismatch error, got nil")
	}
}

// TestReadMessageBadChecksum verifies a corrupted payload is rejected via
// the checksum.
func TestReadMessageBadChecksum(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, &MsgPing{Nonce: 7}, ProtocolVersion, MainNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff // corrupt the last payload byte

	if _, _, err := ReadMessage(bytes.NewReader(raw), ProtocolVersion, MainNet); err == nil {
		t.Fatal("expected checksum mismatch error, got nil")
	}
}

// TestReadMessageEarlyEOF verifies a cleanly closed connection before any
// frame bytes is reported as ErrEarlyEOF rather than a generic error.
func TestReadMessageEarlyEOF(t *testing.T) {
	if _, _, err := ReadMessage(bytes.NewReader(nil), ProtocolVersion, MainNet); err != ErrEarlyEOF {
		t.Fatalf("ReadMessage on empty reader = %v, want ErrEarlyEOF", err)
	}
}

// TestUnknownCommand verifies an unrecognized command decodes to an opaque
// MsgUnknown rather than failing.
func TestUnknownCommand(t *testing.T) {
	var payloadBuf bytes.Buffer
	payloadBuf.WriteString("hello")

	var frame bytes.Buffer
	frame.Write([]byte{0xf9, 0xbe, 0xb4, 0xd9}) // mainnet magic, but written directly
	var cmd [12]byte
	copy(cmd[:], "bogus")
	frame.Write(cmd[:])
	var lenBuf [4]byte
	littleEndian.PutUint32(lenBuf[:], uint32(payloadBuf.Len()))
	frame.Write(lenBuf[:])
	sum := checksum(payloadBuf.Bytes())
	frame.Write(sum[:])
	frame.Write(payloadBuf.Bytes())

	msg, _, err := ReadMessage(&frame, ProtocolVersion, MainNet)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	unk, ok := msg.(*MsgUnknown)
	if !ok {
		t.Fatalf("expected *MsgUnknown, got %T", msg)
	}
	if unk.Cmd != "bogus" || string(unk.Payload) != "hello" {
		t.Fatalf("unexpected MsgUnknown: %+v", unk)
	}
}

// TestTxVSize exercises the weight/vsize computation for both legacy and
// witness-carrying transactions.
func TestTxVSize(t *testing.T) {
	hash := chainhash.HashH([]byte("prevout"))
	legacy := &MsgTx{
		Version: 1,
		TxIn: []*TxIn{{
			PreviousOutPoint: OutPoint{Hash: hash, Index: 0},
			SignatureScript:  bytes.Repeat([]byte{0x01}, 100),
			Sequence:         0xfffffffd,
		}},
		TxOut: []*TxOut{{Value: 1000, PkScript: []byte{0xac}}},
	}
	if !legacy.TxIn[0].SignalsReplacement() {
		t.Fatal("sequence 0xfffffffd must signal replacement")
	}
	wantVSize := legacy.BaseSize() // no witness: weight == 4*base, vsize == base
	if got := legacy.VSize(); got != int64(wantVSize) {
		t.Fatalf("legacy VSize = %d, want %d", got, wantVSize)
	}

	withWitness := &MsgTx{
		Version: 1,
		TxIn: []*TxIn{{
			PreviousOutPoint: OutPoint{Hash: hash, Index: 0},
			Sequence:         0xffffffff,
			Witness:          [][]byte{{0x01, 0x02, 0x03}},
		}},
		TxOut: []*TxOut{{Value: 1000, PkScript: []byte{0xac}}},
	}
	base := withWitness.BaseSize()
	total := withWitness.SerializeSize()
	wantWeight := int64(base)*3 + int64(total)
	if got := withWitness.Weight(); got != wantWeight {
		t.Fatalf("witness Weight = %d, want %d", got, wantWeight)
	}
}
