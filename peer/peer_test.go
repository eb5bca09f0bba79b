// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/wire"
)

// remoteHandshake drives the "other side" of a handshake over a net.Pipe
// connection, recording in arrival order every command the peer under test
// sends. remoteProtocolVersion is the protocol version the remote claims in
// its own version message, to exercise the BIP 339 wtxidrelay-ordering
// rule. After replying to verack, remoteHandshake keeps draining the
// post-handshake announcement burst (sendheaders/sendcmpct/getaddr) so the
// peer under test's writes never block on an unread net.Pipe.
func remoteHandshake(t *testing.T, conn net.Conn, remoteProtocolVersion int32) ([]string, error) {
	t.Helper()

	var order []string

	msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.RegNet)
	if err != nil {
		return nil, err
	}
	if _, ok := msg.(*wire.MsgVersion); !ok {
		t.Fatalf("first message = %s, want version", spew.Sdump(msg))
	}
	order = append(order, wire.CmdVersion)

	ver := wire.NewMsgVersion(wire.NetAddress{}, wire.NetAddress{}, 1, 0)
	ver.ProtocolVersion = remoteProtocolVersion
	if err := wire.WriteMessage(conn, ver, wire.ProtocolVersion, wire.RegNet); err != nil {
		return order, err
	}

	sawVerack := false
	for i := 0; i < maxHandshakeMessages; i++ {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.RegNet)
		if err != nil {
			if sawVerack {
				// No more messages within the grace window; the
				// announcement burst is complete.
				break
			}
			return order, err
		}
		order = append(order, msg.Command())

		if _, ok := msg.(*wire.MsgVerAck); ok && !sawVerack {
			sawVerack = true
			if err := wire.WriteMessage(conn, &wire.MsgVerAck{}, wire.ProtocolVersion, wire.RegNet); err != nil {
				return order, err
			}
		}
	}
	return order, nil
}

// TestHandshakeOrderingWithWtxidRelay verifies that, against a peer
// claiming protocol version >= 70016, wtxidrelay is sent strictly before
// verack (BIP 339), and that the post-verack announcement burst
// (sendheaders, sendcmpct, getaddr) follows in that order.
func TestHandshakeOrderingWithWtxidRelay(t *testing.T) {
	client, remote := net.Pipe()
	defer client.Close()
	defer remote.Close()

	p := newPeer(client, "remote:8333", chaincfg.RegNet)

	done := make(chan error, 1)
	go func() {
		done <- p.Handshake(wire.SFNodeWitness, 0, 1)
	}()

	order, err := remoteHandshake(t, remote, int32(wire.ProtocolVersion))
	if err != nil {
		t.Fatalf("remoteHandshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	if order[0] != wire.CmdVersion {
		t.Fatalf("first observed message = %s, want version", order[0])
	}

	wtxidIdx := indexOf(order, wire.CmdWtxidRelay)
	verackIdx := indexOf(order, wire.CmdVerAck)
	if wtxidIdx == -1 {
		t.Fatalf("wtxidrelay not observed: order = %s", spew.Sdump(order))
	}
	if verackIdx == -1 || wtxidIdx > verackIdx {
		t.Fatalf("wtxidrelay at index %d, verack at %d; want wtxidrelay before verack", wtxidIdx, verackIdx)
	}

	headersIdx := indexOf(order, wire.CmdSendHeaders)
	cmpctIdx := indexOf(order, wire.CmdSendCmpct)
	addrIdx := indexOf(order, wire.CmdGetAddr)
	if headersIdx == -1 || cmpctIdx == -1 || addrIdx == -1 {
		t.Fatalf("observed order = %s, missing an expected post-verack message", spew.Sdump(order))
	}
	if !(verackIdx < headersIdx && headersIdx < cmpctIdx && cmpctIdx < addrIdx) {
		t.Fatalf("observed order = %s, want verack < sendheaders < sendcmpct < getaddr", spew.Sdump(order))
	}

	if p.State() != StateConnected {
		t.Fatalf("State() = %v, want Connected", p.State())
	}
	in, out := p.BytesInOut()
	if in == 0 || out == 0 {
		t.Fatalf("BytesInOut() = (%d, %d), want both nonzero after a handshake", in, out)
	}
}

// TestHandshakeOmitsWtxidRelayForOldPeer verifies that a peer reporting a
// protocol version below 70016 is not sent wtxidrelay.
func TestHandshakeOmitsWtxidRelayForOldPeer(t *testing.T) {
	client, remote := net.Pipe()
	defer client.Close()
	defer remote.Close()

	p := newPeer(client, "remote:8333", chaincfg.RegNet)

	done := make(chan error, 1)
	go func() {
		done <- p.Handshake(wire.SFNodeWitness, 0, 1)
	}()

	order, err := remoteHandshake(t, remote, 70015)
	if err != nil {
		t.Fatalf("remoteHandshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	if idx := indexOf(order, wire.CmdWtxidRelay); idx != -1 {
		t.Fatalf("wtxidrelay sent to a pre-70016 peer: order = %s", spew.Sdump(order))
	}
}

// TestAdvertisedServicesDuringIBD verifies the service-advertisement rule:
// NETWORK must never be advertised while headers are not yet synced.
func TestAdvertisedServicesDuringIBD(t *testing.T) {
	s := AdvertisedServices(false)
	if s.HasFlag(wire.SFNodeNetwork) {
		t.Fatalf("AdvertisedServices(false) = %v, must not include SFNodeNetwork during IBD", s)
	}
	if !s.HasFlag(wire.SFNodeWitness) {
		t.Fatalf("AdvertisedServices(false) = %v, want SFNodeWitness", s)
	}

	s = AdvertisedServices(true)
	if !s.HasFlag(wire.SFNodeNetwork) {
		t.Fatalf("AdvertisedServices(true) = %v, want SFNodeNetwork once headers are synced", s)
	}
}

// TestHandshakeTimeoutOnSilentPeer verifies that a peer which reads our
// version but never answers causes Handshake to fail with
// ErrHandshakeTimeout rather than block forever.
func TestHandshakeTimeoutOnSilentPeer(t *testing.T) {
	client, remote := net.Pipe()
	defer client.Close()
	defer remote.Close()

	go func() {
		// Consume the peer's version message so its send completes, then
		// go silent; Handshake must time out rather than hang.
		wire.ReadMessage(remote, wire.ProtocolVersion, wire.RegNet)
	}()

	p := newPeer(client, "remote:8333", chaincfg.RegNet)
	err := p.Handshake(wire.SFNodeWitness, 0, 1)
	if err != ErrHandshakeTimeout {
		t.Fatalf("Handshake on silent peer: err = %v, want ErrHandshakeTimeout", err)
	}
}

func indexOf(s []string, v string) int {
	for i, e := range s {
		if e == v {
			return i
		}
	}
	return -1
}
