// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/exccoin-labs/xpeerd/addrmgr"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/peer"
)

// listenOnce starts a listener that accepts exactly one connection and
// immediately closes it, simulating a reachable-but-silent peer so
// peer.Connect succeeds without a real handshake.
func listenOnce(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()
	return l.Addr().String()
}

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	am, err := addrmgr.New(t.TempDir())
	if err != nil {
		t.Fatalf("addrmgr.New: %v", err)
	}
	t.Cleanup(func() { am.Close() })

	cfg := DefaultConfig(chaincfg.RegNet)
	cfg.DialTimeout = time.Second
	return New(cfg, am)
}

func noopHandshake(p *peer.Peer) error { return nil }

func TestDialOneSucceeds(t *testing.T) {
	c := newTestConnector(t)
	addr := listenOnce(t)

	p, err := c.DialOne(context.Background(), addr, noopHandshake)
	if err != nil {
		t.Fatalf("DialOne: %v", err)
	}
	defer p.Close()

	if c.NumOutbound() != 1 {
		t.Fatalf("NumOutbound() = %d, want 1", c.NumOutbound())
	}
}

func TestDialOneRejectsBanned(t *testing.T) {
	c := newTestConnector(t)
	addr := listenOnce(t)
	host, _, _ := net.SplitHostPort(addr)
	c.Ban(host, time.Minute, "test")

	if _, err := c.DialOne(context.Background(), addr, noopHandshake); err == nil {
		t.Fatalf("DialOne on a banned address succeeded, want error")
	}
}

func TestDialOneRejectsDuplicate(t *testing.T) {
	c := newTestConnector(t)
	addr := listenOnce(t)

	p, err := c.DialOne(context.Background(), addr, noopHandshake)
	if err != nil {
		t.Fatalf("DialOne: %v", err)
	}
	defer p.Close()

	if _, err := c.DialOne(context.Background(), addr, noopHandshake); err == nil {
		t.Fatalf("second DialOne to the same address succeeded, want error")
	}
}

func TestMaybeDialMoreRespectsCeiling(t *testing.T) {
	c := newTestConnector(t)
	c.cfg.MaxOutbound = 1

	addr := listenOnce(t)
	c.addrs.AddAddress(addr, 0, "test")

	p, err := c.MaybeDialMore(context.Background(), noopHandshake)
	if err != nil {
		t.Fatalf("MaybeDialMore: %v", err)
	}
	if p == nil {
		t.Fatalf("MaybeDialMore() = nil peer, want a dialed peer")
	}
	defer p.Close()

	addr2 := listenOnce(t)
	c.addrs.AddAddress(addr2, 0, "test")

	p2, err := c.MaybeDialMore(context.Background(), noopHandshake)
	if err != nil {
		t.Fatalf("MaybeDialMore at ceiling: %v", err)
	}
	if p2 != nil {
		t.Fatalf("MaybeDialMore() dialed past MaxOutbound=1")
	}
}

func TestDialOneBacksOffAfterFailure(t *testing.T) {
	c := newTestConnector(t)

	// Grab a port with nothing listening on it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := c.DialOne(context.Background(), addr, noopHandshake); err == nil {
		t.Fatalf("DialOne to a closed port succeeded, want error")
	}
	_, err = c.DialOne(context.Background(), addr, noopHandshake)
	if err == nil || !strings.Contains(err.Error(), "backing off") {
		t.Fatalf("second DialOne err = %v, want backoff rejection", err)
	}
}

func TestBootstrapDialsAddedNodes(t *testing.T) {
	c := newTestConnector(t)
	addr := listenOnce(t)
	c.AddNode(addr)

	params := chaincfg.RegNetParams()
	peers := c.Bootstrap(context.Background(), params, noopHandshake)

	if len(peers) != 1 {
		t.Fatalf("Bootstrap() returned %d peers, want 1", len(peers))
	}
	for _, p := range peers {
		p.Close()
	}
}
