// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connmgr owns outbound connection bookkeeping: the dial ceiling,
// DNS-seed bootstrap, explicit added nodes, and the ban list.
package connmgr

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exccoin-labs/xpeerd/addrmgr"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/peer"
)

// Config controls the shape of the connector's dialing behavior.
type Config struct {
	// MaxOutbound is the steady-state outbound connection ceiling.
	MaxOutbound int
	// BootstrapOutbound is how many outbound connections bootstrap tries
	// to establish (6.F).
	BootstrapOutbound int
	// MaxBootstrapAttempts bounds total dial attempts in one bootstrap
	// cycle (30.F), regardless of how many succeed.
	MaxBootstrapAttempts int
	// DialTimeout is carried in the configuration but not read by DialOne,
	// Bootstrap or MaybeDialMore: every dial goes through peer.Connect,
	// which applies its own fixed 5 second connect timeout.
	DialTimeout time.Duration
	// Magic is the network's wire magic.
	Magic chaincfg.Network
}

// DefaultConfig returns the stock dialing configuration.
func DefaultConfig(magic chaincfg.Network) Config {
	return Config{
		MaxOutbound:          8,
		BootstrapOutbound:    6,
		MaxBootstrapAttempts: 30,
		DialTimeout:          5 * time.Second,
		Magic:                magic,
	}
}

// Reconnect backoff: each consecutive failed dial to the same address
// doubles the wait before the next attempt, capped so a flaky peer is
// retried within a reasonable horizon.
const (
	baseRetryBackoff = 30 * time.Second
	maxRetryBackoff  = 30 * time.Minute
)

// BanEntry records why and until when a host is banned.
type BanEntry struct {
	Reason string
	Until  time.Time
}

// Connector dials and tracks outbound peer connections. It is safe for
// concurrent use.
type Connector struct {
	cfg   Config
	addrs *addrmgr.Manager

	mu         sync.Mutex
	banned     map[string]BanEntry
	addedNodes map[string]struct{}
	outbound   map[string]*peer.Peer
	dialing    map[string]struct{}
	failures   map[string]int
	retryAfter map[string]time.Time
}

// New returns a Connector that selects candidate addresses from addrs.
func New(cfg Config, addrs *addrmgr.Manager) *Connector {
	return &Connector{
		cfg:        cfg,
		addrs:      addrs,
		banned:     make(map[string]BanEntry),
		addedNodes: make(map[string]struct{}),
		outbound:   make(map[string]*peer.Peer),
		dialing:    make(map[string]struct{}),
		failures:   make(map[string]int),
		retryAfter: make(map[string]time.Time),
	}
}

// AddNode registers addr as an explicitly configured peer (the --peer CLI
// flag), always dialed during bootstrap regardless of the
// address manager's contents.
func (c *Connector) AddNode(addr string) {
	c.mu.Lock()
	c.addedNodes[addr] = struct{}{}
	c.mu.Unlock()
}

// Ban marks host (an IP, without port) as banned for d.
func (c *Connector) Ban(host string, d time.Duration, reason string) {
	c.mu.Lock()
	c.banned[host] = BanEntry{Reason: reason, Until: time.Now().Add(d)}
	c.mu.Unlock()
}

// Unban removes host from the ban list.
func (c *Connector) Unban(host string) {
	c.mu.Lock()
	delete(c.banned, host)
	c.mu.Unlock()
}

// ClearBanned empties the ban list.
func (c *Connector) ClearBanned() {
	c.mu.Lock()
	c.banned = make(map[string]BanEntry)
	c.mu.Unlock()
}

// Banned returns a snapshot of the current ban list, pruned of expired
// entries.
func (c *Connector) Banned() map[string]BanEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	out := make(map[string]BanEntry, len(c.banned))
	for host, entry := range c.banned {
		if now.After(entry.Until) {
			delete(c.banned, host)
			continue
		}
		out[host] = entry
	}
	return out
}

// IsBanned reports whether addr's host is currently banned.
func (c *Connector) IsBanned(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.banned[host]
	if !ok {
		return false
	}
	if time.Now().After(entry.Until) {
		delete(c.banned, host)
		return false
	}
	return true
}

// NumOutbound reports the current outbound connection count.
func (c *Connector) NumOutbound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbound)
}

// Peers returns a snapshot of the currently connected outbound peers.
func (c *Connector) Peers() []*peer.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*peer.Peer, 0, len(c.outbound))
	for _, p := range c.outbound {
		out = append(out, p)
	}
	return out
}

// Remove drops addr from the outbound set, e.g. after the peer manager
// observes a disconnect.
func (c *Connector) Remove(addr string) {
	c.mu.Lock()
	delete(c.outbound, addr)
	c.mu.Unlock()
}

// HandshakeFunc performs a connection's version/verack exchange. Bootstrap
// and DialOne take this as a parameter so tests can substitute a fake
// handshake instead of speaking the real wire protocol.
type HandshakeFunc func(p *peer.Peer) error

// resolveSeeds looks up every DNS seed's A/AAAA records and returns
// candidate "host:port" addresses. A seed that fails to resolve is skipped
// with a warning; one bad seed must never abort bootstrap.
func resolveSeeds(ctx context.Context, seeds []chaincfg.DNSSeed, defaultPort string) []string {
	var out []string
	for _, seed := range seeds {
		ips, err := net.DefaultResolver.LookupHost(ctx, seed.Host)
		if err != nil {
			log.Warnf("connmgr: DNS seed %s: %v", seed.Host, err)
			continue
		}
		for _, ip := range ips {
			out = append(out, net.JoinHostPort(ip, defaultPort))
		}
	}
	return out
}

// Bootstrap resolves the network's DNS seeds, combines the result with any
// explicitly added nodes, and dials outward until BootstrapOutbound
// connections succeed or MaxBootstrapAttempts dials have been made,
// whichever comes first.
func (c *Connector) Bootstrap(ctx context.Context, params *chaincfg.Params, handshake HandshakeFunc) []*peer.Peer {
	candidates := resolveSeeds(ctx, params.DNSSeeds, params.DefaultPort)
	for _, addr := range candidates {
		c.addrs.AddAddress(addr, 0, "dns-seed")
	}

	c.mu.Lock()
	for addr := range c.addedNodes {
		candidates = append(candidates, addr)
	}
	c.mu.Unlock()

	var (
		mu       sync.Mutex
		attempts int
		results  []*peer.Peer
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.BootstrapOutbound)

	for _, addr := range dedupe(candidates) {
		addr := addr
		mu.Lock()
		full := len(results) >= c.cfg.BootstrapOutbound || attempts >= c.cfg.MaxBootstrapAttempts
		if !full {
			attempts++
		}
		mu.Unlock()
		if full {
			break
		}

		eg.Go(func() error {
			p, err := c.DialOne(egCtx, addr, handshake)
			if err != nil {
				log.Debugf("connmgr: bootstrap dial %s: %v", addr, err)
				return nil
			}
			mu.Lock()
			results = append(results, p)
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()

	return results
}

// DialOne connects to and hands shakes with addr, recording the attempt
// (and its outcome) in the address manager.
func (c *Connector) DialOne(ctx context.Context, addr string, handshake HandshakeFunc) (*peer.Peer, error) {
	if c.IsBanned(addr) {
		return nil, fmt.Errorf("connmgr: %s is banned", addr)
	}

	c.mu.Lock()
	if _, ok := c.outbound[addr]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("connmgr: already connected to %s", addr)
	}
	if _, ok := c.dialing[addr]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("connmgr: already dialing %s", addr)
	}
	if until, ok := c.retryAfter[addr]; ok && time.Now().Before(until) {
		c.mu.Unlock()
		return nil, fmt.Errorf("connmgr: %s is backing off until %s", addr, until.Format(time.RFC3339))
	}
	c.dialing[addr] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.dialing, addr)
		c.mu.Unlock()
	}()

	c.addrs.Attempt(addr)

	p, err := peer.Connect(addr, c.cfg.Magic)
	if err != nil {
		c.recordFailure(addr)
		return nil, err
	}
	if err := handshake(p); err != nil {
		p.Close()
		c.recordFailure(addr)
		return nil, err
	}

	c.addrs.Good(addr)
	c.mu.Lock()
	delete(c.failures, addr)
	delete(c.retryAfter, addr)
	c.outbound[addr] = p
	c.mu.Unlock()
	return p, nil
}

// recordFailure bumps addr's consecutive-failure count and schedules its
// next allowed attempt with exponential backoff.
func (c *Connector) recordFailure(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[addr]++
	backoff := baseRetryBackoff << (c.failures[addr] - 1)
	if backoff > maxRetryBackoff || backoff <= 0 {
		backoff = maxRetryBackoff
	}
	c.retryAfter[addr] = time.Now().Add(backoff)
}

// MaybeDialMore dials one additional outbound peer if the connector is
// below MaxOutbound, selecting a candidate from the address manager. It
// returns nil, nil if already at the ceiling or no candidate is available.
func (c *Connector) MaybeDialMore(ctx context.Context, handshake HandshakeFunc) (*peer.Peer, error) {
	if c.NumOutbound() >= c.cfg.MaxOutbound {
		return nil, nil
	}
	addr, ok := c.addrs.GetAddress()
	if !ok {
		return nil, nil
	}
	return c.DialOne(ctx, addr, handshake)
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
