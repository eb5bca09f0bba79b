// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer owns the lifecycle of a single outbound TCP connection to a
// bitcoin-network peer: connecting, the strict handshake sequence, and
// framed, flush-on-send message I/O.
package peer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/lru"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/wire"
)

// State is the lifecycle state of a Peer session.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	// connectTimeout bounds the initial TCP dial.
	connectTimeout = 5 * time.Second
	// handshakeTimeout bounds the whole handshake sequence.
	handshakeTimeout = 10 * time.Second
	// maxHandshakeMessages bounds the number of frames read during the
	// handshake, guarding against a peer that strings along many
	// messages without ever completing verack.
	maxHandshakeMessages = 50

	// recentInvCacheSize bounds the peer-local recently-seen inventory
	// dedup cache.
	recentInvCacheSize uint = 5000
)

// Peer owns one TCP connection's handshake and framed I/O. All exported
// methods except Send/Recv are safe for concurrent use; Send and Recv are
// intended to be driven from the single engine event loop goroutine that
// owns this Peer, matching the engine's single-threaded cooperative
// scheduling model.
type Peer struct {
	addr  string
	magic chaincfg.Network
	conn  net.Conn
	w     *bufio.Writer

	ourNonce     uint64
	ourServices  wire.ServiceFlag
	ourUserAgent string

	mu                      sync.RWMutex
	state                   State
	theirServices           wire.ServiceFlag
	theirVersion            int32
	theirUserAgent          string
	theirStartHeight        int32
	sendheadersSent         bool
	wtxidRelaySent          bool
	verackSeen              bool
	compactBlocksNegotiated bool
	lastPingNonce           uint64
	lastPingTime            time.Time

	bytesIn  uint64
	bytesOut uint64

	// recentInv deduplicates inventory this peer has already announced
	// or requested, avoiding redundant getdata round trips.
	recentInv lru.Cache
}

// Connect dials addr with a 5 second timeout.
func Connect(addr string, magic chaincfg.Network) (*Peer, error) {
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	return newPeer(conn, addr, magic), nil
}

func newPeer(conn net.Conn, addr string, magic chaincfg.Network) *Peer {
	return &Peer{
		addr:      addr,
		magic:     magic,
		conn:      conn,
		w:         bufio.NewWriterSize(conn, 16*1024),
		state:     StateConnecting,
		recentInv: lru.NewCache(recentInvCacheSize),
	}
}

// Addr returns the remote address this Peer is connected to.
func (p *Peer) Addr() string { return p.addr }

// State returns the current lifecycle state.
func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// TheirServices, TheirVersion, TheirUserAgent, and TheirStartHeight report
// the fields recorded from the peer's version message.
func (p *Peer) TheirServices() wire.ServiceFlag {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theirServices
}

func (p *Peer) TheirVersion() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theirVersion
}

func (p *Peer) TheirStartHeight() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theirStartHeight
}

func (p *Peer) TheirUserAgent() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theirUserAgent
}

// BytesInOut reports the cumulative bytes read from and written to this
// peer.
func (p *Peer) BytesInOut() (in, out uint64) {
	return atomic.LoadUint64(&p.bytesIn), atomic.LoadUint64(&p.bytesOut)
}

// SetUserAgent records an extra user agent comment appended to the wire
// version string during the handshake.
func (p *Peer) SetUserAgent(comment string) {
	p.ourUserAgent = comment
}

// AdvertisedServices computes the services to advertise in our version
// message. During IBD we must never advertise NODE_NETWORK, since we
// cannot yet serve historical blocks; only WITNESS is advertised until
// headers (and therefore blocks) are caught up. Claiming NODE_NETWORK
// while unable to serve makes well-behaved peers disconnect.
func AdvertisedServices(headersSynced bool) wire.ServiceFlag {
	if !headersSynced {
		return wire.SFNodeWitness
	}
	return wire.SFNodeNetwork | wire.SFNodeWitness
}

// Handshake performs the strict handshake sequence:
//  1. send version (services per AdvertisedServices, startHeight = our
//     validated tip)
//  2. receive peer version, record fields
//  3. if peer version >= 70016, send wtxidrelay before verack (BIP 339)
//  4. send verack
//  5. on receiving peer verack: send sendheaders, sendcmpct, getaddr;
//     transition to Connected.
func (p *Peer) Handshake(services wire.ServiceFlag, ourStartHeight int32, nonce uint64) error {
	p.setState(StateHandshaking)
	p.ourNonce = nonce
	p.ourServices = services

	deadline := time.Now().Add(handshakeTimeout)
	if err := p.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	defer p.conn.SetDeadline(time.Time{})

	ourVer := wire.NewMsgVersion(wire.NetAddress{}, wire.NetAddress{}, nonce, ourStartHeight)
	ourVer.Services = services
	ourVer.UserAgent += p.ourUserAgent
	if err := p.sendRaw(ourVer); err != nil {
		return fmt.Errorf("%w: sending version: %v", ErrHandshakeFailed, err)
	}

	var (
		gotVersion bool
		gotVerack  bool
		sentVerack bool
	)

	for msgCount := 0; !gotVerack; msgCount++ {
		if msgCount >= maxHandshakeMessages {
			return ErrHandshakeTimeout
		}
		if time.Now().After(deadline) {
			return ErrHandshakeTimeout
		}

		msg, raw, err := wire.ReadMessage(p.conn, wire.ProtocolVersion, p.magic)
		if err != nil {
			if isTimeout(err) {
				return ErrHandshakeTimeout
			}
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		atomic.AddUint64(&p.bytesIn, uint64(wire.MessageHeaderSize+len(raw)))

		switch m := msg.(type) {
		case *wire.MsgVersion:
			if gotVersion {
				return fmt.Errorf("%w: duplicate version message", ErrHandshakeFailed)
			}
			gotVersion = true
			p.mu.Lock()
			p.theirVersion = m.ProtocolVersion
			p.theirServices = m.Services
			p.theirUserAgent = m.UserAgent
			p.theirStartHeight = m.StartHeight
			p.mu.Unlock()

			// BIP 339 ordering: wtxidrelay must precede verack for
			// peers speaking protocol version >= 70016.
			if uint32(m.ProtocolVersion) >= wire.ProtocolVersion {
				if err := p.sendRaw(&wire.MsgWtxidRelay{}); err != nil {
					return fmt.Errorf("%w: sending wtxidrelay: %v", ErrHandshakeFailed, err)
				}
				p.mu.Lock()
				p.wtxidRelaySent = true
				p.mu.Unlock()
			}
			if !sentVerack {
				if err := p.sendRaw(&wire.MsgVerAck{}); err != nil {
					return fmt.Errorf("%w: sending verack: %v", ErrHandshakeFailed, err)
				}
				sentVerack = true
			}
		case *wire.MsgVerAck:
			p.mu.Lock()
			p.verackSeen = true
			p.mu.Unlock()
			gotVerack = true
		default:
			// Peers may send sendheaders/wtxidrelay/sendcmpct/addr
			// before their own verack; ignore during handshake.
		}
	}

	if !gotVersion {
		return fmt.Errorf("%w: verack received before version", ErrHandshakeFailed)
	}

	if err := p.sendRaw(&wire.MsgSendHeaders{}); err != nil {
		return fmt.Errorf("%w: sending sendheaders: %v", ErrHandshakeFailed, err)
	}
	p.mu.Lock()
	p.sendheadersSent = true
	p.mu.Unlock()

	if err := p.sendRaw(&wire.MsgSendCmpct{Announce: true, Version: 1}); err != nil {
		return fmt.Errorf("%w: sending sendcmpct: %v", ErrHandshakeFailed, err)
	}
	if err := p.sendRaw(&wire.MsgGetAddr{}); err != nil {
		return fmt.Errorf("%w: sending getaddr: %v", ErrHandshakeFailed, err)
	}

	p.setState(StateConnected)
	return nil
}

// Send frames and writes msg, followed by an explicit flush, so no
// partial writes are ever observable to callers.
func (p *Peer) Send(msg wire.Message) error {
	return p.sendRaw(msg)
}

func (p *Peer) sendRaw(msg wire.Message) error {
	var counting countingWriter
	counting.w = p.w
	if err := wire.WriteMessage(&counting, msg, wire.ProtocolVersion, p.magic); err != nil {
		return err
	}
	if err := p.w.Flush(); err != nil {
		return err
	}
	atomic.AddUint64(&p.bytesOut, uint64(counting.n))
	return nil
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// Recv reads one framed message, bounded by the per-tick receive timeout
// the caller supplies (2s during IBD, 100ms after sync-complete). It
// distinguishes EarlyEOF (clean close) from Malformed (parse failure) and
// Timeout (no data within the bound).
func (p *Peer) Recv(timeout time.Duration) (wire.Message, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	msg, raw, err := wire.ReadMessage(p.conn, wire.ProtocolVersion, p.magic)
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrEarlyEOF):
			return nil, &DisconnectError{Kind: DisconnectEarlyEOF, Err: err}
		case isTimeout(err):
			return nil, &DisconnectError{Kind: DisconnectTimeout, Err: err}
		case errors.Is(err, io.EOF):
			return nil, &DisconnectError{Kind: DisconnectEarlyEOF, Err: err}
		default:
			return nil, err
		}
	}
	atomic.AddUint64(&p.bytesIn, uint64(wire.MessageHeaderSize+len(raw)))
	return msg, nil
}

// RecvNonBlocking is a thin convenience wrapper that treats a read timeout
// as "no message available this tick" rather than an error, the common
// case in the engine's per-tick poll loop.
func (p *Peer) RecvNonBlocking(timeout time.Duration) (wire.Message, error) {
	msg, err := p.Recv(timeout)
	if err != nil {
		var de *DisconnectError
		if errors.As(err, &de) && de.Kind == DisconnectTimeout {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RecordPing remembers the nonce and time of an outbound ping so the
// matching pong can be correlated.
func (p *Peer) RecordPing(nonce uint64) {
	p.mu.Lock()
	p.lastPingNonce = nonce
	p.lastPingTime = time.Now()
	p.mu.Unlock()
}

// MarkCompactBlocksNegotiated records that the peer's sendcmpct exchange
// completed.
func (p *Peer) MarkCompactBlocksNegotiated() {
	p.mu.Lock()
	p.compactBlocksNegotiated = true
	p.mu.Unlock()
}

// SeenInventory reports whether hash has already been seen from or sent to
// this peer, adding it to the dedup cache if not.
func (p *Peer) SeenInventory(hash chainhash.Hash) bool {
	if p.recentInv.Contains(hash) {
		return true
	}
	p.recentInv.Add(hash)
	return false
}

// Close closes the underlying connection and marks the peer disconnected.
func (p *Peer) Close() error {
	p.setState(StateDisconnected)
	return p.conn.Close()
}
