// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/exccoin-labs/xpeerd/addrmgr"
	"github.com/exccoin-labs/xpeerd/blockprocessor"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/connmgr"
	"github.com/exccoin-labs/xpeerd/feeest"
	"github.com/exccoin-labs/xpeerd/headerstore"
	"github.com/exccoin-labs/xpeerd/mempool"
	"github.com/exccoin-labs/xpeerd/netsync"
	"github.com/exccoin-labs/xpeerd/peer"
	"github.com/exccoin-labs/xpeerd/wire"
)

// blockJob is one entry of the single-consumer block processing channel:
// blocks are handed to the external processor in strict
// arrival order so a parent always reaches it before its children.
type blockJob struct {
	hash chainhash.Hash
	raw  []byte
}

// Manager owns the event loop: bootstrap, the per-tick bounded receive
// over every connected peer, and the message dispatch table. It is not safe for concurrent use of Run from more than one
// goroutine; the accessor methods (PeerCount, MempoolStats, ...) are.
type Manager struct {
	cfg    Config
	nonce  uint64
	params *chaincfg.Params

	store *headerstore.Store
	sync  *netsync.SyncState
	sched *netsync.Scheduler
	pool  *mempool.Pool
	fees  *feeest.Estimator
	addrs *addrmgr.Manager
	conn  *connmgr.Connector

	blocks chan blockJob

	lastPingAt time.Time
	pingNonce  uint64

	mu    sync.Mutex
	peers map[string]*peer.Peer
}

// New constructs a Manager and its owned collaborators (header store,
// sync state, scheduler, mempool, fee estimator, address manager,
// connector), but does not yet dial any peer.
func New(cfg Config, nonce uint64) (*Manager, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("engine: Config.Params is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("engine: Config.Processor is required")
	}

	store, err := headerstore.Open(cfg.DataDir, cfg.Params.Name)
	if err != nil {
		// A short trailing record means the process died mid-append;
		// Open already truncated to the last complete record and the
		// store is fully usable, so resume from there.
		if !errors.Is(err, headerstore.ErrCorrupt) {
			return nil, fmt.Errorf("engine: opening header store: %w", err)
		}
		log.Warnf("engine: header store had a partial trailing record, "+
			"resuming from height %d", store.Len())
	}

	sched := netsync.NewScheduler()
	syncState, err := netsync.New(cfg.Params, store, sched)
	if err != nil {
		return nil, fmt.Errorf("engine: building sync state: %w", err)
	}

	addrs, err := addrmgr.New(filepath.Join(cfg.DataDir, "addrmgr_"+cfg.Params.Name+".ldb"))
	if err != nil {
		return nil, fmt.Errorf("engine: opening address manager: %w", err)
	}

	fees := feeest.New()
	policy := cfg.Policy
	if policy == (mempool.Policy{}) {
		policy = mempool.PolicyForNetwork(cfg.Params.Name)
	}
	pool := mempool.NewPool(policy, fees)

	connCfg := connmgr.DefaultConfig(cfg.Params.Net)
	conn := connmgr.New(connCfg, addrs)
	for _, addr := range cfg.Peers {
		conn.AddNode(addr)
	}

	return &Manager{
		cfg:    cfg,
		nonce:  nonce,
		params: cfg.Params,
		store:  store,
		sync:   syncState,
		sched:  sched,
		pool:   pool,
		fees:   fees,
		addrs:  addrs,
		conn:   conn,
		blocks: make(chan blockJob, blockQueueDepth),
		peers:  make(map[string]*peer.Peer),
	}, nil
}

// Close releases the header store and address manager's on-disk handles.
func (m *Manager) Close() error {
	if err := m.store.Close(); err != nil {
		return err
	}
	return m.addrs.Close()
}

// Run bootstraps outbound connections and then drives the event loop
// until ctx is cancelled. It always returns nil on a clean shutdown; only
// startup failures (failing to open the header store or address manager,
// surfaced from New) are reported to the caller.
func (m *Manager) Run(ctx context.Context) error {
	defer m.drainBlockConsumer()()

	m.bootstrap(ctx)
	m.lastPingAt = time.Now()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAllPeers()
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// drainBlockConsumer starts the single goroutine that calls
// BlockProcessor.ProcessBlock in strict arrival order and returns a
// closer that waits for it to finish draining.
func (m *Manager) drainBlockConsumer() func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for job := range m.blocks {
			result, err := m.cfg.Processor.ProcessBlock(job.raw)
			if err != nil {
				log.Warnf("engine: ProcessBlock(%s): %v", job.hash, err)
				continue
			}
			switch result.Outcome {
			case blockprocessor.Accepted:
				if result.NewTip {
					m.sync.CheckHeadersSyncComplete(m.cfg.Processor.TipHeight())
					m.pool.UpdateHeight(m.cfg.Processor.TipHeight())
				}
			default:
				log.Debugf("engine: block %s outcome=%v reason=%s",
					job.hash, result.Outcome, result.Reason)
			}
		}
	}()
	return func() {
		close(m.blocks)
		<-done
	}
}

// handshakePeer configures and runs the version/verack exchange on a
// freshly dialed connection.
func (m *Manager) handshakePeer(p *peer.Peer) error {
	if m.cfg.UserAgent != "" {
		p.SetUserAgent(m.cfg.UserAgent)
	}
	return p.Handshake(peer.AdvertisedServices(m.sync.HeadersSynced()),
		m.cfg.Processor.TipHeight(), m.nonce)
}

func (m *Manager) bootstrap(ctx context.Context) {
	connected := m.conn.Bootstrap(ctx, m.params, m.handshakePeer)
	for _, p := range connected {
		m.registerPeer(p)
	}
}

func (m *Manager) registerPeer(p *peer.Peer) {
	m.mu.Lock()
	m.peers[p.Addr()] = p
	m.mu.Unlock()
	m.sync.PeerHandshakeComplete(p.Addr(), p.TheirServices(), p.TheirStartHeight())
}

func (m *Manager) closeAllPeers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, p := range m.peers {
		p.Close()
		delete(m.peers, addr)
	}
}

func (m *Manager) dropPeer(addr string, markUntrusted bool) {
	m.mu.Lock()
	p, ok := m.peers[addr]
	if ok {
		delete(m.peers, addr)
	}
	m.mu.Unlock()
	if ok {
		p.Close()
	}
	// Flag the peer before PeerDisconnected runs its re-election, so an
	// adversarial peer can never win the replacement vote.
	if markUntrusted {
		m.sync.MarkUntrusted(addr)
	}
	m.conn.Remove(addr)
	m.sync.PeerDisconnected(addr)
}

// tick runs one pass of the cooperative scheduling loop: a bounded receive
// per peer, stall/timer bookkeeping, and topping up outbound connections.
func (m *Manager) tick(ctx context.Context) {
	timeout := ibdRecvTimeout
	if m.sync.HeadersSynced() {
		timeout = caughtUpRecvTimeout
	}

	m.mu.Lock()
	addrs := make([]string, 0, len(m.peers))
	for addr := range m.peers {
		addrs = append(addrs, addr)
	}
	m.mu.Unlock()

	for _, addr := range addrs {
		m.mu.Lock()
		p, ok := m.peers[addr]
		m.mu.Unlock()
		if !ok {
			continue
		}
		msg, err := p.RecvNonBlocking(timeout)
		if err != nil {
			log.Debugf("engine: peer %s: %v", addr, err)
			m.dropPeer(addr, false)
			continue
		}
		if msg == nil {
			continue
		}
		m.dispatch(p, msg)
	}

	now := time.Now()
	if m.sync.StallElapsed(now) {
		if syncPeer, have := m.sync.SyncPeer(); have {
			log.Warnf("engine: sync peer %s stalled, re-electing", syncPeer)
			m.dropPeer(syncPeer, false)
		}
	}
	if m.sync.ShouldIssueHeaderRequest(now) {
		m.requestHeaders(now)
	}

	if reassigned, dead := m.sched.ReassignTimeouts(); len(reassigned) > 0 || len(dead) > 0 {
		m.assignBlockRequests()
		if len(dead) > 0 {
			log.Warnf("engine: %d block(s) exceeded max attempts, giving up", len(dead))
		}
	}

	if now.Sub(m.lastPingAt) > pingInterval {
		m.lastPingAt = now
		m.broadcastPing()
	}

	if p, err := m.conn.MaybeDialMore(ctx, m.handshakePeer); err == nil && p != nil {
		m.registerPeer(p)
	}
}

// broadcastPing sends a liveness ping to every connected peer, recording
// the nonce so a matching pong can be correlated.
func (m *Manager) broadcastPing() {
	m.mu.Lock()
	peers := make([]*peer.Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	for _, p := range peers {
		m.pingNonce++
		p.RecordPing(m.pingNonce)
		if err := p.Send(&wire.MsgPing{Nonce: m.pingNonce}); err != nil {
			log.Debugf("engine: sending ping to %s: %v", p.Addr(), err)
		}
	}
}

func (m *Manager) requestHeaders(now time.Time) {
	syncPeer, have := m.sync.SyncPeer()
	if !have {
		return
	}
	m.mu.Lock()
	p, ok := m.peers[syncPeer]
	m.mu.Unlock()
	if !ok {
		return
	}
	locator := m.sync.BuildLocator()
	msg := &wire.MsgGetHeaders{
		ProtocolVersion:    wire.ProtocolVersion,
		BlockLocatorHashes: locator,
	}
	if err := p.Send(msg); err != nil {
		log.Debugf("engine: sending getheaders to %s: %v", syncPeer, err)
		return
	}
	m.sync.MarkHeaderRequestSent(now)
}

// assignBlockRequests pulls newly-available scheduler work and sends
// GetData to whichever peer it was assigned to.
func (m *Manager) assignBlockRequests() {
	m.mu.Lock()
	addrs := make([]string, 0, len(m.peers))
	for addr := range m.peers {
		addrs = append(addrs, addr)
	}
	m.mu.Unlock()

	for _, addr := range addrs {
		hashes := m.sched.Assign(addr)
		if len(hashes) == 0 {
			continue
		}
		m.sendGetData(addr, hashes)
	}
}

func (m *Manager) sendGetData(addr string, hashes []chainhash.Hash) {
	if len(hashes) == 0 {
		return
	}
	m.mu.Lock()
	p, ok := m.peers[addr]
	m.mu.Unlock()
	if !ok {
		return
	}
	getData := &wire.MsgGetData{}
	for _, h := range hashes {
		getData.InvList = append(getData.InvList, wire.InvVect{Type: wire.InvTypeBlock, Hash: h})
	}
	if err := p.Send(getData); err != nil {
		log.Debugf("engine: sending getdata to %s: %v", addr, err)
	}
}

// dispatch routes one received message to its handler.
func (m *Manager) dispatch(p *peer.Peer, msg wire.Message) {
	switch v := msg.(type) {
	case *wire.MsgHeaders:
		m.onHeaders(p, v)
	case *wire.MsgInv:
		m.onInv(p, v)
	case *wire.MsgBlock:
		m.onBlock(p, v)
	case *wire.MsgTx:
		m.onTx(p, v)
	case *wire.MsgPing:
		_ = p.Send(&wire.MsgPong{Nonce: v.Nonce})
	case *wire.MsgGetAddr:
		m.onGetAddr(p)
	case *wire.MsgSendCmpct:
		p.MarkCompactBlocksNegotiated()
	case *wire.MsgAddr:
		m.onAddr(p, v)
	case *wire.MsgAddrV2:
		m.onAddrV2(p, v)
	case *wire.MsgGetHeaders:
		if !m.sync.HeadersSynced() {
			_ = p.Send(&wire.MsgHeaders{})
		}
	case *wire.MsgGetData:
		// Serving block/tx data to peers is out of scope; xpeerd is a
		// sync client, not a full relay node.
	case *wire.MsgPong, *wire.MsgNotFound, *wire.MsgFeeFilter,
		*wire.MsgSendHeaders, *wire.MsgWtxidRelay, *wire.MsgReject:
		// Acknowledged implicitly; no per-peer state currently tracks
		// these beyond what Peer.Handshake already recorded.
	default:
		log.Debugf("engine: unhandled message %T from %s", msg, p.Addr())
	}
}

func (m *Manager) onHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	added, outcome, err := m.sync.ExtendHeaders(msg.Headers, p.Addr())
	if added > 0 {
		log.Debugf("engine: %s: appended %d header(s), outcome=%v", p.Addr(), added, outcome)
	}
	switch outcome {
	case netsync.OutcomeCheckpointMismatch:
		log.Warnf("engine: %s: %v", p.Addr(), err)
		m.dropPeer(p.Addr(), true)
		return
	case netsync.OutcomeChainMismatch:
		log.Debugf("engine: %s: full batch with no new headers, re-electing sync peer", p.Addr())
		m.sync.DropSyncPeer(false)
	case netsync.OutcomeImmediateFollowup:
		m.requestHeaders(time.Now())
	case netsync.OutcomeCheckComplete:
		if m.sync.CheckHeadersSyncComplete(m.cfg.Processor.TipHeight()) {
			m.assignBlockRequests()
		}
	}
}

func (m *Manager) onInv(p *peer.Peer, msg *wire.MsgInv) {
	if !m.sync.HeadersSynced() {
		return
	}
	var wanted []chainhash.Hash
	for _, iv := range msg.InvList {
		if iv.Type != wire.InvTypeBlock {
			continue
		}
		if m.sync.HaveHeader(iv.Hash) {
			continue
		}
		wanted = append(wanted, iv.Hash)
	}
	if len(wanted) == 0 {
		return
	}
	m.sched.Push(wanted)
	m.sendGetData(p.Addr(), m.sched.Assign(p.Addr()))
}

func (m *Manager) onBlock(p *peer.Peer, msg *wire.MsgBlock) {
	if !m.sync.HeadersSynced() {
		log.Warnf("engine: %s: unsolicited block before headers sync complete", p.Addr())
		return
	}
	hash := msg.BlockHash()
	m.sched.Complete(hash)
	m.sendGetData(p.Addr(), m.sched.Assign(p.Addr()))

	// A full queue suspends the event loop here until the consumer
	// catches up; dropping instead would lose a block the scheduler has
	// already marked complete, and it would never be re-requested.
	m.blocks <- blockJob{hash: hash, raw: msg.SerializeFull()}
}

func (m *Manager) onTx(p *peer.Peer, msg *wire.MsgTx) {
	if m.cfg.FeeOracle == nil {
		return
	}
	fee, ok := m.cfg.FeeOracle.TxFee(msg)
	if !ok {
		return
	}
	if _, err := m.pool.AddTx(msg, fee, m.cfg.Processor.TipHeight()); err != nil {
		log.Debugf("engine: %s: tx %s rejected: %v", p.Addr(), msg.TxHash(), err)
	}
}

// onGetAddr replies with up to maxAddrRelay known addresses, preferring
// recently good ones.
func (m *Manager) onGetAddr(p *peer.Peer) {
	known := m.addrs.GetAddresses(maxAddrRelay)
	msg := &wire.MsgAddr{}
	for _, addr := range known {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil {
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}
		var na wire.NetAddress
		copy(na.IP[:], ip.To16())
		na.Port = uint16(port)
		msg.AddrList = append(msg.AddrList, wire.TimestampedAddress{
			Timestamp:  uint32(time.Now().Unix()),
			NetAddress: na,
		})
	}
	if len(msg.AddrList) == 0 {
		return
	}
	if err := p.Send(msg); err != nil {
		log.Debugf("engine: sending addr to %s: %v", p.Addr(), err)
	}
}

func (m *Manager) onAddr(p *peer.Peer, msg *wire.MsgAddr) {
	for _, ta := range msg.AddrList {
		addr := net.JoinHostPort(net.IP(ta.NetAddress.IP[:]).String(), fmt.Sprint(ta.NetAddress.Port))
		m.addrs.AddAddress(addr, ta.NetAddress.Services, p.Addr())
	}
}

func (m *Manager) onAddrV2(p *peer.Peer, msg *wire.MsgAddrV2) {
	for _, e := range msg.AddrList {
		var ip net.IP
		switch {
		case e.NetworkID == 1 && len(e.Addr) == 4:
			ip = net.IP(e.Addr)
		case e.NetworkID == 2 && len(e.Addr) == 16:
			ip = net.IP(e.Addr)
		default:
			continue
		}
		addr := net.JoinHostPort(ip.String(), fmt.Sprint(e.Port))
		m.addrs.AddAddress(addr, wire.ServiceFlag(e.Services), p.Addr())
	}
}

// PeerCount returns the number of currently connected peers.
func (m *Manager) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// MempoolStats exposes the mempool's current totals, for an integrator's
// getmempoolinfo.
func (m *Manager) MempoolStats() mempool.Stats {
	return m.pool.Stats()
}

// FeeEstimate exposes the fee estimator, for an integrator's
// estimatesmartfee-equivalent call.
func (m *Manager) FeeEstimate(targetBlocks int) feeest.FeeRate {
	return m.fees.EstimateFee(targetBlocks)
}

// HeaderChainHeight exposes the sync state machine's current header chain
// height, for an integrator's getblockcount/getblockchaininfo.
func (m *Manager) HeaderChainHeight() int32 {
	return m.sync.HeaderChainHeight()
}
