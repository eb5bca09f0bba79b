// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"time"

	"github.com/exccoin-labs/xpeerd/rpctypes"
)

// The accessors in this file produce the result shapes an integrator's RPC
// facade marshals. xpeerd runs no RPC server itself; these are the read
// side of getblockchaininfo, getpeerinfo, getmempoolinfo, getrawmempool,
// and the ban-list commands.

// BlockChainInfo returns the getblockchaininfo view of the engine's
// current state.
func (m *Manager) BlockChainInfo() rpctypes.GetBlockChainInfoResult {
	tip := m.cfg.Processor.TipHeight()
	res := rpctypes.GetBlockChainInfoResult{
		Chain:                m.params.Name,
		Blocks:               tip,
		Headers:              m.sync.HeaderChainHeight(),
		InitialBlockDownload: !m.sync.HeadersSynced(),
	}
	if tip >= 0 {
		if h, err := m.cfg.Processor.BestBlockHash(); err == nil {
			res.BestBlockHash = h.String()
		}
	}
	if best := m.sync.BestKnownHeight(); best > 0 && tip >= 0 {
		progress := float64(tip) / float64(best)
		if progress > 1 {
			progress = 1
		}
		res.VerificationProgress = progress
	}
	return res
}

// PeerInfo returns one getpeerinfo entry per connected outbound peer.
func (m *Manager) PeerInfo() []rpctypes.GetPeerInfoResult {
	m.mu.Lock()
	addrs := make([]string, 0, len(m.peers))
	for addr := range m.peers {
		addrs = append(addrs, addr)
	}
	m.mu.Unlock()

	out := make([]rpctypes.GetPeerInfoResult, 0, len(addrs))
	for i, addr := range addrs {
		m.mu.Lock()
		p, ok := m.peers[addr]
		m.mu.Unlock()
		if !ok {
			continue
		}
		bytesIn, bytesOut := p.BytesInOut()
		out = append(out, rpctypes.GetPeerInfoResult{
			ID:             int32(i),
			Addr:           p.Addr(),
			Services:       fmt.Sprintf("%016x", uint64(p.TheirServices())),
			BytesSent:      bytesOut,
			BytesRecv:      bytesIn,
			Version:        uint32(p.TheirVersion()),
			SubVer:         p.TheirUserAgent(),
			Inbound:        false,
			StartingHeight: p.TheirStartHeight(),
			SyncedHeaders:  m.sync.HeaderChainHeight(),
			SyncedBlocks:   m.cfg.Processor.TipHeight(),
		})
	}
	return out
}

// MempoolInfo returns the getmempoolinfo view of the pool's totals.
func (m *Manager) MempoolInfo() rpctypes.GetMempoolInfoResult {
	stats := m.pool.Stats()
	return rpctypes.GetMempoolInfoResult{
		Loaded:        true,
		Size:          stats.Size,
		Bytes:         stats.Bytes,
		Usage:         stats.Bytes,
		MaxMempool:    stats.MaxSize,
		MinRelayTxFee: float64(stats.MinRelayFee.AsSatPerKVB()) / 1e8,
	}
}

// RawMempool returns every pooled txid as a hex string, the terse
// getrawmempool result.
func (m *Manager) RawMempool() []string {
	txids := m.pool.AllTxids()
	out := make([]string, 0, len(txids))
	for _, txid := range txids {
		out = append(out, txid.String())
	}
	return out
}

// BanPeer adds host to the ban list for the given duration and drops any
// live session to it, the setban "add" path.
func (m *Manager) BanPeer(host string, d time.Duration, reason string) {
	m.conn.Ban(host, d, reason)
	m.mu.Lock()
	addrs := make([]string, 0, len(m.peers))
	for addr := range m.peers {
		addrs = append(addrs, addr)
	}
	m.mu.Unlock()
	for _, addr := range addrs {
		if m.conn.IsBanned(addr) {
			m.dropPeer(addr, false)
		}
	}
}

// UnbanPeer removes host from the ban list, the setban "remove" path.
func (m *Manager) UnbanPeer(host string) {
	m.conn.Unban(host)
}

// ClearBanned empties the ban list.
func (m *Manager) ClearBanned() {
	m.conn.ClearBanned()
}

// ListBanned returns the current ban list in the listbanned result shape.
func (m *Manager) ListBanned() []rpctypes.ListBannedResult {
	banned := m.conn.Banned()
	out := make([]rpctypes.ListBannedResult, 0, len(banned))
	for host, entry := range banned {
		out = append(out, rpctypes.ListBannedResult{
			Address:     host,
			BannedUntil: entry.Until.Unix(),
		})
	}
	return out
}

// DisconnectPeer drops the session to addr, if one exists; the
// disconnectnode path.
func (m *Manager) DisconnectPeer(addr string) {
	m.dropPeer(addr, false)
}

// AddPeer registers addr with the connector as an added node (dialed by a
// bootstrap pass) and adds it to the address manager, from which the
// per-tick outbound top-up may pick it; the addnode path. AddPeer does not
// dial addr itself.
func (m *Manager) AddPeer(addr string) {
	m.conn.AddNode(addr)
	m.addrs.AddAddress(addr, 0, "addnode")
}
