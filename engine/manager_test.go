// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/exccoin-labs/xpeerd/blockprocessor"
	"github.com/exccoin-labs/xpeerd/chaincfg"
	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/headerstore"
	"github.com/exccoin-labs/xpeerd/peer"
	"github.com/exccoin-labs/xpeerd/wire"
)

// fakeProcessor is a minimal blockprocessor.BlockProcessor stand-in.
type fakeProcessor struct {
	tip int32
}

func (f *fakeProcessor) ProcessBlock(raw []byte) (blockprocessor.Result, error) {
	return blockprocessor.Result{Outcome: blockprocessor.Accepted, NewTip: true}, nil
}
func (f *fakeProcessor) TipHeight() int32 { return f.tip }
func (f *fakeProcessor) BestBlockHash() (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}
func (f *fakeProcessor) BlockHashAt(height int32) (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := Config{
		Params:    chaincfg.ParamsForNetwork("regtest"),
		DataDir:   t.TempDir(),
		Processor: &fakeProcessor{tip: -1},
	}
	m, err := New(cfg, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// connectedPeer returns a *peer.Peer dialed against a local listener,
// without running the handshake: onAddr/onBlock/onTx only need Addr() and
// a live connection, not a completed session.
func connectedPeer(t *testing.T) *peer.Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			t.Cleanup(func() { conn.Close() })
		}
	}()
	p, err := peer.Connect(ln.Addr().String(), chaincfg.RegNet)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// TestNewToleratesCorruptHeaderStore simulates a restart after the process
// was killed mid-append: the header file ends in a partial record. New must
// resume from the truncated store rather than refuse to start.
func TestNewToleratesCorruptHeaderStore(t *testing.T) {
	dir := t.TempDir()

	s, err := headerstore.Open(dir, "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var h wire.BlockHeader
	h.Version = 1
	if err := s.Append(h); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "headers_regtest.dat"), os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := f.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close raw: %v", err)
	}

	cfg := Config{
		Params:    chaincfg.ParamsForNetwork("regtest"),
		DataDir:   dir,
		Processor: &fakeProcessor{tip: -1},
	}
	m, err := New(cfg, 1)
	if err != nil {
		t.Fatalf("New after partial trailing record: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	if got := m.HeaderChainHeight(); got != 1 {
		t.Fatalf("HeaderChainHeight() = %d, want 1 (truncated store resumed)", got)
	}
}

func TestNewRequiresParamsAndProcessor(t *testing.T) {
	if _, err := New(Config{}, 1); err == nil {
		t.Fatalf("New with no Params/Processor should fail")
	}
	if _, err := New(Config{Params: chaincfg.ParamsForNetwork("regtest")}, 1); err == nil {
		t.Fatalf("New with no Processor should fail")
	}
}

func TestOnAddrRecordsKnownAddress(t *testing.T) {
	m := newTestManager(t)
	p := connectedPeer(t)

	var ip [16]byte
	copy(ip[:4], net.IPv4(203, 0, 113, 5).To4())
	msg := &wire.MsgAddr{AddrList: []wire.TimestampedAddress{{
		NetAddress: wire.NetAddress{Services: wire.SFNodeNetwork, IP: ip, Port: 8333},
	}}}
	m.onAddr(p, msg)

	if newCount, _ := m.addrs.Stats(); newCount == 0 {
		t.Fatalf("onAddr did not record the advertised address")
	}
}

func TestOnBlockDiscardsBeforeHeadersSynced(t *testing.T) {
	m := newTestManager(t)
	p := connectedPeer(t)

	block := &wire.MsgBlock{Header: wire.BlockHeader{Timestamp: 1}}
	m.onBlock(p, block)

	select {
	case <-m.blocks:
		t.Fatalf("onBlock enqueued a block before headers sync completed")
	default:
	}
}

// recordingProcessor records every block it is handed, with an optional
// per-block delay to simulate a slow validation engine.
type recordingProcessor struct {
	tip   int32
	delay time.Duration

	mu  sync.Mutex
	got []chainhash.Hash
}

func (r *recordingProcessor) ProcessBlock(raw []byte) (blockprocessor.Result, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.got = append(r.got, chainhash.HashH(raw[:wire.BlockHeaderSize]))
	r.mu.Unlock()
	return blockprocessor.Result{Outcome: blockprocessor.Accepted}, nil
}

func (r *recordingProcessor) TipHeight() int32 { return r.tip }
func (r *recordingProcessor) BestBlockHash() (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}
func (r *recordingProcessor) BlockHashAt(height int32) (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func (r *recordingProcessor) processed() []chainhash.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chainhash.Hash(nil), r.got...)
}

// TestOnBlockBlocksUntilConsumerDrains floods onBlock with more blocks
// than the processing channel holds while the consumer is deliberately
// slow. Every block must reach the processor, in arrival order: a full
// channel suspends the event loop, it never drops.
func TestOnBlockBlocksUntilConsumerDrains(t *testing.T) {
	proc := &recordingProcessor{tip: -1, delay: time.Millisecond}
	cfg := Config{
		Params:    chaincfg.ParamsForNetwork("regtest"),
		DataDir:   t.TempDir(),
		Processor: proc,
	}
	m, err := New(cfg, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	m.sync.PeerHandshakeComplete("peer0", wire.SFNodeNetwork, 1)
	if !m.sync.CheckHeadersSyncComplete(-1) {
		t.Fatalf("headers sync did not complete")
	}

	stop := m.drainBlockConsumer()
	p := connectedPeer(t)

	count := blockQueueDepth * 2
	want := make([]chainhash.Hash, 0, count)
	for i := 0; i < count; i++ {
		blk := &wire.MsgBlock{Header: wire.BlockHeader{Timestamp: uint32(i + 1)}}
		want = append(want, blk.BlockHash())
		m.onBlock(p, blk)
	}
	stop() // close the channel and wait for the consumer to finish draining

	got := proc.processed()
	if len(got) != count {
		t.Fatalf("processor saw %d blocks, want %d (blocks were dropped)", len(got), count)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("block %d delivered out of order", i)
		}
	}
}

func TestOnTxSkipsWithoutFeeOracle(t *testing.T) {
	m := newTestManager(t)
	p := connectedPeer(t)

	tx := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{Value: 1000, PkScript: []byte{0x51}}},
	}
	m.onTx(p, tx)

	if m.pool.Contains(tx.TxHash()) {
		t.Fatalf("onTx admitted a transaction with no FeeOracle configured")
	}
}

type stubFeeOracle struct{ fee uint64 }

func (s stubFeeOracle) TxFee(tx *wire.MsgTx) (uint64, bool) { return s.fee, true }

func TestOnTxAdmitsWhenFeeOracleProvided(t *testing.T) {
	cfg := Config{
		Params:    chaincfg.ParamsForNetwork("regtest"),
		DataDir:   t.TempDir(),
		Processor: &fakeProcessor{tip: -1},
		FeeOracle: stubFeeOracle{fee: 1000},
	}
	m, err := New(cfg, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	p := connectedPeer(t)

	tx := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{Value: 1000, PkScript: []byte{0x51}}},
	}
	m.onTx(p, tx)

	if !m.pool.Contains(tx.TxHash()) {
		t.Fatalf("onTx did not admit a transaction once a FeeOracle was configured")
	}
}
