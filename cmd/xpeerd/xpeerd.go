// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command xpeerd runs a headers-first sync engine and mempool. It owns
// the peer-to-peer wire protocol, header chain, and
// transaction relay pool; block validation and UTXO maintenance are left
// to an external BlockProcessor the integrator supplies at embed time, so
// the stock binary here drives the engine against a no-op processor
// suitable for exercising sync behavior standalone.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/exccoin-labs/xpeerd/blockprocessor"
	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/engine"
)

// stockProcessor is the BlockProcessor used when xpeerd is run as a
// standalone binary rather than embedded by an integrator that supplies
// its own chain state and UTXO set. It reports every block as AlreadyKnown
// without decoding it and always reports a tip height of -1, so downloaded
// blocks never advance the tip, while headers sync still completes once the
// header chain nears the best advertised height; running the stock binary
// exercises the header chain, block download requests and peer management
// end to end without needing a real consensus collaborator.
type stockProcessor struct{}

func (stockProcessor) ProcessBlock(raw []byte) (blockprocessor.Result, error) {
	return blockprocessor.Result{Outcome: blockprocessor.AlreadyKnown}, nil
}

func (stockProcessor) TipHeight() int32 { return -1 }

func (stockProcessor) BestBlockHash() (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func (stockProcessor) BlockHashAt(height int32) (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func main() {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	useLoggers()
	defer logRotator.Close()

	log.Infof("xpeerd starting (chain %s, datadir %s)", cfg.params.Name, cfg.DataDir)

	if err := run(cfg); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgrCfg := engine.Config{
		Params:    cfg.params,
		DataDir:   cfg.DataDir,
		Peers:     cfg.Peers,
		UserAgent: cfg.UserAgent,
		Processor: stockProcessor{},
	}

	mgr, err := engine.New(mgrCfg, rand.Uint64())
	if err != nil {
		return fmt.Errorf("failed to initialize peer manager: %w", err)
	}
	defer mgr.Close()

	log.Infof("listening for peers on %s network", cfg.params.Name)
	if err := mgr.Run(ctx); err != nil {
		return fmt.Errorf("peer manager exited with error: %w", err)
	}

	log.Infof("xpeerd shutting down")
	return nil
}
