// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
)

// TestCheckpointsAscending ensures every registered network's checkpoint
// table is strictly ascending by height.
func TestCheckpointsAscending(t *testing.T) {
	for _, name := range []string{"mainnet", "testnet3", "testnet4", "signet", "regtest"} {
		params := ParamsForNetwork(name)
		prev := int32(-1)
		for _, cp := range params.Checkpoints {
			if cp.Height <= prev {
				t.Fatalf("%s: checkpoints not strictly ascending: %s", name, spew.Sdump(params.Checkpoints))
			}
			prev = cp.Height
		}
	}
}

// TestParamsForNetworkFallback ensures unknown network names fall back to
// regtest parameters.
func TestParamsForNetworkFallback(t *testing.T) {
	got := ParamsForNetwork("legacy-testnet")
	want := RegNetParams()
	if got.Name != want.Name || got.Net != want.Net {
		t.Fatalf("ParamsForNetwork fallback = %+v, want %+v", got, want)
	}
	if len(got.DNSSeeds) != 0 {
		t.Fatalf("regtest fallback must have no DNS seeds, got %d", len(got.DNSSeeds))
	}
	if len(got.Checkpoints) != 0 {
		t.Fatalf("regtest fallback must have no checkpoints, got %d", len(got.Checkpoints))
	}
}

// TestCheckpointByHeight exercises lookup and latest-height helpers.
func TestCheckpointByHeight(t *testing.T) {
	params := MainNetParams()
	last := params.Checkpoints[len(params.Checkpoints)-1]
	got, ok := params.CheckpointByHeight(last.Height)
	if !ok || got.Hash != last.Hash {
		t.Fatalf("CheckpointByHeight(%d) = %v, %v; want %v, true", last.Height, got, ok, last)
	}
	if _, ok := params.CheckpointByHeight(-1); ok {
		t.Fatalf("CheckpointByHeight(-1) unexpectedly found")
	}
	if params.LatestCheckpointHeight() != last.Height {
		t.Fatalf("LatestCheckpointHeight() = %d, want %d", params.LatestCheckpointHeight(), last.Height)
	}
	if RegNetParams().LatestCheckpointHeight() != -1 {
		t.Fatalf("regtest LatestCheckpointHeight() should be -1")
	}
}
