// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"fmt"
	"testing"

	"github.com/exccoin-labs/xpeerd/wire"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewManagerStartsEmpty(t *testing.T) {
	m := newTestManager(t)
	n, tr := m.Stats()
	if n != 0 || tr != 0 {
		t.Fatalf("Stats() = (%d, %d), want (0, 0)", n, tr)
	}
}

func TestAddAddress(t *testing.T) {
	m := newTestManager(t)
	if !m.AddAddress("1.2.3.4:8333", wire.SFNodeNetwork, "") {
		t.Fatalf("AddAddress() = false, want true for a fresh address")
	}
	n, tr := m.Stats()
	if n != 1 || tr != 0 {
		t.Fatalf("Stats() = (%d, %d), want (1, 0)", n, tr)
	}
	if m.AddAddress("1.2.3.4:8333", wire.SFNodeNetwork, "") {
		t.Fatalf("AddAddress() = true on a duplicate, want false")
	}
}

func TestGoodMovesAddressToTried(t *testing.T) {
	m := newTestManager(t)
	m.AddAddress("1.2.3.4:8333", wire.SFNodeNetwork, "")
	m.Good("1.2.3.4:8333")

	n, tr := m.Stats()
	if n != 0 || tr != 1 {
		t.Fatalf("Stats() after Good() = (%d, %d), want (0, 1)", n, tr)
	}
}

func TestOwnAddressFiltered(t *testing.T) {
	m := newTestManager(t)
	m.AddOwnAddress("1.2.3.4:8333")
	if m.AddAddress("1.2.3.4:8333", wire.SFNodeNetwork, "") {
		t.Fatalf("AddAddress() = true for our own address, want false")
	}
}

func TestGetAddressSelectsKnownAddress(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 10; i++ {
		m.AddAddress(fmt.Sprintf("1.2.3.%d:8333", i), wire.SFNodeNetwork, "")
	}
	addr, ok := m.GetAddress()
	if !ok {
		t.Fatalf("GetAddress() ok = false, want true with 10 known addresses")
	}
	if addr == "" {
		t.Fatalf("GetAddress() returned empty address")
	}
}

func TestAttemptIncrementsCount(t *testing.T) {
	m := newTestManager(t)
	m.AddAddress("1.2.3.4:8333", wire.SFNodeNetwork, "")
	m.Attempt("1.2.3.4:8333")
	m.Attempt("1.2.3.4:8333")

	m.mu.RLock()
	ka := m.new["1.2.3.4:8333"]
	m.mu.RUnlock()
	if ka.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", ka.Attempts)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	m, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.AddAddress("1.2.3.4:8333", wire.SFNodeNetwork, "")
	m.Good("1.2.3.4:8333")
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()

	n, tr := m2.Stats()
	if n != 0 || tr != 1 {
		t.Fatalf("Stats() after reopen = (%d, %d), want (0, 1)", n, tr)
	}
}
