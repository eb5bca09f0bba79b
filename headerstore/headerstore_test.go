// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package headerstore

import (
	"os"
	"testing"

	"github.com/exccoin-labs/xpeerd/wire"
)

func makeHeader(n byte) wire.BlockHeader {
	var h wire.BlockHeader
	h.Version = int32(n)
	h.PrevBlock[0] = n
	h.Timestamp = uint32(n)
	return h
}

// TestAppendAndLoadRoundTrip verifies load(store_after_appends(h1..hN)) ==
// [h1..hN].
func TestAppendAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := []wire.BlockHeader{makeHeader(1), makeHeader(2), makeHeader(3)}
	for _, h := range want {
		if err := s.Append(h); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir, "regtest")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if got := s2.Len(); got != int32(len(want)) {
		t.Fatalf("Len() = %d, want %d", got, len(want))
	}
	for i, h := range want {
		got, err := s2.HeaderAt(int32(i + 1))
		if err != nil {
			t.Fatalf("HeaderAt(%d): %v", i+1, err)
		}
		if got != h {
			t.Fatalf("HeaderAt(%d) = %+v, want %+v", i+1, got, h)
		}
	}
}

// TestLoadTruncatesShortTrailingRecord verifies that a partial trailing
// record is truncated on load and the store continues at the longest
// valid prefix.
func TestLoadTruncatesShortTrailingRecord(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(makeHeader(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(makeHeader(2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a process kill mid-append: append a short trailing record
	// directly to the file.
	path := filenameForNetwork("regtest")
	f, err := os.OpenFile(dir+"/"+path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := f.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close raw: %v", err)
	}

	s2, err := Open(dir, "regtest")
	if err != ErrCorrupt {
		t.Fatalf("Open after partial append: err = %v, want ErrCorrupt", err)
	}
	if got := s2.Len(); got != 2 {
		t.Fatalf("Len() after truncate = %d, want 2", got)
	}
	if err := s2.Append(makeHeader(3)); err != nil {
		t.Fatalf("Append after truncate: %v", err)
	}
	if got := s2.Len(); got != 3 {
		t.Fatalf("Len() after resumed append = %d, want 3", got)
	}
}

// TestHashAtOutOfRange verifies bounds checking on HashAt.
func TestHashAtOutOfRange(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.HashAt(0); err != ErrOutOfRange {
		t.Fatalf("HashAt(0) err = %v, want ErrOutOfRange", err)
	}
	if _, err := s.HashAt(1); err != ErrOutOfRange {
		t.Fatalf("HashAt(1) on empty store err = %v, want ErrOutOfRange", err)
	}
}
