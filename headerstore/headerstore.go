// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package headerstore implements the append-only, per-network persistent
// sequence of block headers: a flat file of
// fixed 80-byte records, starting at height 1 (genesis is implicit and
// never stored), flushed to disk before each append is acknowledged.
package headerstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
	"github.com/exccoin-labs/xpeerd/wire"
)

// ErrCorrupt indicates the on-disk file ended with a short, incomplete
// trailing record. This is not fatal: load truncates to the last complete
// record and continues.
var ErrCorrupt = errors.New("headerstore: short trailing record")

// ErrOutOfRange indicates HashAt was called with a height outside
// [1, Len()].
var ErrOutOfRange = errors.New("headerstore: height out of range")

// filenameForNetwork maps a network name to its fixed on-disk filename,
// .
func filenameForNetwork(network string) string {
	switch network {
	case "mainnet":
		return "headers_mainnet.dat"
	case "testnet3", "testnet4":
		return "headers_testnet.dat"
	case "signet":
		return "headers_signet.dat"
	default:
		return "headers_regtest.dat"
	}
}

// Store is the append-only per-network header sequence. A Store has a
// single writer (the event loop) and is safe for concurrent reads (Len,
// HashAt) because appends hold the write lock only while mutating the
// in-memory slice and the underlying file.
type Store struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	headers []wire.BlockHeader
	hashes  []chainhash.Hash
}

// Open loads (or creates) the header file for network under datadir. Any
// short trailing record found during load is truncated.C,
// and the file is repositioned for correct appends afterward.
func Open(datadir, network string) (*Store, error) {
	path := filepath.Join(datadir, filenameForNetwork(network))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("headerstore: open %s: %w", path, err)
	}

	s := &Store{path: path, file: f}
	if err := s.load(); err != nil {
		if errors.Is(err, ErrCorrupt) {
			// The store already truncated itself to the last
			// complete record and is fully usable; report the
			// condition without discarding the store.
			return s, ErrCorrupt
		}
		f.Close()
		return nil, err
	}
	return s, nil
}

// load streams 80-byte records from the file until EOF. A short trailing
// record truncates the file to the last complete record and is reported
// via the returned error (ErrCorrupt), but is not otherwise fatal: the
// store is still usable at the truncated length.
func (s *Store) load() error {
	if _, err := s.file.Seek(0, os.SEEK_SET); err != nil {
		return err
	}
	r := bufio.NewReaderSize(s.file, 1<<20)

	var (
		headers []wire.BlockHeader
		hashes  []chainhash.Hash
		offset  int64
		buf     [wire.BlockHeaderSize]byte
	)
	for {
		n, err := readFull(r, buf[:])
		if n == wire.BlockHeaderSize {
			var h wire.BlockHeader
			if derr := h.Deserialize(&byteReader{buf[:]}); derr != nil {
				return fmt.Errorf("headerstore: decode record at offset %d: %w", offset, derr)
			}
			headers = append(headers, h)
			hashes = append(hashes, h.BlockHash())
			offset += wire.BlockHeaderSize
			if err != nil {
				// err is io.EOF exactly at a record boundary: done.
				break
			}
			continue
		}
		if n == 0 {
			// Clean EOF at a record boundary.
			break
		}
		// A short, partial trailing record: truncate and stop.
		if truncErr := s.file.Truncate(offset); truncErr != nil {
			return truncErr
		}
		s.headers = headers
		s.hashes = hashes
		if _, seekErr := s.file.Seek(offset, os.SEEK_SET); seekErr != nil {
			return seekErr
		}
		log.Warnf("headerstore: truncated short trailing record at offset %d (%d bytes)", offset, n)
		return ErrCorrupt
	}

	s.headers = headers
	s.hashes = hashes
	if _, err := s.file.Seek(offset, os.SEEK_SET); err != nil {
		return err
	}
	return nil
}

// byteReader adapts a byte slice to io.Reader for BlockHeader.Deserialize.
type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}

// readFull reads len(buf) bytes, returning the count actually read (which
// may be short on EOF) and the error (io.EOF is returned alongside a
// partial count rather than swallowed, unlike io.ReadFull).
func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Len returns the number of headers stored (the chain height, since
// genesis at height 0 is implicit and not stored).
func (s *Store) Len() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int32(len(s.headers))
}

// HashAt returns the block hash at height (1-indexed; genesis is height 0
// and is not served by the store).
func (s *Store) HashAt(height int32) (chainhash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if height < 1 || int(height) > len(s.hashes) {
		return chainhash.Hash{}, ErrOutOfRange
	}
	return s.hashes[height-1], nil
}

// HeaderAt returns the header at height (1-indexed).
func (s *Store) HeaderAt(height int32) (wire.BlockHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if height < 1 || int(height) > len(s.headers) {
		return wire.BlockHeader{}, ErrOutOfRange
	}
	return s.headers[height-1], nil
}

// Append durably writes one new header to the end of the store. The
// header is flushed to disk before Append returns, so that a restart
// resumes at exactly this height.
func (s *Store) Append(h wire.BlockHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf [wire.BlockHeaderSize]byte
	bw := &byteWriter{buf: buf[:0]}
	if err := h.Serialize(bw); err != nil {
		return err
	}
	if _, err := s.file.Write(bw.buf); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}

	s.headers = append(s.headers, h)
	s.hashes = append(s.hashes, h.BlockHash())
	return nil
}

type byteWriter struct{ buf []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close closes the underlying file. The store is read-only after Close
// returns.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
