// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/exccoin-labs/xpeerd/chaincfg/chainhash"
)

// MaxVarIntPayload is the maximum payload size for a variable length
// integer.
const MaxVarIntPayload = 9

// littleEndian is the byte order used when reading and writing
// fixed-width fields.
var littleEndian = binary.LittleEndian

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case int32:
		return binary.Write(w, littleEndian, e)
	case uint32:
		return binary.Write(w, littleEndian, e)
	case int64:
		return binary.Write(w, littleEndian, e)
	case uint64:
		return binary.Write(w, littleEndian, e)
	case bool:
		var b [1]byte
		if e {
			b[0] = 1
		}
		_, err := w.Write(b[:])
		return err
	case *chainhash.Hash:
		_, err := w.Write(e[:])
		return err
	case []byte:
		_, err := w.Write(e)
		return err
	default:
		return binary.Write(w, littleEndian, e)
	}
}

func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *int32:
		return binary.Read(r, littleEndian, e)
	case *uint32:
		return binary.Read(r, littleEndian, e)
	case *int64:
		return binary.Read(r, littleEndian, e)
	case *uint64:
		return binary.Read(r, littleEndian, e)
	case *bool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0] != 0
		return nil
	case *chainhash.Hash:
		_, err := io.ReadFull(r, e[:])
		return err
	default:
		return binary.Read(r, littleEndian, e)
	}
}

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64, using the bitcoin CompactSize encoding.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}

	var rv uint64
	switch prefix[0] {
	case 0xff:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		rv = littleEndian.Uint64(buf[:])
	case 0xfe:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		rv = uint64(littleEndian.Uint32(buf[:]))
	case 0xfd:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		rv = uint64(littleEndian.Uint16(buf[:]))
	default:
		rv = uint64(prefix[0])
	}
	return rv, nil
}

// WriteVarInt writes val to w using the bitcoin CompactSize encoding.
func WriteVarInt(w io.Writer, val uint64) error {
	if val < 0xfd {
		_, err := w.Write([]byte{byte(val)})
		return err
	}
	if val <= 0xffff {
		buf := make([]byte, 3)
		buf[0] = 0xfd
		littleEndian.PutUint16(buf[1:], uint16(val))
		_, err := w.Write(buf)
		return err
	}
	if val <= 0xffffffff {
		buf := make([]byte, 5)
		buf[0] = 0xfe
		littleEndian.PutUint32(buf[1:], uint32(val))
		_, err := w.Write(buf)
		return err
	}
	buf := make([]byte, 9)
	buf[0] = 0xff
	littleEndian.PutUint64(buf[1:], val)
	_, err := w.Write(buf)
	return err
}

// MaxVarStringLen bounds how large a variable length string xpeerd will
// decode, to avoid a malicious peer forcing an enormous allocation.
const MaxVarStringLen = 1024

// ReadVarString reads a variable length string from r, bounded by
// MaxVarStringLen.
func ReadVarString(r io.Reader) (string, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if length > MaxVarStringLen {
		return "", fmt.Errorf("%w: variable length string is too long "+
			"[len %d, max %d]", ErrMalformed, length, MaxVarStringLen)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteVarString writes s to w as a CompactSize-length-prefixed string.
func WriteVarString(w io.Writer, s string) error {
	if err := WriteVarInt(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// ReadVarBytes reads a variable length byte slice bounded by maxAllowed.
func ReadVarBytes(r io.Reader, maxAllowed uint64, fieldName string) ([]byte, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if length > maxAllowed {
		return nil, fmt.Errorf("%w: %s is larger than the max allowed "+
			"size [len %d, max %d]", ErrMalformed, fieldName, length, maxAllowed)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteVarBytes writes b to w as a CompactSize-length-prefixed byte slice.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
