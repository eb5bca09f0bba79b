// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "errors"

// ErrMalformed indicates a frame or message failed to parse: bad magic,
// oversize payload, checksum mismatch, or a field that violates a bound
// the codec enforces. Any of these drop the peer.
var ErrMalformed = errors.New("wire: malformed message")

// ErrUnknownCommand indicates the frame's command does not match any
// message in the catalog. Unknown commands are not an error: they are
// delivered to the caller as an opaque, ignorable frame.
var ErrUnknownCommand = errors.New("wire: unknown command")

// ErrEarlyEOF indicates the peer closed the connection cleanly between
// frames, as opposed to mid-frame (which is ErrMalformed).
var ErrEarlyEOF = errors.New("wire: peer closed connection before next frame")
