// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

// Network represents which bitcoin network a message belongs to, encoded
// as the four-byte magic prefix of every wire frame.
type Network uint32

// Magic values for each network's wire frame prefix. These intentionally
// differ per network so a peer speaking the wrong chain is rejected at the
// framing layer rather than the handshake layer.
const (
	MainNet  Network = 0xd9b4bef9
	TestNet3 Network = 0x0709110b
	TestNet4 Network = 0x283f161c
	SigNet   Network = 0x40cf030a
	RegNet   Network = 0xdab5bffa
)

// String returns the human-readable network name, or "unknown" for an
// unrecognized magic.
func (n Network) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet3:
		return "testnet3"
	case TestNet4:
		return "testnet4"
	case SigNet:
		return "signet"
	case RegNet:
		return "regtest"
	default:
		return "unknown"
	}
}
