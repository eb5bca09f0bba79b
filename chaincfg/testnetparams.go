// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

// TestNet3Params returns the chain parameters for the test network (version
// 3).
func TestNet3Params() *Params {
	return &Params{
		Name:        "testnet3",
		Net:         TestNet3,
		DefaultPort: "18333",
		DNSSeeds: []DNSSeed{
			{"testnet-seed.bitcoin.jonasschnelli.ch", true},
			{"seed.tbtc.petertodd.org", true},
			{"seed.testnet.bitcoin.sprovoost.nl", true},
		},
		GenesisHash: mustHash("000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943"),
		Checkpoints: []Checkpoint{
			{546, mustHash("000000002a936ca763904c3c35fce2f3556c559c0214345d31b1bcebf76acb70")},
		},
	}
}

// TestNet4Params returns the chain parameters for the test network (version
// 4), which reset the chain history relative to testnet3.
func TestNet4Params() *Params {
	return &Params{
		Name:        "testnet4",
		Net:         TestNet4,
		DefaultPort: "48333",
		DNSSeeds: []DNSSeed{
			{"seed.testnet4.bitcoin.sprovoost.nl", true},
			{"seed.testnet4.wiz.biz", true},
		},
		GenesisHash: mustHash("00000000da84f2bafbbc53dee25a72ae507ff4914b867c565be350b0da8bf043"),
	}
}

// SigNetParams returns the chain parameters for the default public signet.
func SigNetParams() *Params {
	return &Params{
		Name:        "signet",
		Net:         SigNet,
		DefaultPort: "38333",
		DNSSeeds: []DNSSeed{
			{"seed.signet.bitcoin.sprovoost.nl", false},
		},
		GenesisHash: mustHash("00000008819873e925422c1ff0f99f7cc9bbb232af63a077a11f8885412394a8"),
	}
}
