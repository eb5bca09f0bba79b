// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

// MainNetParams returns the chain parameters for the principal bitcoin
// network.
//
// NOTE: verify the checkpoint table against an authoritative source
// before running this against real mainnet peers.
func MainNetParams() *Params {
	return &Params{
		Name:        "mainnet",
		Net:         MainNet,
		DefaultPort: "8333",
		DNSSeeds: []DNSSeed{
			{"seed.bitcoin.sipa.be", true},
			{"dnsseed.bluematt.me", true},
			{"dnsseed.bitcoin.dashjr.org", false},
			{"seed.bitcoinstats.com", true},
			{"seed.bitcoin.jonasschnelli.ch", true},
			{"seed.btc.petertodd.org", true},
		},
		GenesisHash: mustHash("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"),

		// Checkpoints ordered from oldest to newest.
		Checkpoints: []Checkpoint{
			{11111, mustHash("0000000069e244f73d78e8fd29ba2fd2ed618bd6fa2ee92559f542fdb26e7c1d")},
			{33333, mustHash("000000002dd5588a74784eaa7ab0507a18ad16a236e7b1ce69f00d7ddfb5d0a6")},
			{74000, mustHash("0000000000573993a3c9e41ce34471c079dcf5f52a0e824a81e7f953b8661a20")},
			{105000, mustHash("00000000000291ce28027faea320c8d2b054b2e0fe44a773f3eefb151d6bdc97")},
			{168000, mustHash("000000000000099e61ea72015e79632f216fe6cb33d7899acb35b75c8303b763")},
			{193000, mustHash("000000000000059f452a5f7340de6682a977387c17010ff6e6c3bd83ca8b1317")},
			{210000, mustHash("000000000000048b95347e83192f69cf0366076336c639f9b7228e9ba171342e")},
			{216116, mustHash("00000000000001b4f4b433e81ee46494af945cf96014816a4e2370f11b23df4e")},
			{225430, mustHash("00000000000001c108384350f74090433e7fcf79a606b8e797f065b130575932")},
			{250000, mustHash("000000000000003887df1f29024b06fc2200b55f8af8f35453d7be294df2d214")},
		},

		AssumeValid: hashPtr(mustHash("0000000000000000000b9d2ec530a5560b9efe5be0db8e4f4e8389eaa0e8723d")),

		// Roughly the cumulative work at the AssumeValid height. Updated
		// periodically with releases.
		MinimumChainWork: mustWork("00000000000000000000000000000000000000000005ddd903b0aba2eb69929"),
	}
}
