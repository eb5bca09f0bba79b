// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

// RegNetParams returns the chain parameters for the regression test
// network. It is also the fallback used by ParamsForNetwork for any
// network name it does not recognize, per the network-enum
// fallback rule: no DNS seeds, no checkpoints, no assume-valid hint.
func RegNetParams() *Params {
	return &Params{
		Name:        "regtest",
		Net:         RegNet,
		DefaultPort: "18444",
		DNSSeeds:    nil,
		GenesisHash: mustHash("0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206"),
		Checkpoints: nil,
	}
}
