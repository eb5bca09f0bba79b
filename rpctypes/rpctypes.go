// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpctypes defines the JSON result and parameter shapes for the
// node's RPC surface. xpeerd's core does not itself run an
// RPC server — the integrator exposes these over whatever transport it
// chooses — but the shapes follow the Bitcoin Core RPC naming
// conventions and the usual json-tagged-struct idiom.
package rpctypes

// GetBlockChainInfoResult is the result of getblockchaininfo.
type GetBlockChainInfoResult struct {
	Chain                string  `json:"chain"`
	Blocks               int32   `json:"blocks"`
	Headers              int32   `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	VerificationProgress float64 `json:"verificationprogress"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
}

// ChainTip describes one entry of getchaintips.
type ChainTip struct {
	Height    int32  `json:"height"`
	Hash      string `json:"hash"`
	BranchLen int32  `json:"branchlen"`
	Status    string `json:"status"`
}

// GetMempoolInfoResult is the result of getmempoolinfo.
type GetMempoolInfoResult struct {
	Loaded        bool    `json:"loaded"`
	Size          int     `json:"size"`
	Bytes         int64   `json:"bytes"`
	Usage         int64   `json:"usage"`
	MaxMempool    int64   `json:"maxmempool"`
	MempoolMinFee float64 `json:"mempoolminfee"`
	MinRelayTxFee float64 `json:"minrelaytxfee"`
}

// MempoolEntry is one entry of the verbose getrawmempool result.
type MempoolEntry struct {
	VSize             int64    `json:"vsize"`
	Weight            int64    `json:"weight"`
	Fee               float64  `json:"fee"`
	Time              int64    `json:"time"`
	Height            int32    `json:"height"`
	DescendantCount   int      `json:"descendantcount"`
	DescendantSize    int64    `json:"descendantsize"`
	AncestorCount     int      `json:"ancestorcount"`
	AncestorSize      int64    `json:"ancestorsize"`
	Depends           []string `json:"depends"`
	SpentBy           []string `json:"spentby"`
	BIP125Replaceable bool     `json:"bip125-replaceable"`
}

// GetTxOutSetInfoResult is the result of gettxoutsetinfo. xpeerd has no
// UTXO set of its own (that lives in the external BlockProcessor); the
// integrator is expected to populate this from that
// collaborator.
type GetTxOutSetInfoResult struct {
	Height       int32   `json:"height"`
	BestBlock    string  `json:"bestblock"`
	Transactions int64   `json:"transactions"`
	TxOuts       int64   `json:"txouts"`
	TotalAmount  float64 `json:"total_amount"`
}

// GetNetworkInfoResult is the result of getnetworkinfo.
type GetNetworkInfoResult struct {
	Version         int32    `json:"version"`
	ProtocolVersion uint32   `json:"protocolversion"`
	Connections     int      `json:"connections"`
	ConnectionsIn   int      `json:"connections_in"`
	ConnectionsOut  int      `json:"connections_out"`
	Networks        []string `json:"networks"`
	RelayFee        float64  `json:"relayfee"`
}

// GetPeerInfoResult is one entry of getpeerinfo.
type GetPeerInfoResult struct {
	ID             int32   `json:"id"`
	Addr           string  `json:"addr"`
	Services       string  `json:"services"`
	LastSend       int64   `json:"lastsend"`
	LastRecv       int64   `json:"lastrecv"`
	BytesSent      uint64  `json:"bytessent"`
	BytesRecv      uint64  `json:"bytesrecv"`
	ConnTime       int64   `json:"conntime"`
	PingTime       float64 `json:"pingtime"`
	Version        uint32  `json:"version"`
	SubVer         string  `json:"subver"`
	Inbound        bool    `json:"inbound"`
	StartingHeight int32   `json:"startingheight"`
	SyncedHeaders  int32   `json:"synced_headers"`
	SyncedBlocks   int32   `json:"synced_blocks"`
}

// SetBanCmd is the parameter shape for setban.
type SetBanCmd struct {
	Subnet  string `json:"subnet"`
	Command string `json:"command"` // "add" or "remove"
	BanTime int64  `json:"bantime,omitempty"`
}

// ListBannedResult is one entry of listbanned.
type ListBannedResult struct {
	Address     string `json:"address"`
	BannedUntil int64  `json:"banned_until"`
	BanCreated  int64  `json:"ban_created"`
}

// AddNodeCmd is the parameter shape for addnode.
type AddNodeCmd struct {
	Addr    string `json:"addr"`
	Command string `json:"command"` // "add", "remove", or "onetry"
}

// DisconnectNodeCmd is the parameter shape for disconnectnode.
type DisconnectNodeCmd struct {
	Address string `json:"address,omitempty"`
	NodeID  *int32 `json:"nodeid,omitempty"`
}
