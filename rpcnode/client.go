// Package rpcnode adapts a github.com/btcsuite/btcd/rpcclient connection to
// the NodeClient capability consumed by scriptcache and the rest of the
// core, keeping btcjson types out of the core's own interfaces.
package rpcnode

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/scriptcache"
)

var Err = er.NewErrorType("rpcnode.Err")

// Client wraps an rpcclient.Client to satisfy scriptcache.NodeClient, the
// sole node capability runeupdater and scriptcache consume.
type Client struct {
	rpc *rpcclient.Client
}

func New(rpc *rpcclient.Client) *Client {
	return &Client{rpc: rpc}
}

// GetRawTransactionInfo fetches a transaction's outputs by txid, decoding
// each scriptPubKey's hex into raw bytes. A not-found transaction returns
// (nil, nil) so the cache can treat it the same as an out-of-range vout.
func (c *Client) GetRawTransactionInfo(_ context.Context, txid *chainhash.Hash) (*scriptcache.TxInfo, er.R) {
	raw, err := c.rpc.GetRawTransactionVerbose(txid)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, er.E(err)
	}
	out := make([]scriptcache.TxOut, len(raw.Vout))
	for i, v := range raw.Vout {
		script, errr := hex.DecodeString(v.ScriptPubKey.Hex)
		if errr != nil {
			return nil, er.E(errr)
		}
		out[i] = scriptcache.TxOut{ScriptPubKey: script}
	}
	return &scriptcache.TxInfo{Vout: out, Confirmations: int64(raw.Confirmations)}, nil
}

// isNotFound reports whether err is the JSON-RPC server's "no information
// available about transaction" response.
func isNotFound(err error) bool {
	rpcErr, ok := err.(*btcjson.RPCError)
	return ok && rpcErr.Code == btcjson.ErrRPCNoTxInfo
}
