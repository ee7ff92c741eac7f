// Package scriptcache is the L1 bounded LRU of prevout scriptPubKeys,
// built on groupcache's lru.Cache.
package scriptcache

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang/groupcache/lru"

	"github.com/pktrune/coreindex/btcutil/er"
)

// entryOverhead is the fixed per-entry byte cost added to script.len when
// accounting against the configured budget.
const entryOverhead = 64

// NodeClient is the external node capability this cache fetches misses
// through: lookup of a transaction's outputs by txid.
type NodeClient interface {
	GetRawTransactionInfo(ctx context.Context, txid *chainhash.Hash) (*TxInfo, er.R)
}

// TxInfo is the subset of a fetched transaction this cache needs: the
// scriptPubKey of each output, indexed by vout, plus the confirmation
// count runeupdater's commitment check reads directly off the verbose RPC
// result rather than re-deriving it from a separate block-height lookup.
type TxInfo struct {
	Vout          []TxOut
	Confirmations int64
}

type TxOut struct {
	ScriptPubKey []byte
}

// Cache is a byte-budgeted LRU of prevout scriptPubKeys keyed by OutPoint.
// Reads that miss fetch through client and populate the cache; the key is
// immutable so no reorg invalidation is required.
type Cache struct {
	mu       sync.Mutex
	ll       *lru.Cache
	maxBytes int
	curBytes int
	hits     uint64
	misses   uint64
}

func New(maxBytes int) *Cache {
	c := &Cache{maxBytes: maxBytes}
	c.ll = lru.New(0) // unlimited entry count; we evict on byte budget ourselves
	c.ll.OnEvicted = func(key lru.Key, value interface{}) {
		c.curBytes -= len(value.([]byte)) + entryOverhead
	}
	return c
}

// GetScriptPubKey returns the cached scriptPubKey for (txid, vout), fetching
// via client on a miss. A nil, nil result means the transaction or vout
// does not exist; a non-nil error is an RPC failure.
func (c *Cache) GetScriptPubKey(ctx context.Context, client NodeClient, txid chainhash.Hash, vout uint32) ([]byte, er.R) {
	op := wire.OutPoint{Hash: txid, Index: vout}

	c.mu.Lock()
	if v, ok := c.ll.Get(op); ok {
		c.hits++
		c.mu.Unlock()
		return v.([]byte), nil
	}
	c.misses++
	c.mu.Unlock()

	info, err := client.GetRawTransactionInfo(ctx, &txid)
	if err != nil {
		return nil, err
	}
	if info == nil || int(vout) >= len(info.Vout) {
		return nil, nil
	}
	script := info.Vout[vout].ScriptPubKey

	c.mu.Lock()
	c.insertLocked(op, script)
	c.mu.Unlock()
	return script, nil
}

func (c *Cache) insertLocked(op wire.OutPoint, script []byte) {
	c.ll.Add(op, script)
	c.curBytes += len(script) + entryOverhead
	for c.curBytes > c.maxBytes && c.ll.Len() > 0 {
		c.ll.RemoveOldest()
	}
}

// Stats reports the observability-only hit/miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) CurrentBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}
