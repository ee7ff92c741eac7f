package scriptcache

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/pktrune/coreindex/btcutil/er"
)

type fakeClient struct {
	calls int
	txs   map[chainhash.Hash]*TxInfo
}

func (f *fakeClient) GetRawTransactionInfo(_ context.Context, txid *chainhash.Hash) (*TxInfo, er.R) {
	f.calls++
	return f.txs[*txid], nil
}

func TestCacheHitsAndMisses(t *testing.T) {
	var h chainhash.Hash
	h[0] = 1
	client := &fakeClient{txs: map[chainhash.Hash]*TxInfo{
		h: {Vout: []TxOut{{ScriptPubKey: []byte{0xaa, 0xbb}}}},
	}}
	c := New(1 << 20)

	s1, err := c.GetScriptPubKey(context.Background(), client, h, 0)
	require.Nil(t, err)
	require.Equal(t, []byte{0xaa, 0xbb}, s1)
	require.Equal(t, 1, client.calls)

	s2, err := c.GetScriptPubKey(context.Background(), client, h, 0)
	require.Nil(t, err)
	require.Equal(t, s1, s2)
	require.Equal(t, 1, client.calls, "second lookup should hit cache, not refetch")

	hits, misses := c.Stats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(1), misses)
}

func TestCacheMissOutOfRangeVout(t *testing.T) {
	var h chainhash.Hash
	h[0] = 2
	client := &fakeClient{txs: map[chainhash.Hash]*TxInfo{
		h: {Vout: []TxOut{{ScriptPubKey: []byte{0x01}}}},
	}}
	c := New(1 << 20)
	s, err := c.GetScriptPubKey(context.Background(), client, h, 5)
	require.Nil(t, err)
	require.Nil(t, s)
}

func TestCacheEvictsUnderBudget(t *testing.T) {
	client := &fakeClient{txs: map[chainhash.Hash]*TxInfo{}}
	var h1, h2, h3 chainhash.Hash
	h1[0], h2[0], h3[0] = 1, 2, 3
	script := make([]byte, 32)
	client.txs[h1] = &TxInfo{Vout: []TxOut{{ScriptPubKey: script}}}
	client.txs[h2] = &TxInfo{Vout: []TxOut{{ScriptPubKey: script}}}
	client.txs[h3] = &TxInfo{Vout: []TxOut{{ScriptPubKey: script}}}

	// budget for roughly 2 entries (each costs len(script)+64 = 96 bytes)
	c := New(96 * 2)
	_, err := c.GetScriptPubKey(context.Background(), client, h1, 0)
	require.Nil(t, err)
	_, err = c.GetScriptPubKey(context.Background(), client, h2, 0)
	require.Nil(t, err)
	_, err = c.GetScriptPubKey(context.Background(), client, h3, 0)
	require.Nil(t, err)

	require.LessOrEqual(t, c.CurrentBytes(), 96*2)
}
