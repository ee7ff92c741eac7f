package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/allocation"
	"github.com/pktrune/coreindex/authority"
	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/compactscript"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/scriptcache"
	"github.com/pktrune/coreindex/store"
)

type fakeNode struct {
	scripts map[chainhash.Hash][]byte
}

func (n *fakeNode) GetRawTransactionInfo(_ context.Context, txid *chainhash.Hash) (*scriptcache.TxInfo, er.R) {
	script, ok := n.scripts[*txid]
	if !ok {
		return nil, nil
	}
	return &scriptcache.TxInfo{Vout: []scriptcache.TxOut{{ScriptPubKey: script}}}, nil
}

type fixture struct {
	db   *store.DB
	node *fakeNode
	exec *Executor
}

func newFixture(t *testing.T) *fixture {
	db, err := store.Open(filepath.Join(t.TempDir(), "exec.db"), store.AllBuckets)
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })
	node := &fakeNode{scripts: make(map[chainhash.Hash][]byte)}
	a := authority.New(authority.NewContextCache(1<<20), scriptcache.New(1<<20), node)
	return &fixture{db: db, node: node, exec: New(a)}
}

func p2tr(fill byte) []byte {
	body := make([]byte, 32)
	for i := range body {
		body[i] = fill
	}
	script, _ := compactscript.ToScript(runetypes.CompactScript{Kind: runetypes.KindP2TR, Body: body})
	return script
}

func p2trBody(fill byte) []byte {
	body := make([]byte, 32)
	for i := range body {
		body[i] = fill
	}
	return body
}

// fund registers a synthetic one-output prevout transaction carrying script
// and returns an input spending it.
func (f *fixture) fund(tag byte, script []byte) *wire.TxIn {
	var h chainhash.Hash
	h[0] = tag
	h[1] = 0xfd
	f.node.scripts[h] = script
	return &wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: h, Index: 0}}
}

func txWithOutputs(scripts ...[]byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	for _, s := range scripts {
		tx.AddTxOut(wire.NewTxOut(0, s))
	}
	return tx
}

func opReturn() []byte {
	return []byte{txscript.OP_RETURN}
}

func (f *fixture) run(t *testing.T, msgTx *wire.MsgTx, r *runetypes.Runestone, etched *runetypes.RuneId, unallocated allocation.Unallocated) Allocated {
	allocated := make(Allocated)
	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		return f.exec.Run(context.Background(), tx, msgTx, r, etched, unallocated, allocated)
	})
	require.Nil(t, err)
	return allocated
}

func TestEdictSingleOutputCapsAtBalance(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 5, Tx: 1}
	unallocated := allocation.Unallocated{id: runetypes.NewLot(30)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x10))

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.NewLot(100), Output: 1}},
	}, nil, unallocated)

	require.Equal(t, 0, allocated[1].Get(id).Cmp(runetypes.NewLot(30)))
	require.True(t, unallocated.Get(id).IsZero())
}

func TestEdictZeroAmountMovesFullBalance(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 5, Tx: 2}
	unallocated := allocation.Unallocated{id: runetypes.NewLot(250)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x11))

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.Lot{}, Output: 1}},
	}, nil, unallocated)

	require.Equal(t, 0, allocated[1].Get(id).Cmp(runetypes.NewLot(250)))
}

func TestEdictOutputBeyondRangeSkipped(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 5, Tx: 3}
	unallocated := allocation.Unallocated{id: runetypes.NewLot(9)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x12))

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.NewLot(9), Output: 3}},
	}, nil, unallocated)

	require.Empty(t, allocated)
	require.Equal(t, 0, unallocated.Get(id).Cmp(runetypes.NewLot(9)))
}

func TestEdictZeroIdRetargetsToEtched(t *testing.T) {
	f := newFixture(t)
	etched := runetypes.RuneId{Block: 100, Tx: 0}
	unallocated := allocation.Unallocated{etched: runetypes.NewLot(40)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x13))

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: runetypes.RuneId{}, Amount: runetypes.NewLot(40), Output: 1}},
	}, &etched, unallocated)

	require.Equal(t, 0, allocated[1].Get(etched).Cmp(runetypes.NewLot(40)))
}

func TestEdictZeroIdWithoutEtchSkipped(t *testing.T) {
	f := newFixture(t)
	msgTx := txWithOutputs(opReturn(), p2tr(0x14))
	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: runetypes.RuneId{}, Amount: runetypes.NewLot(7), Output: 1}},
	}, nil, make(allocation.Unallocated))
	require.Empty(t, allocated)
}

func TestDistributeSentinelEvenSplitWithRemainder(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 6, Tx: 0}
	unallocated := allocation.Unallocated{id: runetypes.NewLot(100)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x20), p2tr(0x21), p2tr(0x22))

	// output == len(outputs) is the distribute sentinel; amount 0 splits
	// the balance evenly with the remainder going to the earliest outputs.
	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.Lot{}, Output: 4}},
	}, nil, unallocated)

	require.Equal(t, 0, allocated[1].Get(id).Cmp(runetypes.NewLot(34)))
	require.Equal(t, 0, allocated[2].Get(id).Cmp(runetypes.NewLot(33)))
	require.Equal(t, 0, allocated[3].Get(id).Cmp(runetypes.NewLot(33)))
	require.True(t, unallocated.Get(id).IsZero())
}

func TestDistributeSentinelFixedAmountInOrder(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 6, Tx: 1}
	unallocated := allocation.Unallocated{id: runetypes.NewLot(25)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x23), p2tr(0x24), p2tr(0x25))

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.NewLot(10), Output: 4}},
	}, nil, unallocated)

	require.Equal(t, 0, allocated[1].Get(id).Cmp(runetypes.NewLot(10)))
	require.Equal(t, 0, allocated[2].Get(id).Cmp(runetypes.NewLot(10)))
	require.Equal(t, 0, allocated[3].Get(id).Cmp(runetypes.NewLot(5)))
}

func TestBlacklistedDestinationStaysWithSender(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 7, Tx: 0}
	banned := p2trBody(0x30)

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		return f.exec.Authority.Blacklist(tx, id, append([]byte{byte(runetypes.KindP2TR)}, banned...))
	})
	require.Nil(t, err)

	unallocated := allocation.Unallocated{id: runetypes.NewLot(100)}
	msgTx := txWithOutputs(opReturn(), p2tr(0x30))

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.NewLot(100), Output: 1}},
	}, nil, unallocated)

	require.Empty(t, allocated)
	require.Equal(t, 0, unallocated.Get(id).Cmp(runetypes.NewLot(100)))
}

func TestAuthorityMintRaisesBalanceAndSupplyExtra(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 8, Tx: 0}
	authScript := p2tr(0x40)

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		if err := store.AuthorityFlags.Insert(tx, id, runetypes.BitMint.Union(runetypes.BitMaster)); err != nil {
			return err
		}
		cs, _ := compactscript.TryFromScript(authScript)
		return f.exec.Authority.SeedAllSlots(tx, id, cs)
	})
	require.Nil(t, err)

	msgTx := txWithOutputs(opReturn(), p2tr(0x41))
	msgTx.TxIn[0] = f.fund(0x40, authScript)

	unallocated := make(allocation.Unallocated)
	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.NewLot(1000), Output: 1}},
	}, nil, unallocated)

	require.Equal(t, 0, allocated[1].Get(id).Cmp(runetypes.NewLot(1000)))
	err = f.db.View(func(tx *bbolt.Tx) er.R {
		extra, ok, err := store.SupplyExtra.Get(tx, id)
		require.True(t, ok)
		require.Equal(t, 0, extra.Cmp(runetypes.NewLot(1000)))
		return err
	})
	require.Nil(t, err)
}

func TestAuthorityMintUnauthorizedLeavesBalance(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 8, Tx: 1}

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		if err := store.AuthorityFlags.Insert(tx, id, runetypes.BitMint); err != nil {
			return err
		}
		cs, _ := compactscript.TryFromScript(p2tr(0x50))
		return f.exec.Authority.SeedAllSlots(tx, id, cs)
	})
	require.Nil(t, err)

	msgTx := txWithOutputs(opReturn(), p2tr(0x51))
	msgTx.TxIn[0] = f.fund(0x52, p2tr(0x52)) // not the authority script

	allocated := f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.NewLot(1000), Output: 1}},
	}, nil, make(allocation.Unallocated))

	require.Empty(t, allocated)
	err = f.db.View(func(tx *bbolt.Tx) er.R {
		_, ok, err := store.SupplyExtra.Get(tx, id)
		require.False(t, ok)
		return err
	})
	require.Nil(t, err)
}

func TestSetAuthorityStripsBlacklistBitWithoutFlag(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 9, Tx: 0}
	authScript := p2tr(0x60)

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		// Mint+Master only; the rune was etched without blacklisting terms.
		if err := store.AuthorityFlags.Insert(tx, id, runetypes.BitMint.Union(runetypes.BitMaster)); err != nil {
			return err
		}
		cs, _ := compactscript.TryFromScript(authScript)
		return f.exec.Authority.SeedAllSlots(tx, id, cs)
	})
	require.Nil(t, err)

	var before []byte
	f.db.View(func(tx *bbolt.Tx) er.R {
		b, _, err := store.AuthorityScripts.Get(tx, id)
		before = append([]byte(nil), b...)
		return err
	})

	msgTx := txWithOutputs(opReturn(), p2tr(0x61))
	msgTx.TxIn[0] = f.fund(0x60, authScript)

	f.run(t, msgTx, &runetypes.Runestone{
		Edicts: []runetypes.Edict{{Id: id, Amount: runetypes.Lot{}, Output: 1}},
		SetAuthority: &runetypes.SetAuthority{
			Authorities:         runetypes.BitBlacklist,
			ScriptPubKeyCompact: p2trBody(0x62),
		},
	}, nil, make(allocation.Unallocated))

	f.db.View(func(tx *bbolt.Tx) er.R {
		after, _, err := store.AuthorityScripts.Get(tx, id)
		require.Equal(t, before, after, "a fully-stripped SetAuthority must be a no-op")
		return err
	})
}

func TestAuthorityUpdatesMasterGatedMinterRoster(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 9, Tx: 1}
	authScript := p2tr(0x70)
	minterBody := p2trBody(0x71)

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		if err := store.AuthorityFlags.Insert(tx, id, runetypes.BitMaster); err != nil {
			return err
		}
		cs, _ := compactscript.TryFromScript(authScript)
		return f.exec.Authority.SeedAllSlots(tx, id, cs)
	})
	require.Nil(t, err)

	msgTx := txWithOutputs(opReturn(), p2tr(0x72))
	msgTx.TxIn[0] = f.fund(0x70, authScript)
	mint := id

	f.run(t, msgTx, &runetypes.Runestone{
		Mint: &mint,
		Authority: &runetypes.AuthorityUpdates{
			AddMinter: []runetypes.AuthorityEntry{{Kind: runetypes.KindP2TR, Body: minterBody}},
		},
	}, nil, make(allocation.Unallocated))

	f.db.View(func(tx *bbolt.Tx) er.R {
		minters, err := store.Minters.GetAll(tx, id)
		require.Len(t, minters, 1)
		return err
	})
}

func TestAuthorityUpdatesBlacklistIgnoredWithoutFlag(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 9, Tx: 2}
	authScript := p2tr(0x80)

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		if err := store.AuthorityFlags.Insert(tx, id, runetypes.BitMaster); err != nil {
			return err
		}
		cs, _ := compactscript.TryFromScript(authScript)
		return f.exec.Authority.SeedAllSlots(tx, id, cs)
	})
	require.Nil(t, err)

	msgTx := txWithOutputs(opReturn(), p2tr(0x81))
	msgTx.TxIn[0] = f.fund(0x80, authScript)
	mint := id

	f.run(t, msgTx, &runetypes.Runestone{
		Mint: &mint,
		Authority: &runetypes.AuthorityUpdates{
			Blacklist: []runetypes.AuthorityEntry{{Kind: runetypes.KindP2TR, Body: p2trBody(0x82)}},
		},
	}, nil, make(allocation.Unallocated))

	f.db.View(func(tx *bbolt.Tx) er.R {
		bl, err := store.Blacklist.GetAll(tx, id)
		require.Empty(t, bl)
		return err
	})
}

func TestAuthorityUpdatesBlacklistDeduplicatesBatch(t *testing.T) {
	f := newFixture(t)
	id := runetypes.RuneId{Block: 9, Tx: 3}
	authScript := p2tr(0x90)
	bannedBody := p2trBody(0x91)

	err := f.db.Update(func(tx *bbolt.Tx) er.R {
		if err := store.AuthorityFlags.Insert(tx, id, runetypes.AllBits); err != nil {
			return err
		}
		cs, _ := compactscript.TryFromScript(authScript)
		return f.exec.Authority.SeedAllSlots(tx, id, cs)
	})
	require.Nil(t, err)

	msgTx := txWithOutputs(opReturn(), p2tr(0x92))
	msgTx.TxIn[0] = f.fund(0x90, authScript)
	mint := id
	entry := runetypes.AuthorityEntry{Kind: runetypes.KindP2TR, Body: bannedBody}

	f.run(t, msgTx, &runetypes.Runestone{
		Mint: &mint,
		Authority: &runetypes.AuthorityUpdates{
			Blacklist: []runetypes.AuthorityEntry{entry, entry, entry},
		},
	}, nil, make(allocation.Unallocated))

	f.db.View(func(tx *bbolt.Tx) er.R {
		bl, err := store.Blacklist.GetAll(tx, id)
		require.Len(t, bl, 1)
		return err
	})
}
