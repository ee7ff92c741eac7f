package store

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
)

func openTestDB(t *testing.T) *DB {
	db, err := Open(filepath.Join(t.TempDir(), "store.db"), AllBuckets)
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEncodeBalancesSortsByRuneId(t *testing.T) {
	in := []Balance{
		{Id: runetypes.RuneId{Block: 9, Tx: 0}, Amount: runetypes.NewLot(3)},
		{Id: runetypes.RuneId{Block: 2, Tx: 5}, Amount: runetypes.NewLot(1)},
		{Id: runetypes.RuneId{Block: 2, Tx: 1}, Amount: runetypes.NewLot(2)},
	}
	out, err := DecodeBalances(EncodeBalances(in))
	require.Nil(t, err)
	require.Len(t, out, 3)
	require.Equal(t, runetypes.RuneId{Block: 2, Tx: 1}, out[0].Id)
	require.Equal(t, runetypes.RuneId{Block: 2, Tx: 5}, out[1].Id)
	require.Equal(t, runetypes.RuneId{Block: 9, Tx: 0}, out[2].Id)
	require.Equal(t, 0, out[0].Amount.Cmp(runetypes.NewLot(2)))
}

func TestDecodeBalancesRejectsRaggedRow(t *testing.T) {
	_, err := DecodeBalances(make([]byte, balanceRowSize+1))
	require.NotNil(t, err)
}

func TestOutpointBalancesRemoveReturnsRow(t *testing.T) {
	db := openTestDB(t)
	var h chainhash.Hash
	h[0] = 0x42
	op := wire.OutPoint{Hash: h, Index: 1}
	id := runetypes.RuneId{Block: 5, Tx: 2}

	err := db.Update(func(tx *bbolt.Tx) er.R {
		if err := OutpointBalances.Insert(tx, op, []Balance{{Id: id, Amount: runetypes.NewLot(77)}}); err != nil {
			return err
		}
		got, ok, err := OutpointBalances.Remove(tx, op)
		if err != nil {
			return err
		}
		require.True(t, ok)
		require.Len(t, got, 1)
		require.Equal(t, 0, got[0].Amount.Cmp(runetypes.NewLot(77)))

		_, ok, err = OutpointBalances.Get(tx, op)
		require.False(t, ok)
		return err
	})
	require.Nil(t, err)
}

func TestMultimapInsertGetAllRemove(t *testing.T) {
	db := openTestDB(t)
	id := runetypes.RuneId{Block: 1, Tx: 0}
	e1 := []byte{2, 0xaa}
	e2 := []byte{2, 0xbb}

	err := db.Update(func(tx *bbolt.Tx) er.R {
		if err := Minters.Insert(tx, id, e1); err != nil {
			return err
		}
		if err := Minters.Insert(tx, id, e2); err != nil {
			return err
		}
		if err := Minters.Insert(tx, id, e1); err != nil {
			return err
		}

		all, err := Minters.GetAll(tx, id)
		if err != nil {
			return err
		}
		require.Equal(t, [][]byte{e1, e2, e1}, all)

		n, err := Minters.Remove(tx, id, func(v []byte) bool { return v[1] == 0xaa })
		if err != nil {
			return err
		}
		require.Equal(t, 2, n)

		all, err = Minters.GetAll(tx, id)
		require.Equal(t, [][]byte{e2}, all)
		return err
	})
	require.Nil(t, err)
}

func TestMultimapRemoveLastEntryDropsKey(t *testing.T) {
	db := openTestDB(t)
	id := runetypes.RuneId{Block: 3, Tx: 3}

	err := db.Update(func(tx *bbolt.Tx) er.R {
		if err := Blacklist.Insert(tx, id, []byte{2, 0x01}); err != nil {
			return err
		}
		if _, err := Blacklist.Remove(tx, id, func([]byte) bool { return true }); err != nil {
			return err
		}
		all, err := Blacklist.GetAll(tx, id)
		require.Nil(t, all)
		return err
	})
	require.Nil(t, err)
}

func TestReservedCounterMonotonic(t *testing.T) {
	db := openTestDB(t)
	var a, b, c uint64
	err := db.Update(func(tx *bbolt.Tx) er.R {
		var err er.R
		if a, err = NextReservedCounter(tx); err != nil {
			return err
		}
		if b, err = NextReservedCounter(tx); err != nil {
			return err
		}
		c, err = NextReservedCounter(tx)
		return err
	})
	require.Nil(t, err)
	require.Equal(t, uint64(0), a)
	require.Equal(t, uint64(1), b)
	require.Equal(t, uint64(2), c)
}

func TestRuneEntryRoundTripWithTerms(t *testing.T) {
	amount := runetypes.NewLot(21)
	capLot := runetypes.NewLot(100)
	hs := uint64(840_000)
	entry := runetypes.RuneEntry{
		RuneId:       runetypes.RuneId{Block: 840_000, Tx: 3},
		Name:         "EXAMPLERUNE",
		Divisibility: 8,
		Symbol:       '¤',
		Spacers:      0b101,
		Turbo:        true,
		Premine:      runetypes.NewLot(1_000_000),
		Terms: &runetypes.Terms{
			AllowMinting: true,
			Amount:       &amount,
			Cap:          &capLot,
			HeightStart:  &hs,
		},
		Mints:  4,
		Burned: runetypes.NewLot(12),
	}
	got, err := DecodeRuneEntry(EncodeRuneEntry(entry))
	require.Nil(t, err)
	require.Equal(t, entry.RuneId, got.RuneId)
	require.Equal(t, entry.Name, got.Name)
	require.Equal(t, entry.Symbol, got.Symbol)
	require.True(t, got.Turbo)
	require.Equal(t, 0, got.Premine.Cmp(entry.Premine))
	require.NotNil(t, got.Terms)
	require.True(t, got.Terms.AllowMinting)
	require.False(t, got.Terms.AllowBlacklisting)
	require.Equal(t, 0, got.Terms.Amount.Cmp(amount))
	require.Equal(t, 0, got.Terms.Cap.Cmp(capLot))
	require.Equal(t, hs, *got.Terms.HeightStart)
	require.Nil(t, got.Terms.HeightEnd)
	require.Equal(t, uint64(4), got.Mints)
	require.Equal(t, 0, got.Burned.Cmp(runetypes.NewLot(12)))
}
