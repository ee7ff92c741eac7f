// Package allocation implements the input-sweep step: for every input
// of a transaction, its stored per-outpoint balance row is removed and
// partitioned into spendable "unallocated" amounts and "locked" amounts
// that stay tied to a blacklisted prevout.
package allocation

import (
	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/store"
)

// IsBlacklistedFunc reports whether the scriptPubKey at a prevout is
// blacklisted for rune id.
type IsBlacklistedFunc func(tx *bbolt.Tx, id runetypes.RuneId, prevoutScript []byte) (bool, er.R)

// Unallocated accumulates per-rune spendable amounts discovered while
// sweeping a transaction's inputs.
type Unallocated map[runetypes.RuneId]runetypes.Lot

func (u Unallocated) add(id runetypes.RuneId, amt runetypes.Lot) {
	u[id] = u[id].Add(amt)
}

// Add credits amt against id; exported for use by executor and runeupdater,
// which both accumulate into Unallocated-shaped maps (unallocated balances
// and per-output allocated balances alike).
func (u Unallocated) Add(id runetypes.RuneId, amt runetypes.Lot) {
	u.add(id, amt)
}

// Get returns the unallocated amount for id (zero if absent).
func (u Unallocated) Get(id runetypes.RuneId) runetypes.Lot {
	return u[id]
}

// Set overwrites the unallocated amount for id, clearing the entry
// entirely when amt is zero.
func (u Unallocated) Set(id runetypes.RuneId, amt runetypes.Lot) {
	if amt.IsZero() {
		delete(u, id)
		return
	}
	u[id] = amt
}

// Input pairs the outpoint being spent with its prevout scriptPubKey, as
// resolved via ScriptCache by the caller before sweeping.
type Input struct {
	OutPoint      wire.OutPoint
	PrevoutScript []byte
}

// CalculateUnallocated sweeps each input's stored balance row, removing it
// and splitting its entries between the returned Unallocated map and any
// rows re-written back (as "locked") under the same outpoint key.
func CalculateUnallocated(tx *bbolt.Tx, inputs []Input, isBlacklisted IsBlacklistedFunc) (Unallocated, er.R) {
	unallocated := make(Unallocated)
	for _, in := range inputs {
		balances, ok, err := store.OutpointBalances.Remove(tx, in.OutPoint)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var locked []store.Balance
		for _, b := range balances {
			blacklisted, err := isBlacklisted(tx, b.Id, in.PrevoutScript)
			if err != nil {
				return nil, err
			}
			if blacklisted {
				locked = append(locked, b)
				continue
			}
			unallocated.add(b.Id, b.Amount)
		}
		if len(locked) > 0 {
			if err := store.OutpointBalances.Insert(tx, in.OutPoint, locked); err != nil {
				return nil, err
			}
		}
	}
	return unallocated, nil
}
