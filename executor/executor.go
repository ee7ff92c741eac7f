// Package executor implements the operation driver for a decoded
// runestone: SetAuthority, then AuthorityUpdates, then Edicts, in that
// fixed order, mutating unallocated/allocated balances through the shared
// Authority surface.
package executor

import (
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/allocation"
	"github.com/pktrune/coreindex/authority"
	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/pktlog/log"
	"github.com/pktrune/coreindex/runetypes"
)

// Executor drives the operations of a single decoded runestone against the
// shared Authority surface.
type Executor struct {
	Authority *authority.Authority
}

func New(a *authority.Authority) *Executor {
	return &Executor{Authority: a}
}

// Allocated accumulates per-output rune credits, keyed by output index; the
// destination-side counterpart to allocation.Unallocated.
type Allocated map[uint32]allocation.Unallocated

func (a Allocated) add(vout uint32, id runetypes.RuneId, amt runetypes.Lot) {
	m, ok := a[vout]
	if !ok {
		m = make(allocation.Unallocated)
		a[vout] = m
	}
	m.Add(id, amt)
}

// Add credits amt of id to vout; exported so runeupdater's default-output
// sweep can share the same Allocated map Executor.Run wrote
// into.
func (a Allocated) Add(vout uint32, id runetypes.RuneId, amt runetypes.Lot) {
	a.add(vout, id, amt)
}

// Run executes r against msgTx: unallocated is debited in place as balances
// are allocated to destination outputs in allocated. etched is the rune id
// assigned by this transaction's own etching, if any; it
// supplies the edict id==0 retarget and the SetAuthority/AuthorityUpdates
// "etched" fallback target.
func (e *Executor) Run(
	goCtx context.Context,
	tx *bbolt.Tx,
	msgTx *wire.MsgTx,
	r *runetypes.Runestone,
	etched *runetypes.RuneId,
	unallocated allocation.Unallocated,
	allocated Allocated,
) er.R {
	if err := e.setAuthority(goCtx, tx, msgTx, r, etched); err != nil {
		return err
	}
	if err := e.authorityUpdates(goCtx, tx, msgTx, r, etched); err != nil {
		return err
	}
	return e.edicts(goCtx, tx, msgTx, r, etched, unallocated, allocated)
}

// setAuthorityTarget resolves the set-authority target chain: the first edict's id
// (or etched if that id is the zero default), else the mint field, else
// etched.
func setAuthorityTarget(r *runetypes.Runestone, etched *runetypes.RuneId) (runetypes.RuneId, bool) {
	if len(r.Edicts) > 0 {
		id := r.Edicts[0].Id
		if !id.IsZero() {
			return id, true
		}
		if etched != nil {
			return *etched, true
		}
	}
	if r.Mint != nil {
		return *r.Mint, true
	}
	if etched != nil {
		return *etched, true
	}
	return runetypes.RuneId{}, false
}

func (e *Executor) setAuthority(goCtx context.Context, tx *bbolt.Tx, msgTx *wire.MsgTx, r *runetypes.Runestone, etched *runetypes.RuneId) er.R {
	sa := r.SetAuthority
	if sa == nil {
		return nil
	}
	target, ok := setAuthorityTarget(r, etched)
	if !ok {
		return nil
	}

	requested := sa.Authorities
	if requested.Has(runetypes.BitBlacklist) {
		actx, err := e.Authority.GetContext(tx, target)
		if err != nil {
			return err
		}
		if !actx.Flags.Has(runetypes.BitBlacklist) {
			requested = requested.Clear(runetypes.BitBlacklist)
		}
	}
	if requested.IsEmpty() {
		return nil
	}

	for _, kindBit := range runetypes.AuthorityKindOrder() {
		if requested&kindBit == 0 {
			continue
		}
		authorized, err := e.Authority.CheckAuthority(goCtx, tx, msgTx, target, kindBit)
		if err != nil {
			return err
		}
		if !authorized {
			return nil
		}
	}

	return e.Authority.ApplySetAuthority(tx, target, requested, sa.ScriptPubKeyCompact)
}

func (e *Executor) authorityUpdates(goCtx context.Context, tx *bbolt.Tx, msgTx *wire.MsgTx, r *runetypes.Runestone, etched *runetypes.RuneId) er.R {
	au := r.Authority
	if au == nil {
		return nil
	}

	var target runetypes.RuneId
	switch {
	case r.Mint != nil:
		target = *r.Mint
	case etched != nil:
		target = *etched
	default:
		return nil
	}

	if len(au.AddMinter) > 0 || len(au.RemoveMinter) > 0 {
		authorized, err := e.Authority.CheckAuthority(goCtx, tx, msgTx, target, runetypes.BitMaster)
		if err != nil {
			return err
		}
		if authorized {
			for _, entry := range au.AddMinter {
				raw := entry.Encode()
				if raw == nil {
					continue
				}
				if err := e.Authority.AddMinter(tx, target, raw); err != nil {
					return err
				}
			}
			for _, entry := range au.RemoveMinter {
				raw := entry.Encode()
				if raw == nil {
					continue
				}
				if err := e.Authority.RemoveMinter(tx, target, raw); err != nil {
					return err
				}
			}
		}
	}

	if len(au.Blacklist) > 0 || len(au.Unblacklist) > 0 {
		actx, err := e.Authority.GetContext(tx, target)
		if err != nil {
			return err
		}
		if !actx.Flags.Has(runetypes.BitBlacklist) {
			log.Debugf("authority updates: rune %s has no blacklist authority, ignoring blacklist/unblacklist", target.String())
			return nil
		}
		authorized, err := e.Authority.CheckAuthority(goCtx, tx, msgTx, target, runetypes.BitBlacklist)
		if err != nil {
			return err
		}
		if authorized {
			seen := make(map[string]bool, len(au.Blacklist))
			for _, entry := range au.Blacklist {
				raw := entry.Encode()
				if raw == nil {
					continue
				}
				key := string(raw)
				if seen[key] {
					continue
				}
				seen[key] = true
				script, ok := e.Authority.DecodeEntryToScript(raw)
				if !ok {
					continue
				}
				blacklisted, err := e.Authority.IsBlacklisted(tx, target, script)
				if err != nil {
					return err
				}
				if blacklisted {
					continue
				}
				if err := e.Authority.Blacklist(tx, target, raw); err != nil {
					return err
				}
			}
			for _, entry := range au.Unblacklist {
				raw := entry.Encode()
				if raw == nil {
					continue
				}
				if err := e.Authority.Unblacklist(tx, target, raw); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (e *Executor) edicts(
	goCtx context.Context,
	tx *bbolt.Tx,
	msgTx *wire.MsgTx,
	r *runetypes.Runestone,
	etched *runetypes.RuneId,
	unallocated allocation.Unallocated,
	allocated Allocated,
) er.R {
	numOutputs := uint32(len(msgTx.TxOut))

	for _, edict := range r.Edicts {
		if edict.Output > numOutputs {
			continue
		}

		id := edict.Id
		if id.IsZero() {
			if etched == nil {
				continue
			}
			id = *etched
		}

		balance := unallocated.Get(id)

		actx, err := e.Authority.GetContext(tx, id)
		if err != nil {
			return err
		}
		if actx.Flags.Has(runetypes.BitMint) && edict.Amount.Cmp(balance) > 0 {
			authorized, err := e.Authority.CheckAuthority(goCtx, tx, msgTx, id, runetypes.BitMint)
			if err != nil {
				return err
			}
			if !authorized {
				authorized, err = e.Authority.CheckIsMinter(goCtx, tx, msgTx, id)
				if err != nil {
					return err
				}
			}
			if authorized {
				shortfall := edict.Amount.Sub(balance)
				extra, err := e.Authority.GetSupplyExtra(tx, id)
				if err != nil {
					return err
				}
				if err := e.Authority.SetSupplyExtra(tx, id, extra.Add(shortfall)); err != nil {
					return err
				}
				balance = edict.Amount
			}
		}

		if edict.Output == numOutputs {
			dests := nonOpReturnOutputs(msgTx)
			if len(dests) == 0 {
				unallocated.Set(id, balance)
				continue
			}
			if edict.Amount.IsZero() {
				n := runetypes.NewLot(uint64(len(dests)))
				share := balance.Div(n)
				rem64, _ := balance.Mod(n).Uint64()
				for i, vout := range dests {
					portion := share
					if uint64(i) < rem64 {
						portion = portion.Add(runetypes.NewLot(1))
					}
					credited, err := e.creditOutput(tx, id, vout, portion, msgTx, allocated)
					if err != nil {
						return err
					}
					balance = balance.Sub(credited)
				}
			} else {
				for _, vout := range dests {
					if balance.IsZero() {
						break
					}
					amt := edict.Amount.Min(balance)
					credited, err := e.creditOutput(tx, id, vout, amt, msgTx, allocated)
					if err != nil {
						return err
					}
					balance = balance.Sub(credited)
				}
			}
		} else {
			amt := balance
			if !edict.Amount.IsZero() {
				amt = edict.Amount.Min(balance)
			}
			credited, err := e.creditOutput(tx, id, edict.Output, amt, msgTx, allocated)
			if err != nil {
				return err
			}
			balance = balance.Sub(credited)
		}

		unallocated.Set(id, balance)
	}
	return nil
}

// creditOutput allocates amt of id to msgTx's output vout unless the
// destination scriptPubKey is blacklisted for id, in which case the
// allocation is silently rejected and amt stays with the sender. Returns the amount actually credited.
func (e *Executor) creditOutput(tx *bbolt.Tx, id runetypes.RuneId, vout uint32, amt runetypes.Lot, msgTx *wire.MsgTx, allocated Allocated) (runetypes.Lot, er.R) {
	if amt.IsZero() {
		return amt, nil
	}
	script := msgTx.TxOut[vout].PkScript
	blacklisted, err := e.Authority.IsBlacklisted(tx, id, script)
	if err != nil {
		return runetypes.Lot{}, err
	}
	if blacklisted {
		return runetypes.NewLot(0), nil
	}
	allocated.add(vout, id, amt)
	return amt, nil
}

// nonOpReturnOutputs lists, in ascending vout order, every output index
// whose scriptPubKey is not an OP_RETURN data carrier.
func nonOpReturnOutputs(msgTx *wire.MsgTx) []uint32 {
	var out []uint32
	for i, txOut := range msgTx.TxOut {
		if len(txOut.PkScript) > 0 && txOut.PkScript[0] == txscript.OP_RETURN {
			continue
		}
		out = append(out, uint32(i))
	}
	return out
}
