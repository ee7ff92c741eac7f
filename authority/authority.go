// Package authority is the read/write surface for per-rune authority state:
// blacklist membership, authority-gated input checks, and the minter
// roster. The ScriptCache and AuthorityContextCache it reads through are
// shared with the executor and updater.
package authority

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/scriptcache"
	"github.com/pktrune/coreindex/store"
)

// maxAuthorityInputs is the hard cap on how many of a transaction's inputs
// are consulted for an authority/minter match; documented as
// consensus-visible.
const maxAuthorityInputs = 10

// Authority ties the context cache, the script cache, and the persisted
// tables together behind the operations the executor and updater need.
type Authority struct {
	Contexts *ContextCache
	Scripts  *scriptcache.Cache
	Node     scriptcache.NodeClient
}

func New(contexts *ContextCache, scripts *scriptcache.Cache, node scriptcache.NodeClient) *Authority {
	return &Authority{Contexts: contexts, Scripts: scripts, Node: node}
}

// GetContext returns the Context for id, loading it from tx if not already
// cached.
func (a *Authority) GetContext(tx *bbolt.Tx, id runetypes.RuneId) (*Context, er.R) {
	if a.Contexts.Contains(id) {
		return a.Contexts.GetExisting(id), nil
	}
	ctx, err := loadContext(tx, id)
	if err != nil {
		return nil, err
	}
	return a.Contexts.InsertAndGet(id, ctx), nil
}

// IsBlacklisted reports whether script is in id's blacklist roster.
func (a *Authority) IsBlacklisted(tx *bbolt.Tx, id runetypes.RuneId, script []byte) (bool, er.R) {
	ctx, err := a.GetContext(tx, id)
	if err != nil {
		return false, err
	}
	return ctx.IsBlacklisted(script), nil
}

// prevoutScript fetches the scriptPubKey of txIn's prevout via the script
// cache.
func (a *Authority) prevoutScript(ctx context.Context, txIn *wire.TxIn) ([]byte, er.R) {
	op := txIn.PreviousOutPoint
	return a.Scripts.GetScriptPubKey(ctx, a.Node, op.Hash, op.Index)
}

// CheckAuthority resolves the expected script for kind on rune id and scans
// up to the first maxAuthorityInputs inputs of tx for a non-blacklisted
// prevout match.
func (a *Authority) CheckAuthority(goCtx context.Context, tx *bbolt.Tx, msgTx *wire.MsgTx, id runetypes.RuneId, kind runetypes.AuthorityBits) (bool, er.R) {
	actx, err := a.GetContext(tx, id)
	if err != nil {
		return false, err
	}
	expected, ok := actx.Script(kind)
	if !ok {
		return false, nil
	}
	expectedScript, ok := compactToScript(expected)
	if !ok {
		return false, nil
	}
	return a.scanInputsFor(goCtx, tx, msgTx, id, actx, expectedScript)
}

func (a *Authority) scanInputsFor(goCtx context.Context, tx *bbolt.Tx, msgTx *wire.MsgTx, id runetypes.RuneId, actx *Context, target []byte) (bool, er.R) {
	n := len(msgTx.TxIn)
	if n > maxAuthorityInputs {
		n = maxAuthorityInputs
	}
	for i := 0; i < n; i++ {
		script, err := a.prevoutScript(goCtx, msgTx.TxIn[i])
		if err != nil {
			return false, err
		}
		if script == nil {
			continue
		}
		blacklisted, err := a.IsBlacklisted(tx, id, script)
		if err != nil {
			return false, err
		}
		if blacklisted {
			continue
		}
		if bytesEqual(script, target) {
			return true, nil
		}
	}
	return false, nil
}

// CheckIsMinter reports whether tx's inputs authorize minting rune id:
// either the Master authority matches, or any minter roster entry matches
// a non-blacklisted prevout (both within the first maxAuthorityInputs
// inputs).
func (a *Authority) CheckIsMinter(goCtx context.Context, tx *bbolt.Tx, msgTx *wire.MsgTx, id runetypes.RuneId) (bool, er.R) {
	isMaster, err := a.CheckAuthority(goCtx, tx, msgTx, id, runetypes.BitMaster)
	if err != nil {
		return false, err
	}
	if isMaster {
		return true, nil
	}

	actx, err := a.GetContext(tx, id)
	if err != nil {
		return false, err
	}
	n := len(msgTx.TxIn)
	if n > maxAuthorityInputs {
		n = maxAuthorityInputs
	}
	for i := 0; i < n; i++ {
		script, err := a.prevoutScript(goCtx, msgTx.TxIn[i])
		if err != nil {
			return false, err
		}
		if script == nil {
			continue
		}
		blacklisted, err := a.IsBlacklisted(tx, id, script)
		if err != nil {
			return false, err
		}
		if blacklisted {
			continue
		}
		for _, minter := range actx.Minters {
			minterScript, ok := compactToScript(minter)
			if ok && bytesEqual(script, minterScript) {
				return true, nil
			}
		}
	}
	return false, nil
}

// GetAuthorityScript returns the reconstructed scriptPubKey for kind, if
// present.
func (a *Authority) GetAuthorityScript(tx *bbolt.Tx, id runetypes.RuneId, kind runetypes.AuthorityBits) ([]byte, er.R) {
	actx, err := a.GetContext(tx, id)
	if err != nil {
		return nil, err
	}
	c, ok := actx.Script(kind)
	if !ok {
		return nil, nil
	}
	script, ok := compactToScript(c)
	if !ok {
		return nil, nil
	}
	return script, nil
}

// GetSupplyExtra returns id's supply_extra counter (0 if absent).
func (a *Authority) GetSupplyExtra(tx *bbolt.Tx, id runetypes.RuneId) (runetypes.Lot, er.R) {
	actx, err := a.GetContext(tx, id)
	if err != nil {
		return runetypes.Lot{}, err
	}
	return actx.SupplyExtra, nil
}

// SetSupplyExtra writes id's supply_extra counter; a zero value is a no-op
// per the "written only when nonzero" table invariant.
func (a *Authority) SetSupplyExtra(tx *bbolt.Tx, id runetypes.RuneId, v runetypes.Lot) er.R {
	if v.IsZero() {
		return nil
	}
	if err := store.SupplyExtra.Insert(tx, id, v); err != nil {
		return err
	}
	a.Contexts.UpdateSupplyExtra(id, v)
	return nil
}

// DecodeEntryToScript reconstructs the scriptPubKey for a raw `[kind][body]`
// multimap entry, or (nil, false) when malformed.
func (a *Authority) DecodeEntryToScript(entry []byte) ([]byte, bool) {
	return decodeEntryToScript(entry)
}
