package authority

import (
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/store"
)

// ApplySetAuthority performs the already-authorized scripts-blob merge: the
// new script's kind is inherited from the current Master authority's kind
// (KindP2TR if no Master slot exists yet), presence becomes existing ∪
// requested, and every kind in the requested set is rewritten to the new
// script while every other present kind keeps its existing script.
func (a *Authority) ApplySetAuthority(tx *bbolt.Tx, id runetypes.RuneId, requested runetypes.AuthorityBits, newBody []byte) er.R {
	actx, err := a.GetContext(tx, id)
	if err != nil {
		return err
	}

	kind := runetypes.KindP2TR
	if master, ok := actx.scripts[runetypes.BitMaster]; ok {
		kind = master.kind
	}
	if len(newBody) < 1 || len(newBody) > 32 {
		// A body outside the reconstructable range would poison the blob's
		// single-byte length walk; anything within it is written as-is.
		return nil
	}
	newSlot := scriptSlot{kind: kind, body: append([]byte(nil), newBody...)}

	presence := actx.Flags.Union(requested)
	slots := make(map[runetypes.AuthorityBits]scriptSlot, len(actx.scripts))
	for k, v := range actx.scripts {
		slots[k] = v
	}
	for _, kindBit := range runetypes.AuthorityKindOrder() {
		if presence&kindBit == 0 {
			continue
		}
		if requested&kindBit != 0 {
			slots[kindBit] = newSlot
		}
	}

	blob := encodeScriptsBlob(presence, slots)
	if err := store.AuthorityScripts.Insert(tx, id, blob); err != nil {
		return err
	}
	if err := store.AuthorityFlags.Insert(tx, id, presence); err != nil {
		return err
	}
	a.Contexts.Invalidate(id)
	return nil
}

// SeedAllSlots writes cs into all three authority-script slots for a
// newly-etched rune. Unlike ApplySetAuthority, the slot kind
// is taken from cs itself rather than inherited from an existing Master
// entry, since no prior authority state exists yet to inherit from.
func (a *Authority) SeedAllSlots(tx *bbolt.Tx, id runetypes.RuneId, cs runetypes.CompactScript) er.R {
	slot := scriptSlot{kind: cs.Kind, body: append([]byte(nil), cs.Body...)}
	slots := map[runetypes.AuthorityBits]scriptSlot{
		runetypes.BitMint:      slot,
		runetypes.BitBlacklist: slot,
		runetypes.BitMaster:    slot,
	}
	blob := encodeScriptsBlob(runetypes.AllBits, slots)
	if err := store.AuthorityScripts.Insert(tx, id, blob); err != nil {
		return err
	}
	a.Contexts.Invalidate(id)
	return nil
}

// AddMinter inserts a raw `[kind][body]` minter entry, skipping malformed
// or empty entries.
func (a *Authority) AddMinter(tx *bbolt.Tx, id runetypes.RuneId, entry []byte) er.R {
	if !validEntry(entry) {
		return nil
	}
	if err := store.Minters.Insert(tx, id, append([]byte(nil), entry...)); err != nil {
		return err
	}
	a.Contexts.Invalidate(id)
	return nil
}

// RemoveMinter removes every minter entry byte-equal to entry.
func (a *Authority) RemoveMinter(tx *bbolt.Tx, id runetypes.RuneId, entry []byte) er.R {
	if _, err := store.Minters.Remove(tx, id, func(v []byte) bool { return bytesEqual(v, entry) }); err != nil {
		return err
	}
	a.Contexts.Invalidate(id)
	return nil
}

// Blacklist inserts a raw `[kind][body]` blacklist entry. Callers must have
// already deduplicated the incoming batch and filtered out entries already
// blacklisted or unreconstructable.
func (a *Authority) Blacklist(tx *bbolt.Tx, id runetypes.RuneId, entry []byte) er.R {
	if !validEntry(entry) {
		return nil
	}
	if err := store.Blacklist.Insert(tx, id, append([]byte(nil), entry...)); err != nil {
		return err
	}
	a.Contexts.Invalidate(id)
	return nil
}

// Unblacklist removes every blacklist entry byte-equal to entry, verbatim.
func (a *Authority) Unblacklist(tx *bbolt.Tx, id runetypes.RuneId, entry []byte) er.R {
	if _, err := store.Blacklist.Remove(tx, id, func(v []byte) bool { return bytesEqual(v, entry) }); err != nil {
		return err
	}
	a.Contexts.Invalidate(id)
	return nil
}

func validEntry(entry []byte) bool {
	if len(entry) < 2 {
		return false
	}
	kind := runetypes.ScriptKind(entry[0])
	return kind.Valid() && len(entry[1:]) <= 32
}
