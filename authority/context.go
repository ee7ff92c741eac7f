package authority

import (
	"go.etcd.io/bbolt"

	"github.com/pktrune/coreindex/btcutil/er"
	"github.com/pktrune/coreindex/compactscript"
	"github.com/pktrune/coreindex/runetypes"
	"github.com/pktrune/coreindex/scriptbloom"
	"github.com/pktrune/coreindex/store"
)

// fixedOverhead is the per-context byte cost charged against the
// AuthorityContextCache budget beyond the scripts/bloom bytes it holds.
const fixedOverhead = 96

// Context is the materialized per-rune authority view: flags, up to three
// authority scripts, minter/blacklist rosters and their bloom filter, and
// the supply_extra counter. It is rebuilt from the KV tables on cache miss
// and invalidated (never patched) on any write that touches its tables.
type Context struct {
	Flags       runetypes.AuthorityBits
	scripts     map[runetypes.AuthorityBits]scriptSlot
	Minters     []runetypes.CompactScript
	Blacklist   []runetypes.CompactScript
	bloom       *scriptbloom.Filter
	SupplyExtra runetypes.Lot
}

// Script returns the authority script for kind, if one is present.
func (c *Context) Script(kind runetypes.AuthorityBits) (runetypes.CompactScript, bool) {
	slot, ok := c.scripts[kind]
	if !ok {
		return runetypes.CompactScript{}, false
	}
	return slotToCompact(slot), true
}

// SizeBytes is the self-reported size used by AuthorityContextCache's
// byte-budget eviction.
func (c *Context) SizeBytes() int {
	n := fixedOverhead
	for _, s := range c.scripts {
		n += len(s.body) + 8
	}
	for _, m := range c.Minters {
		n += len(m.Body) + 8
	}
	for _, b := range c.Blacklist {
		n += len(b.Body) + 8
	}
	if c.bloom != nil {
		n += 256 // rough fixed estimate for bloom bitset + headers
	}
	return n
}

// IsBlacklisted reports whether script is present in the blacklist roster.
// The bloom filter, if any, is consulted first to cheaply reject absent
// scripts; a positive bloom result always falls through to the
// authoritative linear scan.
func (c *Context) IsBlacklisted(script []byte) bool {
	if c.bloom != nil && !c.bloom.MightContain(script) {
		return false
	}
	for _, b := range c.Blacklist {
		recon, ok := compactToScript(b)
		if ok && bytesEqual(recon, script) {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// loadContext rebuilds a Context for id from the persisted tables, per the
// fixed load procedure.
func loadContext(tx *bbolt.Tx, id runetypes.RuneId) (*Context, er.R) {
	flags, _, err := store.AuthorityFlags.Get(tx, id)
	if err != nil {
		return nil, err
	}

	blob, _, err := store.AuthorityScripts.Get(tx, id)
	if err != nil {
		return nil, err
	}
	presence, slots := decodeScriptsBlob(blob)
	if flags.IsEmpty() && !presence.IsEmpty() {
		flags = presence
	}

	minterRaw, err := store.Minters.GetAll(tx, id)
	if err != nil {
		return nil, err
	}
	minters := decodeRoster(minterRaw)

	blacklistRaw, err := store.Blacklist.GetAll(tx, id)
	if err != nil {
		return nil, err
	}
	blacklist := decodeRoster(blacklistRaw)

	var bloom *scriptbloom.Filter
	if len(blacklist) > 0 {
		bloom = scriptbloom.New(len(blacklist))
		for _, b := range blacklist {
			if script, ok := compactToScript(b); ok {
				bloom.Insert(script)
			}
		}
	}

	supplyExtra, _, err := store.SupplyExtra.Get(tx, id)
	if err != nil {
		return nil, err
	}

	return &Context{
		Flags:       flags,
		scripts:     slots,
		Minters:     minters,
		Blacklist:   blacklist,
		bloom:       bloom,
		SupplyExtra: supplyExtra,
	}, nil
}

func decodeRoster(raw [][]byte) []runetypes.CompactScript {
	out := make([]runetypes.CompactScript, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		kind := runetypes.ScriptKind(r[0])
		if !kind.Valid() {
			continue
		}
		body := r[1:]
		if len(body) > 32 {
			continue
		}
		out = append(out, runetypes.CompactScript{Kind: kind, Body: body})
	}
	return out
}

func compactToScript(c runetypes.CompactScript) ([]byte, bool) {
	return compactscript.ToScript(c)
}
