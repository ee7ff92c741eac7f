package runetypes

// RuneEntry is the domain entry stored in id_to_entry: everything about a
// rune that is not authority state (that lives in the authority tables and
// is materialized into an AuthorityContext).
type RuneEntry struct {
	RuneId       RuneId
	Name         string
	Divisibility uint8
	Symbol       rune
	Spacers      uint32
	Turbo        bool
	Premine      Lot
	Terms        *Terms
	Mints        uint64
	Burned       Lot
	Reserved     bool
}

// Mintable reports the amount an open mint at height would add to the
// rune's supply, and whether one is currently allowed at all: the terms
// must exist, the mint cap (if any) must not be reached, and height must
// be at or after the later of the absolute/relative start bounds and
// before the earlier of the absolute/relative end bounds.
func (e RuneEntry) Mintable(height uint64) (Lot, bool) {
	t := e.Terms
	if t == nil {
		return Lot{}, false
	}
	if t.Cap != nil {
		if cap64, exact := t.Cap.Uint64(); exact && e.Mints >= cap64 {
			return Lot{}, false
		}
	}
	if start, ok := t.effectiveStart(e.RuneId.Block); ok && height < start {
		return Lot{}, false
	}
	if end, ok := t.effectiveEnd(e.RuneId.Block); ok && height >= end {
		return Lot{}, false
	}
	amt := NewLot(0)
	if t.Amount != nil {
		amt = *t.Amount
	}
	return amt, true
}

// Supply returns the rune's circulating supply: premine plus every open
// mint credited so far, less whatever has been burned. Authority mints
// beyond an open mint's terms are not tracked per-mint, so they are folded
// into supply_extra rather than here; metrics.RuneView reports the two
// separately.
func (e RuneEntry) Supply() Lot {
	supply := e.Premine
	if e.Terms != nil && e.Terms.Amount != nil && e.Mints > 0 {
		supply = supply.Add(e.Terms.Amount.Mul(NewLot(e.Mints)))
	}
	if supply.Cmp(e.Burned) > 0 {
		return supply.Sub(e.Burned)
	}
	return NewLot(0)
}

// effectiveStart is the later of the absolute and etching-relative start
// bounds, if either is set.
func (t *Terms) effectiveStart(etchHeight uint64) (uint64, bool) {
	have := false
	var v uint64
	if t.HeightStart != nil {
		v, have = *t.HeightStart, true
	}
	if t.OffsetStart != nil {
		cand := etchHeight + *t.OffsetStart
		if !have || cand > v {
			v, have = cand, true
		}
	}
	return v, have
}

// effectiveEnd is the earlier of the absolute and etching-relative end
// bounds, if either is set.
func (t *Terms) effectiveEnd(etchHeight uint64) (uint64, bool) {
	have := false
	var v uint64
	if t.HeightEnd != nil {
		v, have = *t.HeightEnd, true
	}
	if t.OffsetEnd != nil {
		cand := etchHeight + *t.OffsetEnd
		if !have || cand < v {
			v, have = cand, true
		}
	}
	return v, have
}
