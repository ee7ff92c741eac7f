package runetypes

// reservedThreshold marks the start of the numeric range treated as
// reserved, unassignable rune names (never chosen by an etching unless
// synthesized by the reserved-name counter). RuneName.Value is a uint64,
// so the threshold is pinned near the top of that range.
const reservedThreshold uint64 = 18_000_000_000_000_000_000

// IsReserved reports whether r falls in the reserved numeric range, making
// it ineligible to be chosen by an explicit etching.
func (r RuneName) IsReserved() bool {
	return r.Value >= reservedThreshold
}

// ReservedName synthesizes the name assigned to an etching that supplied
// no rune name of its own, keyed by a monotonically increasing counter.
func ReservedName(counter uint64) RuneName {
	return RuneName{Value: reservedThreshold + counter}
}

// Less orders rune names by their numeric value, used for the "rune >=
// minimum" acceptance check when an etching is resolved.
func (r RuneName) Less(o RuneName) bool {
	return r.Value < o.Value
}

// Commitment returns the minimal little-endian encoding of r's numeric
// value with trailing zero bytes trimmed, the payload an etching's
// commitment transaction must push inside a tapscript leaf.
func (r RuneName) Commitment() []byte {
	var buf [8]byte
	v := r.Value
	for i := 0; i < 8; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	end := 8
	for end > 0 && buf[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, buf[:end])
	return out
}
