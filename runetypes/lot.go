package runetypes

import "math/big"

// maxLot is 2^128 - 1, the ceiling every Lot value is checked against.
var maxLot = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Lot is an unsigned 128-bit balance quantity. The zero Lot is a valid,
// usable zero. Overflowing past 2^128-1 or going negative is a programmer
// error and panics rather than wrapping or saturating.
type Lot struct {
	v *big.Int
}

func (l Lot) big() *big.Int {
	if l.v == nil {
		return new(big.Int)
	}
	return l.v
}

func NewLot(x uint64) Lot {
	return Lot{v: new(big.Int).SetUint64(x)}
}

// LotFromBytes decodes a big-endian u128 as persisted in the KV tables.
func LotFromBytes(b []byte) Lot {
	return Lot{v: new(big.Int).SetBytes(b)}
}

// Bytes encodes l as a fixed 16-byte big-endian u128.
func (l Lot) Bytes() []byte {
	out := make([]byte, 16)
	l.big().FillBytes(out)
	return out
}

func checkRange(v *big.Int) {
	if v.Sign() < 0 {
		panic("runetypes: Lot underflow")
	}
	if v.Cmp(maxLot) > 0 {
		panic("runetypes: Lot overflow")
	}
}

func (l Lot) Add(o Lot) Lot {
	r := new(big.Int).Add(l.big(), o.big())
	checkRange(r)
	return Lot{v: r}
}

func (l Lot) Sub(o Lot) Lot {
	r := new(big.Int).Sub(l.big(), o.big())
	checkRange(r)
	return Lot{v: r}
}

func (l Lot) Mul(o Lot) Lot {
	r := new(big.Int).Mul(l.big(), o.big())
	checkRange(r)
	return Lot{v: r}
}

// Div returns l/o and panics on division by zero, mirroring integer
// division semantics; callers must check IsZero first when o may be zero.
func (l Lot) Div(o Lot) Lot {
	r := new(big.Int).Quo(l.big(), o.big())
	checkRange(r)
	return Lot{v: r}
}

func (l Lot) Mod(o Lot) Lot {
	r := new(big.Int).Rem(l.big(), o.big())
	checkRange(r)
	return Lot{v: r}
}

func (l Lot) Cmp(o Lot) int {
	return l.big().Cmp(o.big())
}

func (l Lot) IsZero() bool {
	return l.big().Sign() == 0
}

// Min returns the smaller of l and o.
func (l Lot) Min(o Lot) Lot {
	if l.Cmp(o) <= 0 {
		return l
	}
	return o
}

func (l Lot) String() string {
	return l.big().String()
}

// Uint64 reports l as a uint64 along with whether the conversion was exact
// (l fit within 64 bits).
func (l Lot) Uint64() (uint64, bool) {
	return l.big().Uint64(), l.big().IsUint64()
}

// Float64 reports l as a float64, for metrics export where a rune's supply
// losing precision past 2^53 is an acceptable tradeoff against carrying a
// big.Int-typed Prometheus metric.
func (l Lot) Float64() float64 {
	f := new(big.Float).SetInt(l.big())
	v, _ := f.Float64()
	return v
}
