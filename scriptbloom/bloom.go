// Package scriptbloom implements the per-AuthorityContext bloom filter used
// to short-circuit blacklist membership checks: a cheap reject first, with
// every positive confirmed against the real roster.
package scriptbloom

import (
	"github.com/aead/siphash"
)

// The two hash-position keys: 16-byte siphash keys derived from the two
// seed constants. siphash.Sum64 needs a 16-byte key, so each seed is
// splatted across both halves of its key.
var (
	seed0 = seedKey(0)
	seed1 = seedKey(0x9e3779b97f4a7c15)
)

func seedKey(seed uint64) *[16]byte {
	var k [16]byte
	for i := 0; i < 8; i++ {
		b := byte(seed >> (8 * i))
		k[i] = b
		k[8+i] = b
	}
	return &k
}

const (
	minBits = 64
	maxBits = 1 << 20
)

// Filter is a fixed-size bitset bloom filter with two hash positions,
// rebuilt from scratch on every AuthorityContext load.
type Filter struct {
	bits  []uint64
	mask  uint64
	words int
}

// New sizes a filter for expectedEntries:
// bit_count = clamp(next_pow2(n)*8, 64, 2^20).
func New(expectedEntries int) *Filter {
	n := expectedEntries
	if n <= 0 {
		n = 1
	}
	bitCount := nextPow2(uint64(n)) * 8
	if bitCount < minBits {
		bitCount = minBits
	}
	if bitCount > maxBits {
		bitCount = maxBits
	}
	words := int((bitCount + 63) / 64)
	return &Filter{
		bits:  make([]uint64, words),
		mask:  bitCount - 1,
		words: words,
	}
}

func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

func (f *Filter) positions(key []byte) (uint64, uint64) {
	h0 := siphash.Sum64(key, seed0) & f.mask
	h1 := siphash.Sum64(key, seed1) & f.mask
	return h0, h1
}

func (f *Filter) setBit(pos uint64) {
	f.bits[pos/64] |= 1 << (pos % 64)
}

func (f *Filter) getBit(pos uint64) bool {
	return f.bits[pos/64]&(1<<(pos%64)) != 0
}

// Insert sets both bit positions for key.
func (f *Filter) Insert(key []byte) {
	h0, h1 := f.positions(key)
	f.setBit(h0)
	f.setBit(h1)
}

// MightContain reports false only when key is certainly absent; a true
// result may be a false positive but never a false negative.
func (f *Filter) MightContain(key []byte) bool {
	h0, h1 := f.positions(key)
	return f.getBit(h0) && f.getBit(h1)
}
