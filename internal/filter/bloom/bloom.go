// Package bloom implements a fixed-size Bloom filter with SHA-256 double hashing.
//
// The filter is sized once from (expected items n, false-positive probability p):
//
//	m = ceil(-(n·ln p) / (ln 2)²)
//	k = round((m/n)·ln 2)
//
// Bit positions are g_i = (h1 + i·h2) mod m for i in [0,k), where h1 and h2 are
// the big-endian high and low 128-bit halves of SHA-256(item).
//
// Add is not safe for concurrent use. Once populated, Check may be called
// from any number of goroutines.
package bloom

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/bits-and-blooms/bitset"
)

// Filter is a Bloom filter over byte strings.
type Filter struct {
	bits  *bitset.BitSet
	m     uint64
	k     int
	p     float64
	n     uint64
	added uint64
}

// New creates a filter sized for n items at false-positive probability p.
func New(n uint64, p float64) (*Filter, error) {
	if n == 0 {
		return nil, fmt.Errorf("bloom: expected items must be positive")
	}
	if !(p > 0 && p < 1) {
		return nil, fmt.Errorf("bloom: false positive probability must be in (0,1), got %v", p)
	}
	m := OptimalSize(n, p)
	return &Filter{
		bits: bitset.New(uint(m)),
		m:    m,
		k:    OptimalHashCount(m, n),
		p:    p,
		n:    n,
	}, nil
}

// OptimalSize returns the bit count m for n items at probability p.
func OptimalSize(n uint64, p float64) uint64 {
	m := math.Ceil(-1 * float64(n) * math.Log(p) / math.Pow(math.Log(2), 2))
	if m < 1 {
		return 1
	}
	return uint64(m)
}

// OptimalHashCount returns the hash count k for m bits and n items. Never less than 1.
func OptimalHashCount(m, n uint64) int {
	k := int(math.Round(float64(m) / float64(n) * math.Log(2)))
	if k < 1 {
		return 1
	}
	return k
}

// Add inserts item.
func (f *Filter) Add(item []byte) {
	h1, h2 := f.halves(item)
	for i := 0; i < f.k; i++ {
		f.bits.Set(uint(f.index(h1, h2, i)))
	}
	f.added++
}

// AddString inserts s.
func (f *Filter) AddString(s string) { f.Add([]byte(s)) }

// Check reports whether item may be in the set. False means definitely absent.
func (f *Filter) Check(item []byte) bool {
	h1, h2 := f.halves(item)
	for i := 0; i < f.k; i++ {
		if !f.bits.Test(uint(f.index(h1, h2, i))) {
			return false
		}
	}
	return true
}

// CheckString reports whether s may be in the set.
func (f *Filter) CheckString(s string) bool { return f.Check([]byte(s)) }

// Size returns m, the number of bits.
func (f *Filter) Size() uint64 { return f.m }

// HashCount returns k.
func (f *Filter) HashCount() int { return f.k }

// Capacity returns the expected item count the filter was sized for.
func (f *Filter) Capacity() uint64 { return f.n }

// Added returns how many Add calls were made.
func (f *Filter) Added() uint64 { return f.added }

// TargetRate returns the configured false-positive probability.
func (f *Filter) TargetRate() float64 { return f.p }

// FalsePositiveRate estimates the current false-positive rate from the fill ratio.
func (f *Filter) FalsePositiveRate() float64 {
	fill := float64(f.bits.Count()) / float64(f.m)
	return math.Pow(fill, float64(f.k))
}

// halves reduces both 128-bit digest halves modulo m.
func (f *Filter) halves(item []byte) (uint64, uint64) {
	sum := sha256.Sum256(item)
	h1 := mod128(binary.BigEndian.Uint64(sum[0:8]), binary.BigEndian.Uint64(sum[8:16]), f.m)
	h2 := mod128(binary.BigEndian.Uint64(sum[16:24]), binary.BigEndian.Uint64(sum[24:32]), f.m)
	return h1, h2
}

// index computes (h1 + i·h2) mod m with h1, h2 already reduced.
func (f *Filter) index(h1, h2 uint64, i int) uint64 {
	hi, lo := bits.Mul64(uint64(i), h2)
	step := bits.Rem64(hi, lo, f.m)
	sum, carry := bits.Add64(h1, step, 0)
	return bits.Rem64(carry, sum, f.m)
}

// mod128 returns (hi·2⁶⁴ + lo) mod m.
func mod128(hi, lo, m uint64) uint64 {
	return bits.Rem64(hi%m, lo, m)
}
