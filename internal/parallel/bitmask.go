package parallel

import (
	"math/bits"
	"sync/atomic"
)

// Bitmask is a fixed-capacity bitmap with lock-free set and test.
//
// It backs the per-slot visibility mask: one bit per meshlet-instance slot,
// set by atomic OR from any workgroup. Capacity only ever grows.
type Bitmask struct {
	words []atomic.Uint64
	n     uint32
}

// NewBitmask returns a cleared mask of n bits.
func NewBitmask(n uint32) *Bitmask {
	return &Bitmask{
		words: make([]atomic.Uint64, (uint64(n)+63)/64),
		n:     n,
	}
}

// Len returns the number of bits.
func (m *Bitmask) Len() uint32 { return m.n }

// Set sets bit i and reports whether it was already set. Out-of-range bits
// are ignored and reported as set so callers treat them as already handled.
func (m *Bitmask) Set(i uint32) (wasSet bool) {
	if i >= m.n {
		return true
	}
	bit := uint64(1) << (i & 63)
	return m.words[i/64].Or(bit)&bit != 0
}

// Test reports whether bit i is set.
func (m *Bitmask) Test(i uint32) bool {
	if i >= m.n {
		return false
	}
	return m.words[i/64].Load()&(1<<(i&63)) != 0
}

// Clear clears every bit.
func (m *Bitmask) Clear() {
	for i := range m.words {
		m.words[i].Store(0)
	}
}

// Count returns the number of set bits.
func (m *Bitmask) Count() int {
	count := 0
	for i := range m.words {
		count += bits.OnesCount64(m.words[i].Load())
	}
	return count
}

// Grow makes room for n bits. The mask is reallocated, and therefore
// cleared, only when n exceeds the current length; it reports whether that
// happened.
func (m *Bitmask) Grow(n uint32) bool {
	if n <= m.n {
		return false
	}
	m.words = make([]atomic.Uint64, (uint64(n)+63)/64)
	m.n = n
	return true
}

// ForEach calls fn for every set bit in increasing order.
func (m *Bitmask) ForEach(fn func(i uint32)) {
	for w := range m.words {
		word := m.words[w].Load()
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(uint32(w*64 + b))
			word &^= 1 << b
		}
	}
}

// Words returns the mask as little-endian u32 words, the layout of the
// shader-side mask buffer.
func (m *Bitmask) Words() []uint32 {
	out := make([]uint32, (m.n+31)/32)
	for i := range out {
		w := m.words[i/2].Load()
		out[i] = uint32(w >> (32 * (i & 1)))
	}
	return out
}
