package sstable

import (
	"github.com/cespare/xxhash/v2"
)

// bloomFilter is an in-memory filter over the keys of one table. It uses
// double hashing: probe i sits at h1 + i*h2, both halves taken from one xxhash.
type bloomFilter struct {
	bits   []uint64
	nbits  uint64
	hashes int
}

// newBloomFilter sizes a filter for n keys with bitsPerKey bits each
func newBloomFilter(n, bitsPerKey int) *bloomFilter {
	if n < 1 {
		n = 1
	}
	nbits := uint64(n * bitsPerKey)
	if nbits < 64 {
		nbits = 64
	}

	// k = bitsPerKey * ln(2), clamped like the usual implementations
	k := int(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	return &bloomFilter{
		bits:   make([]uint64, (nbits+63)/64),
		nbits:  nbits,
		hashes: k,
	}
}

func bloomHash(key []byte) (uint64, uint64) {
	h := xxhash.Sum64(key)
	h1 := h & 0xffffffff
	h2 := h >> 32
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// Add adds a key to the filter
func (b *bloomFilter) Add(key []byte) {
	h1, h2 := bloomHash(key)
	for i := 0; i < b.hashes; i++ {
		bit := (h1 + uint64(i)*h2) % b.nbits
		b.bits[bit/64] |= 1 << (bit % 64)
	}
}

// MayContain reports false only when the key is definitely absent
func (b *bloomFilter) MayContain(key []byte) bool {
	h1, h2 := bloomHash(key)
	for i := 0; i < b.hashes; i++ {
		bit := (h1 + uint64(i)*h2) % b.nbits
		if b.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}
