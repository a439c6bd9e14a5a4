// Package bloom provides a probabilistic membership filter used by the
// in-memory engine to short-circuit primary-key misses.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// BloomFilter provides probabilistic membership testing with configurable false positive rate.
// It guarantees no false negatives - if an item was added, Contains() will always return true.
type BloomFilter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64 // number of items added
	capacity  uint64 // expected items the filter was sized for
}

// New creates a new BloomFilter with the specified number of bits and hash functions.
func New(numBits, numHashes int) *BloomFilter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	numWords := (numBits + 63) / 64
	actualBits := uint64(numWords * 64)

	return &BloomFilter{
		bits:      make([]uint64, numWords),
		numBits:   actualBits,
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a BloomFilter optimized for the expected number of items
// and target false positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	numBits, numHashes := OptimalParameters(expectedItems, targetFPR)
	bf := New(numBits, numHashes)
	bf.capacity = uint64(expectedItems)
	return bf
}

// OptimalParameters calculates the optimal number of bits and hash functions
// for a given expected number of items and target false positive rate.
//
// The formulas are:
//   - m = -n * ln(p) / (ln(2)^2)  where m = bits, n = items, p = FPR
//   - k = (m/n) * ln(2)           where k = hash functions
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	ln2 := math.Ln2

	m := -n * math.Log(targetFPR) / (ln2 * ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add adds an item to the bloom filter.
func (bf *BloomFilter) Add(item []byte) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	h1, h2 := hash128(item)
	for i := uint64(0); i < bf.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		bf.setBit((h1 + i*h2) % bf.numBits)
	}
	bf.count++
}

// Contains tests if an item might be in the filter.
// Returns false only if the item is definitely not present.
func (bf *BloomFilter) Contains(item []byte) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	h1, h2 := hash128(item)
	for i := uint64(0); i < bf.numHashes; i++ {
		if !bf.getBit((h1 + i*h2) % bf.numBits) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Copy-on-write owners clone before
// adding to a filter shared with readers.
func (bf *BloomFilter) Clone() *BloomFilter {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	bits := make([]uint64, len(bf.bits))
	copy(bits, bf.bits)
	return &BloomFilter{
		bits:      bits,
		numBits:   bf.numBits,
		numHashes: bf.numHashes,
		count:     bf.count,
		capacity:  bf.capacity,
	}
}

// Saturated reports whether more items were added than the filter was
// sized for, meaning the false positive rate has drifted above target.
func (bf *BloomFilter) Saturated() bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.capacity > 0 && bf.count > bf.capacity
}

func hash128(item []byte) (uint64, uint64) {
	h := murmur3.New128()
	h.Write(item)
	return h.Sum128()
}

func (bf *BloomFilter) setBit(pos uint64) {
	bf.bits[pos/64] |= 1 << (pos % 64)
}

func (bf *BloomFilter) getBit(pos uint64) bool {
	return bf.bits[pos/64]&(1<<(pos%64)) != 0
}

// Count returns the number of items added to the filter.
func (bf *BloomFilter) Count() uint64 {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.count
}
