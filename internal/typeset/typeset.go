// Package typeset provides a probabilistic membership filter over the event
// type names occurring in a step's range. Catalog search uses it to narrow
// "which steps touch type X" queries without loading captures.
package typeset

import (
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// TypeSet is a bloom filter keyed by event type name. It guarantees no
// false negatives: if a type occurred in the range, MayContain returns
// true. False positives are possible and acceptable for search pruning.
//
// A TypeSet is populated during segmentation and read-only afterwards;
// it needs no locking.
type TypeSet struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64 // number of names added
}

// New creates a TypeSet with the given number of bits and hash functions.
func New(numBits, numHashes int) *TypeSet {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	// Round up to whole 64-bit words
	numWords := (numBits + 63) / 64
	return &TypeSet{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a TypeSet sized for the expected number of
// distinct type names and target false positive rate.
func NewWithEstimates(expectedTypes int, targetFPR float64) *TypeSet {
	numBits, numHashes := OptimalParameters(expectedTypes, targetFPR)
	return New(numBits, numHashes)
}

// OptimalParameters computes the optimal bit and hash counts:
//
//	m = -n * ln(p) / (ln(2)^2)
//	k = (m/n) * ln(2)
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 64
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * math.Ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add records a type name in the set.
func (ts *TypeSet) Add(name string) {
	h1, h2 := hashName(name)
	for i := uint64(0); i < ts.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % ts.numBits
		ts.bits[pos/64] |= 1 << (pos % 64)
	}
	ts.count++
}

// MayContain reports whether the range may have contained the type name.
// False positives are possible; false negatives are not.
func (ts *TypeSet) MayContain(name string) bool {
	h1, h2 := hashName(name)
	for i := uint64(0); i < ts.numHashes; i++ {
		pos := (h1 + i*h2) % ts.numBits
		if ts.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of names added (including duplicates).
func (ts *TypeSet) Count() uint64 {
	return ts.count
}

// NumBits returns the filter width in bits.
func (ts *TypeSet) NumBits() int {
	return int(ts.numBits)
}

// NumHashes returns the number of hash functions.
func (ts *TypeSet) NumHashes() int {
	return int(ts.numHashes)
}

// FalsePositiveRate estimates the current false positive rate from the
// fill ratio: (1 - e^(-k*n/m))^k.
func (ts *TypeSet) FalsePositiveRate() float64 {
	if ts.count == 0 {
		return 0
	}
	k := float64(ts.numHashes)
	n := float64(ts.count)
	m := float64(ts.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// ForRange builds a TypeSet of the distinct type names occurring in
// [start, end) of the sequence.
func ForRange(seq *sequence.EventSequence, start, end types.EventID) *TypeSet {
	seen := make(map[types.TypeID]bool)
	for _, ev := range seq.Range(start, end) {
		seen[ev.Type] = true
	}

	ts := NewWithEstimates(len(seen), 0.01)
	for id := range seen {
		if name := seq.TypeName(id); name != "" {
			ts.Add(name)
		}
	}
	return ts
}

// hashName computes the murmur3 128-bit hash of a type name as two
// 64-bit values for double hashing.
func hashName(name string) (uint64, uint64) {
	h := murmur3.New128()
	h.Write([]byte(name))
	return h.Sum128()
}
