// Package hostindex provides the Bloom prefilter the matcher uses to skip
// full scans for hosts that cannot match any entry.
package hostindex

import (
	"math"
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/dontvisit/internal/blocker/services/matcher"
)

// factory implements matcher.BloomFactory using Size for filter parameters.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() matcher.BloomFactory { return factory{} }

func (factory) New(capacity uint64, fpRate float64) matcher.BloomFilter {
	m, k := Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

// filter wraps a bits-and-blooms filter; Add is serialized, reads are not.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

// Size computes Bloom parameters for n items at false-positive rate p:
//
//	m = -(n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// n=0 is treated as 1 and an out-of-range p falls back to 1%.
func Size(n uint64, p float64) (m uint64, k uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	ln2 := math.Ln2
	m = uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k = uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}

var _ matcher.BloomFactory = factory{}
