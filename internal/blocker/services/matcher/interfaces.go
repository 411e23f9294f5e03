package matcher

import "github.com/haukened/dontvisit/internal/blocker/domain"

// BloomFilter is the minimal interface the ruleset needs from a Bloom filter.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for capacity entries at fpRate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches decisions by raw URL. It is purged whenever the list
// or settings change.
type DecisionCache interface {
	Get(url string) (domain.BlockDecision, bool)
	Put(url string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}
