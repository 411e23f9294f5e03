// Package decisioncache holds recent matcher decisions keyed by raw URL.
package decisioncache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/services/matcher"
)

// decisionCache is an LRU-backed matcher.DecisionCache with hit, miss and
// eviction counters.
type decisionCache struct {
	lru       *lru.Cache[string, domain.BlockDecision]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache always misses.
type disabledCache struct{}

// New creates a DecisionCache holding up to size decisions. size <= 0 yields
// a disabled cache.
func New(size int) (matcher.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var dc decisionCache
	// Purge evictions go through the callback too.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.BlockDecision) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return &dc, nil
}

func (c *decisionCache) Get(url string) (domain.BlockDecision, bool) {
	if val, ok := c.lru.Get(url); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.BlockDecision{}, false
}

func (c *decisionCache) Put(url string, d domain.BlockDecision) { c.lru.Add(url, d) }

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

func (*disabledCache) Get(string) (domain.BlockDecision, bool) { return domain.BlockDecision{}, false }
func (*disabledCache) Put(string, domain.BlockDecision)        {}
func (*disabledCache) Len() int                                { return 0 }
func (*disabledCache) Purge()                                  {}
func (*disabledCache) Stats() (uint64, uint64, uint64)         { return 0, 0, 0 }

var _ matcher.DecisionCache = (*decisionCache)(nil)
var _ matcher.DecisionCache = (*disabledCache)(nil)
