package matcher

import (
	"sync"

	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// DefaultFPRate is the Bloom prefilter false-positive target.
const DefaultFPRate = 0.01

// Matcher wraps Ruleset compilation with a decision cache. The ruleset is
// recompiled only when the list or settings fingerprint changes, and the
// cache is purged at the same moment.
type Matcher struct {
	mu       sync.Mutex
	current  *Ruleset
	cache    DecisionCache
	factory  BloomFactory
	fpRate   float64
	excluded []string
	logger   log.Logger
}

// Options configures a Matcher. Every field is optional.
type Options struct {
	Cache            DecisionCache
	BloomFactory     BloomFactory
	FPRate           float64
	ExcludedPrefixes []string
	Logger           log.Logger
}

// New constructs a Matcher.
func New(opts Options) *Matcher {
	m := &Matcher{
		cache:    opts.Cache,
		factory:  opts.BloomFactory,
		fpRate:   opts.FPRate,
		excluded: opts.ExcludedPrefixes,
		logger:   opts.Logger,
	}
	if m.cache == nil {
		m.cache = nopCache{}
	}
	if m.fpRate <= 0 || m.fpRate >= 1 {
		m.fpRate = DefaultFPRate
	}
	if m.logger == nil {
		m.logger = log.NewNoopLogger()
	}
	return m
}

// Decide evaluates rawURL against list under settings.
// Policy: on parse errors, prefer Allow (not blocked).
func (m *Matcher) Decide(rawURL string, list domain.BlockList, settings domain.Settings) domain.BlockDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.rulesetLocked(list, settings)
	if d, ok := m.cache.Get(rawURL); ok {
		return d
	}
	d, err := rs.Decide(rawURL)
	if err != nil {
		m.logger.Warn(map[string]any{"url": rawURL, "error": err}, "URL parse failed, allowing navigation")
		return d
	}
	m.cache.Put(rawURL, d)
	return d
}

// IsBlocked is Decide reduced to its boolean.
func (m *Matcher) IsBlocked(rawURL string, list domain.BlockList, settings domain.Settings) bool {
	return m.Decide(rawURL, list, settings).Blocked
}

// CacheStats returns hit/miss/eviction counters of the decision cache.
func (m *Matcher) CacheStats() (hits, misses, evictions uint64) {
	return m.cache.Stats()
}

func (m *Matcher) rulesetLocked(list domain.BlockList, settings domain.Settings) *Ruleset {
	fp := Fingerprint(list, settings)
	if m.current != nil && m.current.Fingerprint() == fp {
		return m.current
	}
	m.current = NewRuleset(list, settings, m.factory, m.fpRate, m.excluded...)
	m.cache.Purge()
	m.logger.Debug(map[string]any{
		"entries":          m.current.Len(),
		"block_subdomains": settings.BlockSubdomains,
		"case_sensitive":   settings.CaseSensitive,
		"prefilter":        m.current.prefilter != nil,
	}, "Ruleset compiled")
	return m.current
}

type nopCache struct{}

func (nopCache) Get(string) (domain.BlockDecision, bool) { return domain.BlockDecision{}, false }
func (nopCache) Put(string, domain.BlockDecision)        {}
func (nopCache) Len() int                                { return 0 }
func (nopCache) Purge()                                  {}
func (nopCache) Stats() (uint64, uint64, uint64)         { return 0, 0, 0 }
