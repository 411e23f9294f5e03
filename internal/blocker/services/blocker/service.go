// Package blocker ties navigation events to the matcher and the dispatcher
// and implements the request vocabulary spoken by the HTTP API, the page
// channel and the CLI.
package blocker

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/repos/store"
)

// Defaults for Options.
const (
	DefaultDedupWindow  = 2 * time.Second
	DefaultOverrideTTL  = 10 * time.Minute
	DefaultActivitySize = 256
	maxTrackedNavs      = 4096
)

// Options configures a Service. Store and Matcher are required.
type Options struct {
	Store      store.Store
	Matcher    Matcher
	Dispatcher Dispatcher
	Overlays   OverlayRouter
	Tabs       ActiveTabProvider
	Metrics    Metrics
	Clock      clock.Clock
	Logger     log.Logger

	// DedupWindow suppresses repeated lifecycle events for the same tab and
	// URL. A tab that reports any other URL in between is checked again.
	// Zero uses DefaultDedupWindow; negative disables suppression.
	DedupWindow time.Duration
	// OverrideTTL is how long "Continue Anyway" keeps a tab and URL unblocked.
	OverrideTTL time.Duration
	// ActivitySize bounds the in-memory activity log.
	ActivitySize int
}

// Service is safe for concurrent use.
type Service struct {
	store      store.Store
	matcher    Matcher
	dispatcher Dispatcher
	overlays   OverlayRouter
	tabs       ActiveTabProvider
	metrics    Metrics
	clock      clock.Clock
	logger     log.Logger

	mu        sync.Mutex
	recent    *expirable.LRU[string, struct{}]
	lastURL   map[domain.TabID]string
	overrides *expirable.LRU[string, struct{}]
	activity  *lru.Cache[string, domain.ActivityEvent]
}

// New constructs a Service.
func New(opts Options) (*Service, error) {
	s := &Service{
		store:      opts.Store,
		matcher:    opts.Matcher,
		dispatcher: opts.Dispatcher,
		overlays:   opts.Overlays,
		tabs:       opts.Tabs,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		logger:     opts.Logger,
		lastURL:    make(map[domain.TabID]string),
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.clock == nil {
		s.clock = &clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}

	window := opts.DedupWindow
	if window == 0 {
		window = DefaultDedupWindow
	}
	if window > 0 {
		s.recent = expirable.NewLRU[string, struct{}](maxTrackedNavs, nil, window)
	}
	ttl := opts.OverrideTTL
	if ttl <= 0 {
		ttl = DefaultOverrideTTL
	}
	s.overrides = expirable.NewLRU[string, struct{}](maxTrackedNavs, nil, ttl)

	size := opts.ActivitySize
	if size <= 0 {
		size = DefaultActivitySize
	}
	activity, err := lru.New[string, domain.ActivityEvent](size)
	if err != nil {
		return nil, err
	}
	s.activity = activity
	return s, nil
}

// Init writes install-time defaults and primes the list-size gauge.
func (s *Service) Init() error {
	if err := s.store.Init(); err != nil {
		return err
	}
	if list, err := s.store.BlockList(); err == nil {
		s.metrics.SetBlockListSize(len(list))
	}
	return nil
}

func navKey(tab domain.TabID, rawURL string) string {
	return string(tab) + "\x00" + rawURL
}

// HandleNavigation checks one navigation event and blocks it if needed. The
// boolean reports whether a blocking method was dispatched. Any failure on
// the way allows the navigation.
func (s *Service) HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.BlockOutcome, bool) {
	if !ev.Stage.Checked() || strings.TrimSpace(ev.URL) == "" {
		return domain.BlockOutcome{}, false
	}
	s.metrics.ObserveNavigation(string(ev.Stage))
	s.noteURL(ev)

	snap, err := s.store.Snapshot()
	if err != nil {
		s.logger.Error(map[string]any{"tab": string(ev.TabID), "url": ev.URL, "error": err}, "snapshot read failed, allowing navigation")
		return domain.BlockOutcome{}, false
	}
	if !snap.Enabled {
		return domain.BlockOutcome{}, false
	}

	key := navKey(ev.TabID, ev.URL)
	if _, ok := s.overrides.Get(key); ok {
		s.logger.Debug(map[string]any{"tab": string(ev.TabID), "url": ev.URL}, "navigation overridden by user")
		return domain.BlockOutcome{}, false
	}

	d := s.matcher.Decide(ev.URL, snap.BlockList, snap.Settings)
	s.metrics.ObserveDecision(d.Blocked, d.Rule.String())
	if !d.Blocked {
		return domain.BlockOutcome{}, false
	}

	if s.seenRecently(key) {
		s.logger.Debug(map[string]any{"tab": string(ev.TabID), "url": ev.URL, "stage": string(ev.Stage)}, "duplicate navigation event suppressed")
		return domain.BlockOutcome{}, false
	}

	s.logger.Info(map[string]any{
		"tab":    string(ev.TabID),
		"url":    ev.URL,
		"stage":  string(ev.Stage),
		"entry":  d.Entry.String(),
		"rule":   d.Rule.String(),
		"method": string(snap.Method),
	}, "blocking site")

	if s.dispatcher == nil {
		return domain.BlockOutcome{TabID: ev.TabID, URL: ev.URL, Requested: snap.Method}, false
	}
	return s.dispatcher.ApplyBlock(ctx, ev.TabID, ev.URL, snap.Method, snap.Settings), true
}

// seenRecently marks key and reports whether it was already marked inside
// the dedup window.
func (s *Service) seenRecently(key string) bool {
	if s.recent == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recent.Get(key); ok {
		return true
	}
	s.recent.Add(key, struct{}{})
	return false
}

// noteURL records the URL a tab is on. Moving to a different URL, or
// reloading the same one, ends the dedup window of the previous URL so the
// next visit is checked again.
func (s *Service) noteURL(ev domain.NavigationEvent) {
	if s.recent == nil {
		return
	}
	tab, rawURL := ev.TabID, ev.URL
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.lastURL[tab]
	if ok && prev == rawURL && !ev.Reload {
		return
	}
	if ok {
		s.recent.Remove(navKey(tab, prev))
	} else if len(s.lastURL) >= maxTrackedNavs {
		clear(s.lastURL)
	}
	s.lastURL[tab] = rawURL
}

// GrantOverride keeps tab and rawURL unblocked for the override TTL.
func (s *Service) GrantOverride(tab domain.TabID, rawURL string) {
	s.overrides.Add(navKey(tab, rawURL), struct{}{})
	s.logger.Info(map[string]any{"tab": string(tab), "url": rawURL}, "warning overridden")
}

// ForgetTab drops dedup and override state of a closed tab.
func (s *Service) ForgetTab(tab domain.TabID) {
	prefix := string(tab) + "\x00"
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastURL, tab)
	for _, c := range []*expirable.LRU[string, struct{}]{s.recent, s.overrides} {
		if c == nil {
			continue
		}
		for _, k := range c.Keys() {
			if strings.HasPrefix(k, prefix) {
				c.Remove(k)
			}
		}
	}
}
