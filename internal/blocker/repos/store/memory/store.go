// Package memory is an in-process Store used by tests and by the daemon when
// no database path is configured.
package memory

import (
	"sync"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/repos/store"
)

type memoryStore struct {
	mu          sync.RWMutex
	clock       clock.Clock
	initialized bool
	snap        domain.Snapshot
	stats       domain.Statistics
}

// New returns an empty store; call Init to populate defaults.
func New(clk clock.Clock) store.Store {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &memoryStore{clock: clk}
}

func (s *memoryStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.snap = store.Defaults()
	s.stats = domain.NewStatistics(s.clock.Now())
	s.initialized = true
	return nil
}

func (s *memoryStore) Snapshot() (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.BlockList = append(domain.BlockList{}, s.snap.BlockList...)
	return out, nil
}

func (s *memoryStore) BlockList() (domain.BlockList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(domain.BlockList{}, s.snap.BlockList...), nil
}

func (s *memoryStore) UpdateBlockList(fn func(domain.BlockList) (domain.BlockList, error)) (domain.BlockList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(append(domain.BlockList{}, s.snap.BlockList...))
	if err != nil {
		return nil, err
	}
	s.snap.BlockList = append(domain.BlockList{}, next...)
	return next, nil
}

func (s *memoryStore) SetEnabled(enabled bool) error {
	s.mu.Lock()
	s.snap.Enabled = enabled
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) SetMethod(m domain.BlockingMethod) error {
	s.mu.Lock()
	s.snap.Method = m
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Settings() (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Settings, nil
}

func (s *memoryStore) PutSettings(st domain.Settings) error {
	s.mu.Lock()
	s.snap.Settings = st
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Statistics() (domain.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.Clone(), nil
}

func (s *memoryStore) RecordBlock(host string) error {
	s.mu.Lock()
	s.stats.Record(host)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error { return nil }

var _ store.Store = (*memoryStore)(nil)
