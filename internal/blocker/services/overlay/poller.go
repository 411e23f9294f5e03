package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/haukened/dontvisit/internal/blocker/common/log"
)

// DefaultPollInterval is how often the page URL is sampled.
const DefaultPollInterval = time.Second

// URLSource reports the current URL of a page.
type URLSource interface {
	CurrentURL(ctx context.Context) (string, error)
}

// ChangeFunc receives each new URL.
type ChangeFunc func(ctx context.Context, url string)

// Poller detects client-side URL changes that produce no navigation event.
type Poller struct {
	src      URLSource
	interval time.Duration
	onChange ChangeFunc
	logger   log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller returns a stopped Poller. interval <= 0 uses DefaultPollInterval.
func NewPoller(src URLSource, interval time.Duration, onChange ChangeFunc, logger log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Poller{src: src, interval: interval, onChange: onChange, logger: logger}
}

// Start begins polling from initial. It is a no-op if already running.
// Polling ends on Stop or when ctx is done.
func (p *Poller) Start(ctx context.Context, initial string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, initial, p.done)
}

// Stop ends polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, current string, done chan struct{}) {
	defer close(done)
	defer p.finished(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u, err := p.src.CurrentURL(ctx)
			if err != nil {
				p.logger.Debug(map[string]any{"error": err}, "url poll failed")
				continue
			}
			if u == current {
				continue
			}
			current = u
			if p.onChange != nil {
				p.onChange(ctx, u)
			}
		}
	}
}

// finished clears the run state when the loop ends on its own, so a later
// Start is not mistaken for a duplicate.
func (p *Poller) finished(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != done {
		return
	}
	p.cancel()
	p.cancel, p.done = nil, nil
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
