// Package overlay manages the in-page warning shown when the blocking method
// is "warning". One Overlay exists per page; its state is in memory only and
// starts over whenever the page reloads.
package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// State of the overlay on one page.
type State int

const (
	StateAbsent State = iota
	StateShown
	StateDismissed
)

func (s State) String() string {
	switch s {
	case StateShown:
		return "shown"
	case StateDismissed:
		return "dismissed"
	default:
		return "absent"
	}
}

// BlankURL is loaded when there is no history to go back to.
const BlankURL = "about:blank"

// View is what the page renders inside the modal.
type View struct {
	Host string
	URL  string
}

// Page is the DOM and history surface of one tab.
type Page interface {
	// Render shows the full-viewport modal, replacing any existing one.
	Render(ctx context.Context, v View) error
	Remove(ctx context.Context) error
	HistoryLength(ctx context.Context) (int, error)
	Back(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
}

// ActivityRecorder receives warningShown and warningOverridden events.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, ev domain.ActivityEvent)
}

// OverrideFunc is told when the user chose "Continue Anyway" so the same
// navigation is not blocked again.
type OverrideFunc func(tab domain.TabID, rawURL string)

// Options configures an Overlay. Page is required.
type Options struct {
	Tab        domain.TabID
	Page       Page
	Recorder   ActivityRecorder
	OnOverride OverrideFunc
	Clock      clock.Clock
	Logger     log.Logger
}

// Overlay is the warning state machine of one page. Safe for concurrent use.
type Overlay struct {
	mu         sync.Mutex
	tab        domain.TabID
	page       Page
	state      State
	blockedURL string
	recorder   ActivityRecorder
	onOverride OverrideFunc
	clock      clock.Clock
	logger     log.Logger
}

// New constructs an Overlay in StateAbsent.
func New(opts Options) *Overlay {
	o := &Overlay{
		tab:        opts.Tab,
		page:       opts.Page,
		recorder:   opts.Recorder,
		onOverride: opts.OnOverride,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if o.clock == nil {
		o.clock = &clock.RealClock{}
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	return o
}

// State returns the current state.
func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// BlockedURL returns the URL the current or last overlay was shown for.
func (o *Overlay) BlockedURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blockedURL
}

// Show renders the warning for blockedURL. Showing while already shown
// replaces the overlay, so exactly one is ever present.
func (o *Overlay) Show(ctx context.Context, blockedURL string) error {
	host, err := urlutil.Hostname(blockedURL)
	if err != nil {
		return fmt.Errorf("%w: show warning: %v", domain.ErrMalformedInput, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateShown {
		if err := o.page.Remove(ctx); err != nil {
			o.logger.Debug(map[string]any{"tab": string(o.tab), "error": err}, "remove before re-render failed")
		}
		o.state = StateDismissed
	}
	if err := o.page.Render(ctx, View{Host: host, URL: blockedURL}); err != nil {
		return fmt.Errorf("render warning: %w", err)
	}
	o.state = StateShown
	o.blockedURL = blockedURL
	o.record(ctx, domain.ActivityWarningShown, blockedURL)
	return nil
}

// GoBack dismisses the overlay and leaves the page: history back, or
// about:blank when there is nothing to go back to.
func (o *Overlay) GoBack(ctx context.Context) error { return o.leave(ctx, "go_back") }

// BackgroundClick behaves like GoBack.
func (o *Overlay) BackgroundClick(ctx context.Context) error { return o.leave(ctx, "background") }

// Escape behaves like GoBack.
func (o *Overlay) Escape(ctx context.Context) error { return o.leave(ctx, "escape") }

func (o *Overlay) leave(ctx context.Context, via string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateShown {
		return nil
	}
	o.dismissLocked(ctx)
	o.logger.Debug(map[string]any{"tab": string(o.tab), "via": via}, "warning dismissed")

	n, err := o.page.HistoryLength(ctx)
	if err == nil && n > 1 {
		return o.page.Back(ctx)
	}
	return o.page.Navigate(ctx, BlankURL)
}

// Continue dismisses the overlay and lets the page stay.
func (o *Overlay) Continue(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateShown {
		o.mu.Unlock()
		return nil
	}
	o.dismissLocked(ctx)
	blocked := o.blockedURL
	o.record(ctx, domain.ActivityWarningOverridden, blocked)
	hook := o.onOverride
	o.mu.Unlock()

	if hook != nil {
		hook(o.tab, blocked)
	}
	return nil
}

// Hide removes the overlay if present. It is always considered handled.
func (o *Overlay) Hide(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateShown {
		o.dismissLocked(ctx)
	}
}

// Reset forgets everything, as a page reload does.
func (o *Overlay) Reset() {
	o.mu.Lock()
	o.state = StateAbsent
	o.blockedURL = ""
	o.mu.Unlock()
}

// HandleRequest answers the page-side part of the request vocabulary.
func (o *Overlay) HandleRequest(ctx context.Context, req domain.Request) domain.Response {
	switch req.Action {
	case domain.ActionShowWarning:
		if err := o.Show(ctx, req.BlockedURL); err != nil {
			o.logger.Warn(map[string]any{"tab": string(o.tab), "url": req.BlockedURL, "error": err}, "failed to show warning")
			return domain.HandledResponse(false)
		}
		return domain.HandledResponse(true)
	case domain.ActionHideWarning:
		o.Hide(ctx)
		return domain.HandledResponse(true)
	default:
		return domain.Failure(domain.ErrTextUnknownAction)
	}
}

func (o *Overlay) dismissLocked(ctx context.Context) {
	if err := o.page.Remove(ctx); err != nil {
		o.logger.Debug(map[string]any{"tab": string(o.tab), "error": err}, "overlay remove failed")
	}
	o.state = StateDismissed
}

func (o *Overlay) record(ctx context.Context, kind domain.ActivityType, blockedURL string) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordActivity(ctx, domain.NewActivityEvent(kind, o.tab, blockedURL, o.clock.Now()))
}
