// Package browser drives a Chromium instance over the DevTools protocol. It
// turns target lifecycle events into navigation checks, performs the close
// and redirect actions on tabs, and hosts one warning overlay per tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/services/dispatcher"
	"github.com/haukened/dontvisit/internal/blocker/services/overlay"
)

var (
	errNotConnected = errors.New("browser not connected")
	errTabClosed    = errors.New("tab closed")
)

// Service receives navigation events and overlay activity.
type Service interface {
	HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.BlockOutcome, bool)
	RecordActivity(ctx context.Context, ev domain.ActivityEvent)
	GrantOverride(tab domain.TabID, rawURL string)
	ForgetTab(tab domain.TabID)
}

// Options configures a Controller.
type Options struct {
	// ControlURL is a DevTools endpoint (ws:// or http://host:port) of a
	// running browser. Empty launches a local one.
	ControlURL string
	Headless   bool
	// Bin overrides the browser binary used when launching.
	Bin          string
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       log.Logger
}

// Controller is safe for concurrent use once started.
type Controller struct {
	opts   Options
	clock  clock.Clock
	logger log.Logger

	mu      sync.Mutex
	svc     Service
	ctx     context.Context
	cancel  context.CancelFunc
	browser *rod.Browser
	lnch    *launcher.Launcher
	tabs    map[domain.TabID]*tabState
	open    func(tab domain.TabID) (tabPage, error)
	wg      sync.WaitGroup
}

type tabState struct {
	id     domain.TabID
	url    string
	title  string
	docURL string

	page    tabPage
	overlay *overlay.Overlay
	poller  *overlay.Poller
	unbind  func() error
	stopNav func()
}

// tabHooks are the per-tab resources released when the tab goes away.
type tabHooks struct {
	poller  *overlay.Poller
	unbind  func() error
	stopNav func()
}

// detachLocked hands the hooks of st to the caller exactly once. c.mu must
// be held.
func (st *tabState) detachLocked() tabHooks {
	h := tabHooks{poller: st.poller, unbind: st.unbind, stopNav: st.stopNav}
	st.poller, st.unbind, st.stopNav = nil, nil, nil
	return h
}

func (h tabHooks) release() {
	if h.stopNav != nil {
		h.stopNav()
	}
	if h.poller != nil {
		h.poller.Stop()
	}
	if h.unbind != nil {
		_ = h.unbind()
	}
}

var (
	_ dispatcher.Tabs        = (*Controller)(nil)
	_ dispatcher.PageChannel = (*Controller)(nil)
)

// New returns an unstarted Controller.
func New(opts Options) *Controller {
	c := &Controller{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger,
		tabs:   make(map[domain.TabID]*tabState),
	}
	if c.clock == nil {
		c.clock = &clock.RealClock{}
	}
	if c.logger == nil {
		c.logger = log.NewNoopLogger()
	}
	c.open = c.openRodPage
	return c
}

// Start connects to (or launches) the browser, reports existing tabs and
// follows target events until ctx is done or Stop is called.
func (c *Controller) Start(ctx context.Context, svc Service) error {
	ctx, cancel := context.WithCancel(ctx)
	b, l, err := c.connect(ctx)
	if err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	c.svc, c.ctx, c.cancel = svc, ctx, cancel
	c.browser, c.lnch = b, l
	c.mu.Unlock()

	wait := b.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			c.onTarget(e.TargetInfo, domain.StageCreated)
		},
		func(e *proto.TargetTargetInfoChanged) {
			c.onTarget(e.TargetInfo, domain.StageLoading)
		},
		func(e *proto.TargetTargetDestroyed) {
			c.forget(domain.TabID(e.TargetID))
		},
	)
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		c.logger.Warn(map[string]any{"error": err}, "target discovery failed")
	}

	targets, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		c.logger.Warn(map[string]any{"error": err}, "listing existing targets failed")
	} else {
		for _, info := range targets.TargetInfos {
			c.onTarget(info, domain.StageComplete)
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		wait()
	}()
	c.logger.Info(map[string]any{"tabs": c.tabCount()}, "browser controller started")
	return nil
}

func (c *Controller) connect(ctx context.Context) (*rod.Browser, *launcher.Launcher, error) {
	var l *launcher.Launcher
	u := c.opts.ControlURL
	switch {
	case u == "":
		l = launcher.New().Context(ctx).Headless(c.opts.Headless)
		if c.opts.Bin != "" {
			l = l.Bin(c.opts.Bin)
		}
		launched, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("browser: launch: %w", err)
		}
		u = launched
		c.logger.Info(map[string]any{"url": u, "headless": c.opts.Headless}, "launched local browser")
	case !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://"):
		resolved, err := launcher.ResolveURL(u)
		if err != nil {
			return nil, nil, fmt.Errorf("browser: resolve %s: %w", u, err)
		}
		u = resolved
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, l, nil
}

// Stop stops polling, detaches overlays and disconnects. A launched browser
// is closed; a remote one is left running.
func (c *Controller) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	b, l := c.browser, c.lnch
	hooks := make([]tabHooks, 0, len(c.tabs))
	for _, st := range c.tabs {
		hooks = append(hooks, st.detachLocked())
	}
	c.tabs = make(map[domain.TabID]*tabState)
	c.browser, c.lnch, c.cancel = nil, nil, nil
	c.mu.Unlock()

	for _, h := range hooks {
		h.release()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	var err error
	if l != nil && b != nil {
		err = b.Close()
		l.Cleanup()
	}
	return err
}

func (c *Controller) tabCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tabs)
}

func (c *Controller) service() (Service, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svc, c.ctx
}

// onTarget records a page target and checks its URL when it changed.
func (c *Controller) onTarget(info *proto.TargetTargetInfo, stage domain.LifecycleStage) {
	if info == nil || string(info.Type) != "page" {
		return
	}
	c.observe(domain.TabInfo{ID: domain.TabID(info.TargetID), URL: info.URL, Title: info.Title}, stage)
}

func (c *Controller) observe(info domain.TabInfo, stage domain.LifecycleStage) {
	c.mu.Lock()
	st, ok := c.tabs[info.ID]
	if !ok {
		st = &tabState{id: info.ID}
		c.tabs[info.ID] = st
	}
	changed := st.url != info.URL
	st.url, st.title = info.URL, info.Title
	ov := st.overlay
	c.mu.Unlock()

	if !changed {
		return
	}
	if ov != nil {
		ov.Reset()
	}
	if !checkable(info.URL) {
		return
	}
	// CDP calls are kept off the event goroutine.
	go func() {
		c.startPoller(info.ID, info.URL)
		c.navigate(info.ID, info.URL, stage)
	}()
}

func checkable(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func (c *Controller) navigate(tab domain.TabID, rawURL string, stage domain.LifecycleStage) {
	c.check(domain.NavigationEvent{TabID: tab, URL: rawURL, Stage: stage})
}

func (c *Controller) check(ev domain.NavigationEvent) {
	svc, ctx := c.service()
	if svc == nil || ctx == nil || ctx.Err() != nil {
		return
	}
	out, dispatched := svc.HandleNavigation(ctx, ev)
	if dispatched {
		c.logger.Debug(map[string]any{"tab": string(ev.TabID), "url": ev.URL, "applied": out.Applied}, "navigation blocked")
	}
}

// onDocument handles a new document in the main frame of tab. The overlay
// never survives it. The same URL loaded again, or a reload of a page that
// was showing the warning, is reported as a reload.
func (c *Controller) onDocument(tab domain.TabID, rawURL string) {
	c.mu.Lock()
	st, ok := c.tabs[tab]
	if !ok {
		c.mu.Unlock()
		return
	}
	reload := st.docURL == rawURL
	st.docURL, st.url = rawURL, rawURL
	ov := st.overlay
	c.mu.Unlock()

	if ov != nil {
		if ov.State() == overlay.StateShown && ov.BlockedURL() == rawURL {
			reload = true
		}
		ov.Reset()
	}
	if !checkable(rawURL) {
		return
	}
	go c.check(domain.NavigationEvent{TabID: tab, URL: rawURL, Stage: domain.StageLoading, Reload: reload})
}

// startPoller watches the tab for URL changes that produce no target event.
func (c *Controller) startPoller(tab domain.TabID, initial string) {
	st, err := c.attach(tab)
	if err != nil {
		c.logger.Debug(map[string]any{"tab": string(tab), "error": err}, "cannot attach to tab")
		return
	}
	_, ctx := c.service()
	if ctx == nil {
		return
	}
	c.mu.Lock()
	if c.tabs[tab] != st {
		c.mu.Unlock()
		return
	}
	if st.poller == nil {
		st.poller = overlay.NewPoller(st.page, c.opts.PollInterval, func(_ context.Context, u string) {
			c.mu.Lock()
			known := st.url == u
			st.url = u
			ov := st.overlay
			c.mu.Unlock()
			if known {
				return
			}
			if ov != nil {
				ov.Reset()
			}
			if checkable(u) {
				c.navigate(tab, u, domain.StageURLChanged)
			}
		}, c.logger)
	}
	// Started under the lock so a concurrent forget cannot miss it.
	st.poller.Start(ctx, initial)
	c.mu.Unlock()
}

// attach returns the state of tab with its page opened.
func (c *Controller) attach(tab domain.TabID) (*tabState, error) {
	c.mu.Lock()
	st, ok := c.tabs[tab]
	if !ok {
		st = &tabState{id: tab}
		c.tabs[tab] = st
	}
	if st.page != nil {
		c.mu.Unlock()
		return st, nil
	}
	open := c.open
	c.mu.Unlock()

	page, err := open(tab)
	if err != nil {
		return nil, err
	}
	stopNav := page.Navigated(func(u string) { c.onDocument(tab, u) })

	c.mu.Lock()
	if st.page == nil && c.tabs[tab] == st {
		st.page, st.stopNav = page, stopNav
		c.mu.Unlock()
		return st, nil
	}
	attached := st.page != nil
	c.mu.Unlock()

	stopNav()
	if !attached {
		return nil, errTabClosed
	}
	return st, nil
}

func (c *Controller) openRodPage(tab domain.TabID) (tabPage, error) {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if b == nil {
		return nil, errNotConnected
	}
	p, err := b.PageFromTarget(proto.TargetTargetID(tab))
	if err != nil {
		return nil, fmt.Errorf("attach to tab %s: %w", tab, err)
	}
	return &rodPage{page: p}, nil
}

// overlayFor returns the overlay of tab, creating it and binding its
// buttons on first use.
func (c *Controller) overlayFor(tab domain.TabID) (*overlay.Overlay, error) {
	st, err := c.attach(tab)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if st.overlay != nil {
		ov := st.overlay
		c.mu.Unlock()
		return ov, nil
	}
	svc := c.svc
	opts := overlay.Options{Tab: tab, Page: st.page, Clock: c.clock, Logger: c.logger}
	if svc != nil {
		opts.Recorder = svc
		opts.OnOverride = svc.GrantOverride
	}
	ov := overlay.New(opts)
	st.overlay = ov
	page := st.page
	c.mu.Unlock()

	unbind, err := page.Bind(func(action string) { c.onButton(tab, ov, action) })
	if err != nil {
		c.logger.Warn(map[string]any{"tab": string(tab), "error": err}, "overlay buttons unavailable")
		return ov, nil
	}
	c.mu.Lock()
	live := c.tabs[tab] == st
	if live {
		st.unbind = unbind
	}
	c.mu.Unlock()
	if !live {
		_ = unbind()
	}
	return ov, nil
}

func (c *Controller) onButton(tab domain.TabID, ov *overlay.Overlay, action string) {
	_, ctx := c.service()
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	switch action {
	case actionGoBack:
		err = ov.GoBack(ctx)
	case actionContinue:
		err = ov.Continue(ctx)
	case actionBackground:
		err = ov.BackgroundClick(ctx)
	case actionEscape:
		err = ov.Escape(ctx)
	default:
		c.logger.Debug(map[string]any{"tab": string(tab), "action": action}, "unknown overlay action")
		return
	}
	if err != nil {
		c.logger.Warn(map[string]any{"tab": string(tab), "action": action, "error": err}, "overlay action failed")
	}
}

func (c *Controller) forget(tab domain.TabID) {
	c.mu.Lock()
	st, ok := c.tabs[tab]
	delete(c.tabs, tab)
	svc := c.svc
	var hooks tabHooks
	if ok {
		hooks = st.detachLocked()
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	go hooks.release()
	if svc != nil {
		svc.ForgetTab(tab)
	}
}

// Close closes tab.
func (c *Controller) Close(ctx context.Context, tab domain.TabID) error {
	st, err := c.attach(tab)
	if err != nil {
		return err
	}
	return st.page.Close(ctx)
}

// Navigate loads url in tab.
func (c *Controller) Navigate(ctx context.Context, tab domain.TabID, url string) error {
	st, err := c.attach(tab)
	if err != nil {
		return err
	}
	return st.page.Navigate(ctx, url)
}

// SendMessage delivers a page-side request to the overlay of tab. It fails
// with domain.ErrChannelUnavailable when the tab cannot be reached.
func (c *Controller) SendMessage(ctx context.Context, tab domain.TabID, req domain.Request) (domain.Response, error) {
	ov, err := c.overlayFor(tab)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	return ov.HandleRequest(ctx, req), nil
}

// HandleOverlayRequest answers showBlockingWarning and hideBlockingWarning
// for tab.
func (c *Controller) HandleOverlayRequest(ctx context.Context, tab domain.TabID, req domain.Request) domain.Response {
	resp, err := c.SendMessage(ctx, tab, req)
	if err != nil {
		c.logger.Debug(map[string]any{"tab": string(tab), "error": err}, "overlay request failed")
		return domain.HandledResponse(false)
	}
	return resp
}

// ActiveTab returns the first visible tab.
func (c *Controller) ActiveTab(ctx context.Context) (domain.TabInfo, error) {
	c.mu.Lock()
	ids := make([]domain.TabID, 0, len(c.tabs))
	for id := range c.tabs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		st, err := c.attach(id)
		if err != nil {
			continue
		}
		visible, err := st.page.Visible(ctx)
		if err != nil || !visible {
			continue
		}
		c.mu.Lock()
		info := domain.TabInfo{ID: id, URL: st.url, Title: st.title}
		c.mu.Unlock()
		return info, nil
	}
	return domain.TabInfo{}, errors.New("no visible tab")
}
