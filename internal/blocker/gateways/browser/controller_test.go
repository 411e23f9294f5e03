package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/services/overlay"
)

type fakePage struct {
	mu       sync.Mutex
	url      string
	visible  bool
	history  int
	rendered []overlay.View
	removed  int
	closed   bool
	navTo    []string
	binding  func(string)
	unbound  int
	onDoc    func(string)
	docStops int
}

func (p *fakePage) Render(_ context.Context, v overlay.View) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rendered = append(p.rendered, v)
	return nil
}

func (p *fakePage) Remove(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed++
	return nil
}

func (p *fakePage) HistoryLength(context.Context) (int, error) { return p.history, nil }
func (p *fakePage) Back(context.Context) error                 { return nil }

func (p *fakePage) Navigate(_ context.Context, u string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navTo = append(p.navTo, u)
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) setURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

func (p *fakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) Visible(context.Context) (bool, error) { return p.visible, nil }

func (p *fakePage) Bind(fn func(string)) (func() error, error) {
	p.mu.Lock()
	p.binding = fn
	p.mu.Unlock()
	return func() error {
		p.mu.Lock()
		p.unbound++
		p.mu.Unlock()
		return nil
	}, nil
}

func (p *fakePage) Navigated(fn func(string)) func() {
	p.mu.Lock()
	p.onDoc = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.docStops++
		p.mu.Unlock()
	}
}

// load simulates a new top-level document, as a reload or link does.
func (p *fakePage) load(u string) {
	p.mu.Lock()
	p.url = u
	fn := p.onDoc
	p.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (p *fakePage) counts() (unbound, docStops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unbound, p.docStops
}

func (p *fakePage) click(action string) {
	p.mu.Lock()
	fn := p.binding
	p.mu.Unlock()
	fn(action)
}

type fakeService struct {
	mu        sync.Mutex
	navs      []domain.NavigationEvent
	activity  []domain.ActivityType
	overrides []string
	forgotten []domain.TabID
}

func (s *fakeService) HandleNavigation(_ context.Context, ev domain.NavigationEvent) (domain.BlockOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navs = append(s.navs, ev)
	return domain.BlockOutcome{}, false
}

func (s *fakeService) RecordActivity(_ context.Context, ev domain.ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, ev.Type)
}

func (s *fakeService) GrantOverride(tab domain.TabID, u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, string(tab)+" "+u)
}

func (s *fakeService) ForgetTab(tab domain.TabID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, tab)
}

func (s *fakeService) navigations() []domain.NavigationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.NavigationEvent(nil), s.navs...)
}

// newTestController wires fakes in place of a real browser.
func newTestController(t *testing.T, pages map[domain.TabID]*fakePage) (*Controller, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	c := New(Options{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	c.svc, c.ctx, c.cancel = svc, ctx, cancel
	c.open = func(tab domain.TabID) (tabPage, error) {
		p, ok := pages[tab]
		if !ok {
			return nil, errors.New("no such tab")
		}
		return p, nil
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c, svc
}

func TestObserve_ChecksHTTPURLsOnce(t *testing.T) {
	page := &fakePage{url: "https://facebook.com/"}
	c, svc := newTestController(t, map[domain.TabID]*fakePage{"A": page})

	c.observe(domain.TabInfo{ID: "A", URL: "about:blank"}, domain.StageCreated)
	c.observe(domain.TabInfo{ID: "A", URL: "https://facebook.com/"}, domain.StageLoading)
	c.observe(domain.TabInfo{ID: "A", URL: "https://facebook.com/", Title: "Facebook"}, domain.StageLoading)

	require.Eventually(t, func() bool { return len(svc.navigations()) == 1 }, time.Second, 5*time.Millisecond)
	ev := svc.navigations()[0]
	assert.Equal(t, domain.TabID("A"), ev.TabID)
	assert.Equal(t, "https://facebook.com/", ev.URL)
	assert.Equal(t, domain.StageLoading, ev.Stage)
}

func TestPoller_ReportsClientSideURLChange(t *testing.T) {
	page := &fakePage{url: "https://example.com/"}
	c, svc := newTestController(t, map[domain.TabID]*fakePage{"A": page})

	c.observe(domain.TabInfo{ID: "A", URL: "https://example.com/"}, domain.StageComplete)
	require.Eventually(t, func() bool { return len(svc.navigations()) == 1 }, time.Second, 5*time.Millisecond)

	page.setURL("https://example.com/watch/1")
	require.Eventually(t, func() bool { return len(svc.navigations()) == 2 }, time.Second, 5*time.Millisecond)
	ev := svc.navigations()[1]
	assert.Equal(t, domain.StageURLChanged, ev.Stage)
	assert.Equal(t, "https://example.com/watch/1", ev.URL)
}

func TestSendMessage_ShowsOverlayAndButtonsDriveIt(t *testing.T) {
	page := &fakePage{history: 1}
	c, svc := newTestController(t, map[domain.TabID]*fakePage{"A": page})

	resp, err := c.SendMessage(context.Background(), "A", domain.Request{
		Action:     domain.ActionShowWarning,
		BlockedURL: "https://reddit.com/r/x",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, page.rendered, 1)
	assert.Equal(t, "reddit.com", page.rendered[0].Host)

	page.click(actionContinue)
	ov, err := c.overlayFor("A")
	require.NoError(t, err)
	assert.Equal(t, overlay.StateDismissed, ov.State())

	svc.mu.Lock()
	assert.Equal(t, []domain.ActivityType{domain.ActivityWarningShown, domain.ActivityWarningOverridden}, svc.activity)
	assert.Equal(t, []string{"A https://reddit.com/r/x"}, svc.overrides)
	svc.mu.Unlock()

	_, err = c.SendMessage(context.Background(), "A", domain.Request{Action: domain.ActionShowWarning, BlockedURL: "https://reddit.com/"})
	require.NoError(t, err)
	page.click(actionEscape)
	assert.Equal(t, []string{overlay.BlankURL}, page.navTo)
}

func TestSendMessage_UnknownTab(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.SendMessage(context.Background(), "nope", domain.Request{Action: domain.ActionShowWarning})
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)

	resp := c.HandleOverlayRequest(context.Background(), "nope", domain.Request{Action: domain.ActionHideWarning})
	require.NotNil(t, resp.Handled)
	assert.False(t, *resp.Handled)
}

func TestTabsActions(t *testing.T) {
	page := &fakePage{}
	c, _ := newTestController(t, map[domain.TabID]*fakePage{"A": page})

	require.NoError(t, c.Navigate(context.Background(), "A", "http://127.0.0.1/blocked?blocked=x"))
	require.NoError(t, c.Close(context.Background(), "A"))
	assert.True(t, page.closed)
	assert.Equal(t, []string{"http://127.0.0.1/blocked?blocked=x"}, page.navTo)
	assert.Error(t, c.Close(context.Background(), "B"))
}

func TestActiveTab(t *testing.T) {
	hidden := &fakePage{}
	shown := &fakePage{visible: true}
	c, _ := newTestController(t, map[domain.TabID]*fakePage{"A": hidden, "B": shown})
	c.observe(domain.TabInfo{ID: "A", URL: "chrome://newtab", Title: "New Tab"}, domain.StageCreated)
	c.observe(domain.TabInfo{ID: "B", URL: "chrome://settings", Title: "Settings"}, domain.StageCreated)

	info, err := c.ActiveTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TabInfo{ID: "B", URL: "chrome://settings", Title: "Settings"}, info)
}

func TestForget_TellsService(t *testing.T) {
	c, svc := newTestController(t, map[domain.TabID]*fakePage{"A": {}})
	c.observe(domain.TabInfo{ID: "A", URL: "about:blank"}, domain.StageCreated)
	c.forget("A")
	c.forget("A")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, []domain.TabID{"A"}, svc.forgotten)
	assert.Zero(t, c.tabCount())
}

func TestOnTarget_IgnoresNonPages(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.onTarget(&proto.TargetTargetInfo{TargetID: "W", Type: "service_worker", URL: "https://x.com/sw.js"}, domain.StageCreated)
	c.onTarget(nil, domain.StageCreated)
	assert.Zero(t, c.tabCount())
}

// TestController_RealBrowser drives a local Chromium. It is skipped in short
// mode and when no browser binary can be found.
func TestController_RealBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chromium binary found")
	}

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>t</title></head><body>hi</body></html>"))
	}))
	defer site.Close()

	svc := &fakeService{}
	c := New(Options{Headless: true, Bin: bin, PollInterval: 50 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx, svc))
	defer func() { _ = c.Stop() }()

	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	page, err := b.Page(proto.TargetCreateTarget{URL: site.URL})
	require.NoError(t, err)
	tab := domain.TabID(page.TargetID)

	require.Eventually(t, func() bool {
		for _, ev := range svc.navigations() {
			if ev.TabID == tab && ev.URL == site.URL+"/" {
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)

	resp, err := c.SendMessage(ctx, tab, domain.Request{Action: domain.ActionShowWarning, BlockedURL: site.URL + "/"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	res, err := page.Eval(`(id) => !!document.getElementById(id)`, overlayElementID)
	require.NoError(t, err)
	assert.True(t, res.Value.Bool())

	require.NoError(t, c.Close(ctx, tab))
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.forgotten) > 0
	}, 10*time.Second, 50*time.Millisecond)
}

func TestOverlay_ResetWhenTabLeavesPage(t *testing.T) {
	page := &fakePage{url: "https://reddit.com/r/x"}
	c, _ := newTestController(t, map[domain.TabID]*fakePage{"A": page})
	c.observe(domain.TabInfo{ID: "A", URL: "https://reddit.com/r/x"}, domain.StageLoading)

	_, err := c.SendMessage(context.Background(), "A", domain.Request{Action: domain.ActionShowWarning, BlockedURL: "https://reddit.com/r/x"})
	require.NoError(t, err)
	ov, err := c.overlayFor("A")
	require.NoError(t, err)
	require.Equal(t, overlay.StateShown, ov.State())

	c.observe(domain.TabInfo{ID: "A", URL: "https://golang.org/"}, domain.StageLoading)
	assert.Equal(t, overlay.StateAbsent, ov.State())
}

func TestReload_ResetsOverlayAndChecksAgain(t *testing.T) {
	page := &fakePage{url: "https://reddit.com/"}
	c, svc := newTestController(t, map[domain.TabID]*fakePage{"A": page})
	c.observe(domain.TabInfo{ID: "A", URL: "https://reddit.com/"}, domain.StageLoading)
	require.Eventually(t, func() bool { return len(svc.navigations()) == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.SendMessage(context.Background(), "A", domain.Request{Action: domain.ActionShowWarning, BlockedURL: "https://reddit.com/"})
	require.NoError(t, err)
	ov, err := c.overlayFor("A")
	require.NoError(t, err)

	page.load("https://reddit.com/")
	assert.Equal(t, overlay.StateAbsent, ov.State())
	require.Eventually(t, func() bool { return len(svc.navigations()) == 2 }, time.Second, 5*time.Millisecond)
	ev := svc.navigations()[1]
	assert.Equal(t, "https://reddit.com/", ev.URL)
	assert.True(t, ev.Reload)

	page.load("https://golang.org/")
	require.Eventually(t, func() bool { return len(svc.navigations()) == 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, svc.navigations()[2].Reload)
}

func TestForget_ReleasesTabHooks(t *testing.T) {
	page := &fakePage{url: "https://example.com/"}
	c, svc := newTestController(t, map[domain.TabID]*fakePage{"A": page})
	c.observe(domain.TabInfo{ID: "A", URL: "https://example.com/"}, domain.StageLoading)
	require.Eventually(t, func() bool { return len(svc.navigations()) == 1 }, time.Second, 5*time.Millisecond)
	_, err := c.SendMessage(context.Background(), "A", domain.Request{Action: domain.ActionHideWarning})
	require.NoError(t, err)

	c.forget("A")
	require.Eventually(t, func() bool {
		unbound, stops := page.counts()
		return unbound == 1 && stops == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAttach_TabClosedWhileOpening(t *testing.T) {
	page := &fakePage{}
	c, _ := newTestController(t, nil)
	opening := make(chan struct{})
	proceed := make(chan struct{})
	c.open = func(domain.TabID) (tabPage, error) {
		close(opening)
		<-proceed
		return page, nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.attach("A")
		errc <- err
	}()
	<-opening
	c.forget("A")
	close(proceed)

	assert.ErrorIs(t, <-errc, errTabClosed)
	_, stops := page.counts()
	assert.Equal(t, 1, stops)
	assert.Zero(t, c.tabCount())
}
