package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/haukened/dontvisit/internal/blocker/services/overlay"
)

const (
	overlayElementID = "dontvisit-warning-overlay"
	bindingName      = "__dontvisitOverlay"
)

// Button actions reported by the in-page overlay.
const (
	actionGoBack     = "goBack"
	actionContinue   = "continue"
	actionBackground = "background"
	actionEscape     = "escape"
)

// tabPage is everything the controller needs from one tab.
type tabPage interface {
	overlay.Page
	overlay.URLSource
	Close(ctx context.Context) error
	Visible(ctx context.Context) (bool, error)
	// Bind exposes the overlay button callback to the page.
	Bind(fn func(action string)) (unbind func() error, err error)
	// Navigated reports every new document in the main frame, reloads
	// included, until stop is called.
	Navigated(fn func(url string)) (stop func())
}

// rodPage drives a tab over CDP.
type rodPage struct {
	page *rod.Page
}

var _ tabPage = (*rodPage)(nil)

const renderJS = `(id, host, url, binding) => {
  const old = document.getElementById(id);
  if (old) old.remove();
  const send = (action) => { if (typeof window[binding] === "function") window[binding](action); };

  const backdrop = document.createElement("div");
  backdrop.id = id;
  backdrop.style.cssText = "position:fixed;inset:0;z-index:2147483647;background:rgba(0,0,0,.8);display:flex;align-items:center;justify-content:center;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif";

  const modal = document.createElement("div");
  modal.style.cssText = "background:#fff;border-radius:12px;padding:40px;max-width:500px;text-align:center;box-shadow:0 20px 40px rgba(0,0,0,.3)";

  const title = document.createElement("h1");
  title.textContent = "Site Blocked";
  title.style.cssText = "color:#dc3545;margin:0 0 16px;font-size:28px;font-weight:600";

  const text = document.createElement("p");
  text.textContent = "You are trying to visit " + host + ". This site is on your block list.";
  text.style.cssText = "color:#6c757d;margin:0 0 30px;line-height:1.6";
  text.title = url;

  const buttons = document.createElement("div");
  buttons.style.cssText = "display:flex;gap:12px;justify-content:center";
  const button = (label, color, action) => {
    const b = document.createElement("button");
    b.textContent = label;
    b.style.cssText = "padding:12px 24px;border:none;border-radius:6px;font-size:14px;font-weight:500;cursor:pointer;color:#fff;background:" + color;
    b.addEventListener("click", (e) => { e.stopPropagation(); send(action); });
    return b;
  };
  buttons.append(button("Go Back", "#28a745", "goBack"), button("Continue Anyway", "#dc3545", "continue"));

  modal.append(title, text, buttons);
  backdrop.append(modal);
  backdrop.addEventListener("click", (e) => { if (e.target === backdrop) send("background"); });

  if (window.__dontvisitKey) document.removeEventListener("keydown", window.__dontvisitKey, true);
  window.__dontvisitKey = (e) => { if (e.key === "Escape" && document.getElementById(id)) send("escape"); };
  document.addEventListener("keydown", window.__dontvisitKey, true);

  (document.body || document.documentElement).appendChild(backdrop);
  return true;
}`

const removeJS = `(id) => {
  const el = document.getElementById(id);
  if (el) el.remove();
  if (window.__dontvisitKey) {
    document.removeEventListener("keydown", window.__dontvisitKey, true);
    window.__dontvisitKey = null;
  }
  return true;
}`

func (p *rodPage) Render(ctx context.Context, v overlay.View) error {
	_, err := p.page.Context(ctx).Eval(renderJS, overlayElementID, v.Host, v.URL, bindingName)
	return err
}

func (p *rodPage) Remove(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(removeJS, overlayElementID)
	return err
}

func (p *rodPage) HistoryLength(ctx context.Context) (int, error) {
	res, err := p.page.Context(ctx).Eval(`() => window.history.length`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (p *rodPage) Back(ctx context.Context) error { return p.page.Context(ctx).NavigateBack() }

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

func (p *rodPage) CurrentURL(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Close(ctx context.Context) error { return p.page.Context(ctx).Close() }

func (p *rodPage) Visible(ctx context.Context) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.visibilityState === "visible"`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// Bind exposes bindingName on window. The callback runs off the CDP event
// goroutine since it drives the page again.
func (p *rodPage) Bind(fn func(action string)) (func() error, error) {
	stop, err := p.page.Expose(bindingName, func(arg gson.JSON) (interface{}, error) {
		action := arg.Str()
		go fn(action)
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expose overlay binding: %w", err)
	}
	return stop, nil
}

// Navigated follows Page.frameNavigated for the top-level frame. fn runs on
// the event goroutine and must not call back into the page.
func (p *rodPage) Navigated(fn func(url string)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	wait := p.page.Context(ctx).EachEvent(func(e *proto.PageFrameNavigated) {
		if e.Frame != nil && e.Frame.ParentID == "" {
			fn(e.Frame.URL)
		}
	})
	go wait()
	return cancel
}
