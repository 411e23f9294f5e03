package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// Strategy names, as reported in BlockOutcome.
const (
	StrategyClose    = "close"
	StrategyRedirect = "redirect"
	StrategyWarning  = "warning"
)

var errNoTabs = errors.New("no tab controller configured")

// Strategy is one way of stopping a navigation.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, tab domain.TabID, rawURL string) error
}

// Plan returns the ordered strategy names tried for method. Unknown methods
// close the tab.
func Plan(method domain.BlockingMethod) []string {
	switch method {
	case domain.MethodRedirect:
		return []string{StrategyRedirect}
	case domain.MethodWarning:
		return []string{StrategyWarning, StrategyRedirect}
	default:
		return []string{StrategyClose}
	}
}

// InterstitialURL builds base?blocked=<rawURL>. Any query already on base is
// replaced.
func InterstitialURL(base, rawURL string) string {
	q := url.Values{"blocked": {rawURL}}.Encode()
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q
	}
	u.RawQuery = q
	u.Fragment = ""
	return u.String()
}

type closeStrategy struct{ tabs Tabs }

func (closeStrategy) Name() string { return StrategyClose }

func (s closeStrategy) Apply(ctx context.Context, tab domain.TabID, _ string) error {
	if s.tabs == nil {
		return errNoTabs
	}
	return s.tabs.Close(ctx, tab)
}

type redirectStrategy struct {
	tabs Tabs
	base string
}

func (redirectStrategy) Name() string { return StrategyRedirect }

func (s redirectStrategy) Apply(ctx context.Context, tab domain.TabID, rawURL string) error {
	if s.tabs == nil {
		return errNoTabs
	}
	return s.tabs.Navigate(ctx, tab, InterstitialURL(s.base, rawURL))
}

// warningStrategy asks the in-page agent to show the overlay. A transport
// error or a reply that does not confirm handling counts as failure.
type warningStrategy struct{ pages PageChannel }

func (warningStrategy) Name() string { return StrategyWarning }

func (s warningStrategy) Apply(ctx context.Context, tab domain.TabID, rawURL string) error {
	if s.pages == nil {
		return domain.ErrChannelUnavailable
	}
	resp, err := s.pages.SendMessage(ctx, tab, domain.Request{
		Action:     domain.ActionShowWarning,
		BlockedURL: rawURL,
	})
	if err != nil {
		if errors.Is(err, domain.ErrChannelUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: warning not handled", domain.ErrChannelUnavailable)
	}
	return nil
}
