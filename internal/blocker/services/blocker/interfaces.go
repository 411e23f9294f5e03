package blocker

import (
	"context"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// Matcher classifies one URL against the list.
type Matcher interface {
	Decide(rawURL string, list domain.BlockList, settings domain.Settings) domain.BlockDecision
}

// Dispatcher performs the blocking side effect.
type Dispatcher interface {
	ApplyBlock(ctx context.Context, tab domain.TabID, rawURL string, method domain.BlockingMethod, settings domain.Settings) domain.BlockOutcome
}

// OverlayRouter forwards page-side warning requests to the overlay of a tab.
type OverlayRouter interface {
	HandleOverlayRequest(ctx context.Context, tab domain.TabID, req domain.Request) domain.Response
}

// ActiveTabProvider reports the tab the user is looking at.
type ActiveTabProvider interface {
	ActiveTab(ctx context.Context) (domain.TabInfo, error)
}

// Metrics receives service-level observations.
type Metrics interface {
	ObserveNavigation(stage string)
	ObserveDecision(blocked bool, rule string)
	ObserveActivity(kind string)
	SetBlockListSize(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveNavigation(string)     {}
func (nopMetrics) ObserveDecision(bool, string) {}
func (nopMetrics) ObserveActivity(string)       {}
func (nopMetrics) SetBlockListSize(int)         {}
