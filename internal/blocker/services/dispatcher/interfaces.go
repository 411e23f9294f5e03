package dispatcher

import (
	"context"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// Tabs controls navigation targets.
type Tabs interface {
	Close(ctx context.Context, tab domain.TabID) error
	Navigate(ctx context.Context, tab domain.TabID, url string) error
}

// PageChannel delivers a request to the in-page agent of a tab. An error
// means nobody answered.
type PageChannel interface {
	SendMessage(ctx context.Context, tab domain.TabID, req domain.Request) (domain.Response, error)
}

// StatsRecorder asks the store for one statistics increment.
type StatsRecorder interface {
	RecordBlock(host string) error
}

// Notification is a user-facing "site blocked" message.
type Notification struct {
	Title   string
	Message string
	Host    string
	URL     string
}

// Notifier delivers notifications. It reports false when the notification
// was dropped.
type Notifier interface {
	Notify(ctx context.Context, n Notification) bool
}

// Metrics receives strategy results.
type Metrics interface {
	ObserveAction(strategy string, ok bool)
	ObserveFallback()
}
