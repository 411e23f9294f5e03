package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies user-visible blocking events.
type ActivityType string

const (
	ActivityWarningShown      ActivityType = "warningShown"
	ActivityWarningOverridden ActivityType = "warningOverridden"
	ActivityBlockedPageViewed ActivityType = "blockedPageViewed"
)

// ActivityEvent is a single logged interaction.
type ActivityEvent struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	TabID     TabID        `json:"tabId,omitempty"`
	URL       string       `json:"url"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewActivityEvent stamps a fresh event id.
func NewActivityEvent(kind ActivityType, tab TabID, url string, at time.Time) ActivityEvent {
	return ActivityEvent{ID: uuid.NewString(), Type: kind, TabID: tab, URL: url, Timestamp: at}
}
