package blocker

import (
	"context"
	"fmt"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// RecordActivity logs ev and keeps it in the bounded in-memory activity log.
func (s *Service) RecordActivity(_ context.Context, ev domain.ActivityEvent) {
	if ev.ID == "" {
		ev = domain.NewActivityEvent(ev.Type, ev.TabID, ev.URL, ev.Timestamp)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}
	s.activity.Add(ev.ID, ev)
	s.metrics.ObserveActivity(string(ev.Type))
	s.logger.Info(map[string]any{
		"id":   ev.ID,
		"type": string(ev.Type),
		"tab":  string(ev.TabID),
		"url":  ev.URL,
	}, "activity")
}

// LogActivity records a page-reported activity. Overrides reported by the
// page grant the same exemption as an overlay driven by this process.
func (s *Service) LogActivity(ctx context.Context, tab domain.TabID, report domain.ActivityReport) error {
	switch report.Type {
	case domain.ActivityWarningShown, domain.ActivityWarningOverridden, domain.ActivityBlockedPageViewed:
	default:
		return fmt.Errorf("%w: unknown activity type %q", domain.ErrMalformedInput, report.Type)
	}
	s.RecordActivity(ctx, domain.NewActivityEvent(report.Type, tab, report.URL, s.clock.Now()))
	if report.Type == domain.ActivityWarningOverridden && tab != "" {
		s.GrantOverride(tab, report.URL)
	}
	return nil
}

// RecentActivity returns logged events, oldest first.
func (s *Service) RecentActivity() []domain.ActivityEvent {
	keys := s.activity.Keys()
	out := make([]domain.ActivityEvent, 0, len(keys))
	for _, k := range keys {
		if ev, ok := s.activity.Peek(k); ok {
			out = append(out, ev)
		}
	}
	return out
}
