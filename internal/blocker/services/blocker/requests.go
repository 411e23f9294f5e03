package blocker

import (
	"context"
	"errors"

	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// Error texts returned to clients.
const (
	errTextDuplicate       = "Site already blocked"
	errTextMissing         = "Site not found in blocked list"
	errTextInvalidSite     = "Invalid website format"
	errTextInvalidMethod   = "Invalid blocking method"
	errTextNoTab           = "No active tab"
	errTextInvalidActivity = "Invalid activity type"
)

// ErrorText maps err onto the message clients see.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrDuplicateEntry):
		return errTextDuplicate
	case errors.Is(err, domain.ErrMissingEntry):
		return errTextMissing
	case errors.Is(err, domain.ErrMalformedInput):
		return errTextInvalidSite
	case errors.Is(err, domain.ErrStoreUnavailable):
		return domain.ErrTextGenericStoreError
	default:
		return err.Error()
	}
}

func (s *Service) fail(action string, err error) domain.Response {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		s.logger.Error(map[string]any{"action": action, "error": err}, "request failed")
	} else {
		s.logger.Debug(map[string]any{"action": action, "error": err}, "request rejected")
	}
	return domain.Failure(ErrorText(err))
}

// Handle answers one request of the vocabulary. It never panics and always
// returns a response; unknown actions yield "Unknown action".
func (s *Service) Handle(ctx context.Context, req domain.Request) domain.Response {
	switch req.Action {
	case domain.ActionAddBlockedSite:
		list, err := s.AddEntry(req.Site)
		if err != nil {
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Sites: list.Strings()}

	case domain.ActionRemoveBlockedSite:
		list, err := s.RemoveEntry(req.Site)
		if err != nil {
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Sites: list.Strings()}

	case domain.ActionGetBlockedSites:
		snap, err := s.store.Snapshot()
		if err != nil {
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Sites: snap.BlockList.Strings(), Enabled: &snap.Enabled, Method: snap.Method}

	case domain.ActionToggleBlocking:
		enabled, err := s.SetEnabled(req.Enabled)
		if err != nil {
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Enabled: &enabled}

	case domain.ActionGetStatistics:
		stats, err := s.store.Statistics()
		if err != nil {
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Statistics: &stats}

	case domain.ActionSetBlockingMethod:
		m, err := s.SetMethod(req.Method)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedInput) {
				s.logger.Debug(map[string]any{"method": req.Method}, "invalid blocking method")
				return domain.Failure(errTextInvalidMethod)
			}
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Method: m}

	case domain.ActionUpdateSettings:
		if req.Settings == nil {
			return domain.Failure("Missing settings")
		}
		if err := s.store.PutSettings(*req.Settings); err != nil {
			return s.fail(req.Action, err)
		}
		st := *req.Settings
		return domain.Response{Success: true, Settings: &st}

	case domain.ActionClearBlockedSites:
		if err := s.ClearEntries(); err != nil {
			return s.fail(req.Action, err)
		}
		return domain.Response{Success: true, Sites: []string{}}

	case domain.ActionLogActivity:
		if req.Data == nil {
			return domain.Failure("Missing activity data")
		}
		if err := s.LogActivity(ctx, req.TabID, *req.Data); err != nil {
			s.logger.Debug(map[string]any{"error": err}, "activity rejected")
			return domain.Failure(errTextInvalidActivity)
		}
		return domain.Response{Success: true}

	case domain.ActionURLChanged:
		u := req.NewURL
		if u == "" {
			u = req.URL
		}
		s.HandleNavigation(ctx, domain.NavigationEvent{TabID: req.TabID, URL: u, Stage: domain.StageURLChanged})
		return domain.Response{Success: true}

	case domain.ActionContentReady:
		s.logger.Debug(map[string]any{"tab": string(req.TabID), "url": req.URL}, "page agent ready")
		return domain.Response{Success: true}

	case domain.ActionGetCurrentTabInfo:
		if s.tabs == nil {
			return domain.Failure(errTextNoTab)
		}
		info, err := s.tabs.ActiveTab(ctx)
		if err != nil {
			s.logger.Debug(map[string]any{"error": err}, "active tab lookup failed")
			return domain.Failure(errTextNoTab)
		}
		return domain.Response{Success: true, Tab: &info}

	case domain.ActionShowWarning, domain.ActionHideWarning:
		if s.overlays == nil {
			return domain.HandledResponse(false)
		}
		return s.overlays.HandleOverlayRequest(ctx, req.TabID, req)

	default:
		s.logger.Debug(map[string]any{"action": req.Action}, "unknown action")
		return domain.Failure(domain.ErrTextUnknownAction)
	}
}

// SetEnabled stores the blocking toggle. A nil value flips the current one.
func (s *Service) SetEnabled(enabled *bool) (bool, error) {
	var next bool
	if enabled != nil {
		next = *enabled
	} else {
		snap, err := s.store.Snapshot()
		if err != nil {
			return false, err
		}
		next = !snap.Enabled
	}
	if err := s.store.SetEnabled(next); err != nil {
		return false, err
	}
	s.logger.Info(map[string]any{"enabled": next}, "blocking toggled")
	return next, nil
}

// SetMethod validates and stores the blocking method.
func (s *Service) SetMethod(raw string) (domain.BlockingMethod, error) {
	m, err := domain.ParseBlockingMethod(raw)
	if err != nil {
		return "", err
	}
	if err := s.store.SetMethod(m); err != nil {
		return "", err
	}
	s.logger.Info(map[string]any{"method": string(m)}, "blocking method changed")
	return m, nil
}

// Settings returns the stored settings.
func (s *Service) Settings() (domain.Settings, error) { return s.store.Settings() }

// UpdateSettings replaces the stored settings.
func (s *Service) UpdateSettings(st domain.Settings) error { return s.store.PutSettings(st) }

// Statistics returns the stored statistics.
func (s *Service) Statistics() (domain.Statistics, error) { return s.store.Statistics() }

// GroupByDomain folds per-host counts into their registrable domain, so
// www.reddit.com and old.reddit.com count as reddit.com.
func GroupByDomain(stats domain.Statistics) domain.Statistics {
	out := stats
	out.SitesBlocked = make(map[string]uint64, len(stats.SitesBlocked))
	for host, n := range stats.SitesBlocked {
		out.SitesBlocked[urlutil.ApexDomain(host)] += n
	}
	return out
}

// Snapshot returns list, toggle, method and settings together.
func (s *Service) Snapshot() (domain.Snapshot, error) { return s.store.Snapshot() }
