package domain

import (
	"testing"
	"time"
)

func TestMatchRule_StringRoundTrip(t *testing.T) {
	for _, r := range []MatchRule{RuleNone, RuleSubstring, RuleExact, RuleSubdomain, RuleWildcard} {
		got, err := ParseMatchRule(r.String())
		if err != nil || got != r {
			t.Errorf("ParseMatchRule(%q) = %v, %v", r.String(), got, err)
		}
	}
	if MatchRule(42).String() != "MatchRule(42)" {
		t.Errorf("unexpected String for unknown rule: %q", MatchRule(42).String())
	}
	if _, err := ParseMatchRule("glob"); err == nil {
		t.Error("expected error for unknown rule name")
	}
}

func TestAllow(t *testing.T) {
	d := Allow()
	if d.IsBlocked() || d.Rule != RuleNone || d.Entry != "" {
		t.Errorf("Allow() = %+v", d)
	}
}

func TestStatistics_RecordAndClone(t *testing.T) {
	installed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStatistics(installed)
	s.Record("m.facebook.com")
	s.Record("m.facebook.com")
	s.Record("x.com")

	if s.TotalBlocked != 3 || s.SitesBlocked["m.facebook.com"] != 2 {
		t.Fatalf("unexpected stats: %+v", s)
	}

	c := s.Clone()
	c.Record("x.com")
	if s.SitesBlocked["x.com"] != 1 {
		t.Errorf("Clone shares the per-domain map")
	}

	var zero Statistics
	zero.Record("a.com")
	if zero.SitesBlocked["a.com"] != 1 {
		t.Errorf("Record on zero value did not allocate map")
	}
}

func TestNewActivityEvent(t *testing.T) {
	at := time.Now()
	a := NewActivityEvent(ActivityWarningShown, "tab-1", "https://x.com", at)
	b := NewActivityEvent(ActivityWarningShown, "tab-1", "https://x.com", at)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event ids must be unique and set: %q %q", a.ID, b.ID)
	}
	if a.Type != ActivityWarningShown || !a.Timestamp.Equal(at) {
		t.Errorf("unexpected event: %+v", a)
	}
}

func TestHandledResponse(t *testing.T) {
	r := HandledResponse(true)
	if r.Handled == nil || !*r.Handled || !r.Success {
		t.Errorf("HandledResponse(true) = %+v", r)
	}
	f := Failure(ErrTextUnknownAction)
	if f.Success || f.Error != "Unknown action" {
		t.Errorf("Failure = %+v", f)
	}
}
