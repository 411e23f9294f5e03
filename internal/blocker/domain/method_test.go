package domain

import "testing"

func TestParseBlockingMethod(t *testing.T) {
	cases := []struct {
		in      string
		want    BlockingMethod
		wantErr bool
	}{
		{"close", MethodClose, false},
		{" Redirect ", MethodRedirect, false},
		{"WARNING", MethodWarning, false},
		{"", "", true},
		{"nuke", "", true},
	}
	for _, tc := range cases {
		got, err := ParseBlockingMethod(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseBlockingMethod(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseBlockingMethod(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestBlockingMethod_DisplayName(t *testing.T) {
	if MethodWarning.DisplayName() != "Show Warning" {
		t.Errorf("DisplayName = %q", MethodWarning.DisplayName())
	}
	if BlockingMethod("custom").DisplayName() != "custom" {
		t.Errorf("unknown method should display its raw value")
	}
	if DefaultBlockingMethod != MethodClose {
		t.Errorf("default method = %q, want close", DefaultBlockingMethod)
	}
}

func TestLifecycleStage_Checked(t *testing.T) {
	for _, s := range []LifecycleStage{StageCreated, StageLoading, StageComplete, StageURLChanged} {
		if !s.Checked() {
			t.Errorf("%q should be checked", s)
		}
	}
	if LifecycleStage("unloaded").Checked() {
		t.Error("unknown stage should not be checked")
	}
}
