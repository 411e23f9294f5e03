package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel=info, got %q", cfg.LogLevel)
	}
	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("expected ListenAddr=127.0.0.1:8787, got %q", cfg.ListenAddr)
	}
	if cfg.Method != "" {
		t.Errorf("expected Method to be empty, got %q", cfg.Method)
	}
	if !cfg.Browser.Enabled {
		t.Errorf("expected Browser.Enabled=true")
	}
	if cfg.Browser.PollInterval != time.Second {
		t.Errorf("expected Browser.PollInterval=1s, got %v", cfg.Browser.PollInterval)
	}
	if cfg.DedupWindow != 2*time.Second {
		t.Errorf("expected DedupWindow=2s, got %v", cfg.DedupWindow)
	}
	if cfg.OverrideTTL != 10*time.Minute {
		t.Errorf("expected OverrideTTL=10m, got %v", cfg.OverrideTTL)
	}
	if cfg.DecisionCacheSize != 1000 {
		t.Errorf("expected DecisionCacheSize=1000, got %d", cfg.DecisionCacheSize)
	}
	if len(cfg.ExcludedPrefixes) == 0 || cfg.ExcludedPrefixes[0] != "chrome://" {
		t.Errorf("expected default excluded prefixes, got %v", cfg.ExcludedPrefixes)
	}
	if got := cfg.Interstitial(); got != "http://127.0.0.1:8787/blocked" {
		t.Errorf("expected derived interstitial URL, got %q", got)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("DONTVISIT_ENV", "dev")
	t.Setenv("DONTVISIT_LOG_LEVEL", "debug")
	t.Setenv("DONTVISIT_DB_PATH", "/tmp/dv.db")
	t.Setenv("DONTVISIT_LISTEN_ADDR", ":9000")
	t.Setenv("DONTVISIT_METHOD", "Warning")
	t.Setenv("DONTVISIT_BROWSER_ENABLED", "false")
	t.Setenv("DONTVISIT_BROWSER_URL", "http://127.0.0.1:9222")
	t.Setenv("DONTVISIT_BROWSER_HEADLESS", "true")
	t.Setenv("DONTVISIT_BROWSER_POLL_INTERVAL", "250ms")
	t.Setenv("DONTVISIT_DEDUP_WINDOW", "-1s")
	t.Setenv("DONTVISIT_OVERRIDE_TTL", "1h")
	t.Setenv("DONTVISIT_NOTIFY_RATE", "-1")
	t.Setenv("DONTVISIT_EXCLUDED_PREFIXES", "chrome://, file://")
	t.Setenv("DONTVISIT_ALLOWED_ORIGINS", "chrome-extension://abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %q", cfg.LogLevel)
	}
	if cfg.DBPath != "/tmp/dv.db" {
		t.Errorf("expected DBPath=/tmp/dv.db, got %q", cfg.DBPath)
	}
	if cfg.Method != "Warning" {
		t.Errorf("expected Method=Warning, got %q", cfg.Method)
	}
	if cfg.Browser.Enabled {
		t.Errorf("expected Browser.Enabled=false")
	}
	if !cfg.Browser.Headless {
		t.Errorf("expected Browser.Headless=true")
	}
	if cfg.Browser.URL != "http://127.0.0.1:9222" {
		t.Errorf("expected Browser.URL override, got %q", cfg.Browser.URL)
	}
	if cfg.Browser.PollInterval != 250*time.Millisecond {
		t.Errorf("expected Browser.PollInterval=250ms, got %v", cfg.Browser.PollInterval)
	}
	if cfg.DedupWindow != -time.Second {
		t.Errorf("expected DedupWindow=-1s, got %v", cfg.DedupWindow)
	}
	if cfg.OverrideTTL != time.Hour {
		t.Errorf("expected OverrideTTL=1h, got %v", cfg.OverrideTTL)
	}
	if cfg.NotifyRate != -1 {
		t.Errorf("expected NotifyRate=-1, got %v", cfg.NotifyRate)
	}
	want := []string{"chrome://", "file://"}
	if len(cfg.ExcludedPrefixes) != len(want) {
		t.Fatalf("expected ExcludedPrefixes %v, got %v", want, cfg.ExcludedPrefixes)
	}
	for i, v := range want {
		if cfg.ExcludedPrefixes[i] != v {
			t.Errorf("expected ExcludedPrefixes[%d]=%q, got %q", i, v, cfg.ExcludedPrefixes[i])
		}
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "chrome-extension://abc" {
		t.Errorf("expected AllowedOrigins=[chrome-extension://abc], got %v", cfg.AllowedOrigins)
	}
	if got := cfg.Interstitial(); got != "http://127.0.0.1:9000/blocked" {
		t.Errorf("expected interstitial on loopback, got %q", got)
	}
}

func TestInterstitial_Explicit(t *testing.T) {
	cfg := AppConfig{ListenAddr: "127.0.0.1:1", InterstitialURL: "https://block.example/page"}
	if got := cfg.Interstitial(); got != "https://block.example/page" {
		t.Errorf("expected explicit interstitial URL, got %q", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, field string
	}{
		{"env", "DONTVISIT_ENV", "staging", "Env"},
		{"log level", "DONTVISIT_LOG_LEVEL", "verbose", "LogLevel"},
		{"method", "DONTVISIT_METHOD", "explode", "Method"},
		{"listen addr", "DONTVISIT_LISTEN_ADDR", "localhost", "ListenAddr"},
		{"listen port", "DONTVISIT_LISTEN_ADDR", "127.0.0.1:99999", "ListenAddr"},
		{"override ttl", "DONTVISIT_OVERRIDE_TTL", "0s", "OverrideTTL"},
		{"cache size", "DONTVISIT_DECISION_CACHE_SIZE", "0", "DecisionCacheSize"},
		{"browser url", "DONTVISIT_BROWSER_URL", "not a url", "URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("DONTVISIT_DEDUP_WINDOW", "soon")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "unmarshalling") {
		t.Fatalf("expected unmarshal error, got %v", err)
	}
}

func TestLoad_WhenDefaultLoaderFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("boom") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error loading default config") {
		t.Fatalf("expected default loader error, got %v", err)
	}
}

func TestLoad_WhenEnvLoaderFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("boom") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error loading env") {
		t.Fatalf("expected env loader error, got %v", err)
	}
}

func TestLoad_WhenRegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("boom") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error registering validation") {
		t.Fatalf("expected registration error, got %v", err)
	}
}
