// Package config loads dontvisitd settings from DONTVISIT_* environment
// variables on top of built-in defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/dontvisit/internal/blocker/domain"
)

const envPrefix = "DONTVISIT_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// DBPath is the bbolt file holding the block list, toggle, method,
	// settings and statistics.
	DBPath string `koanf:"db_path" validate:"required"`

	// ListenAddr is the host:port of the HTTP API, page channel and
	// interstitial page.
	ListenAddr string `koanf:"listen_addr" validate:"required,listen_addr"`

	// InterstitialURL is where redirected tabs land. Empty derives it from
	// ListenAddr.
	InterstitialURL string `koanf:"interstitial_url" validate:"omitempty,url"`

	// Method, when set, replaces the stored blocking method at startup.
	Method string `koanf:"method" validate:"omitempty,blocking_method"`

	Browser BrowserConfig `koanf:"browser"`

	// DedupWindow suppresses repeated lifecycle events for one tab and URL.
	// Negative disables suppression.
	DedupWindow time.Duration `koanf:"dedup_window"`
	// OverrideTTL is how long "Continue Anyway" lasts.
	OverrideTTL time.Duration `koanf:"override_ttl" validate:"gt=0"`
	// ReplyTimeout bounds a page channel round trip.
	ReplyTimeout time.Duration `koanf:"reply_timeout" validate:"gt=0"`

	DecisionCacheSize uint `koanf:"decision_cache_size" validate:"required,gte=1"`
	ActivitySize      uint `koanf:"activity_size" validate:"required,gte=1"`

	// NotifyRate is notifications per second; negative disables limiting.
	NotifyRate  float64 `koanf:"notify_rate"`
	NotifyBurst int     `koanf:"notify_burst" validate:"gte=1"`

	// ExcludedPrefixes are URL prefixes never checked against the list. The
	// interstitial URL is always added.
	ExcludedPrefixes []string `koanf:"excluded_prefixes"`

	// AllowedOrigins may call the API and the page channel from a browser,
	// for example chrome-extension://<id>. Pages served by the daemon are
	// always allowed.
	AllowedOrigins []string `koanf:"allowed_origins" validate:"dive,required"`
}

// BrowserConfig controls the DevTools controller.
type BrowserConfig struct {
	Enabled bool `koanf:"enabled"`
	// URL of a running browser's DevTools endpoint. Empty launches one.
	URL          string        `koanf:"url" validate:"omitempty,url"`
	Bin          string        `koanf:"bin"`
	Headless     bool          `koanf:"headless"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:        "prod",
	LogLevel:   "info",
	DBPath:     "/var/lib/dontvisit/dontvisit.db",
	ListenAddr: "127.0.0.1:8787",
	Browser: BrowserConfig{
		Enabled:      true,
		Headless:     false,
		PollInterval: time.Second,
	},
	DedupWindow:       2 * time.Second,
	OverrideTTL:       10 * time.Minute,
	ReplyTimeout:      2 * time.Second,
	DecisionCacheSize: 1000,
	ActivitySize:      500,
	NotifyRate:        0.5,
	NotifyBurst:       3,
	ExcludedPrefixes:  []string{"chrome://", "chrome-extension://", "about:", "devtools://", "edge://"},
}

// Interstitial returns the configured interstitial URL, or the one served on
// ListenAddr.
func (c *AppConfig) Interstitial() string {
	if c.InterstitialURL != "" {
		return c.InterstitialURL
	}
	host, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return "http://" + c.ListenAddr + "/blocked"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return (&url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/blocked"}).String()
}

// validBlockingMethod accepts "close", "redirect" and "warning".
func validBlockingMethod(fl validator.FieldLevel) bool {
	_, err := domain.ParseBlockingMethod(fl.Field().String())
	return err == nil
}

// validListenAddr accepts host:port with an optional host.
func validListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

// envLoader loads DONTVISIT_* variables. DONTVISIT_BROWSER_URL becomes
// browser.url; list values may be comma or space separated. It can be
// replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			if rest, ok := strings.CutPrefix(key, "browser_"); ok {
				key = "browser." + rest
			}
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if key == "excluded_prefixes" || key == "allowed_origins" {
				return key, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom tags used by AppConfig.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("blocking_method", validBlockingMethod); err != nil {
		return err
	}
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
