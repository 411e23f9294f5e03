package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/config"
	"github.com/haukened/dontvisit/internal/blocker/gateways/browser"
	"github.com/haukened/dontvisit/internal/blocker/gateways/notify"
	"github.com/haukened/dontvisit/internal/blocker/gateways/pagechannel"
	"github.com/haukened/dontvisit/internal/blocker/gateways/transport/httpapi"
	"github.com/haukened/dontvisit/internal/blocker/infra/metrics"
	"github.com/haukened/dontvisit/internal/blocker/repos/decisioncache"
	"github.com/haukened/dontvisit/internal/blocker/repos/hostindex"
	"github.com/haukened/dontvisit/internal/blocker/repos/store"
	"github.com/haukened/dontvisit/internal/blocker/repos/store/bolt"
	"github.com/haukened/dontvisit/internal/blocker/services/blocker"
	"github.com/haukened/dontvisit/internal/blocker/services/dispatcher"
	"github.com/haukened/dontvisit/internal/blocker/services/matcher"
)

const (
	version = "0.1.0-dev"
	appName = "dontvisitd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the daemon.
type Application struct {
	config  *config.AppConfig
	store   store.Store
	service *blocker.Service
	hub     *pagechannel.Hub
	browser *browser.Controller
	server  *httpapi.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":      version,
		"env":          cfg.Env,
		"log_level":    cfg.LogLevel,
		"db":           cfg.DBPath,
		"listen":       cfg.ListenAddr,
		"interstitial": cfg.Interstitial(),
		"browser":      cfg.Browser.Enabled,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()
	reg := metrics.New()

	st, err := openStore(cfg.DBPath, clk)
	if err != nil {
		return nil, err
	}

	m, err := buildMatcher(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	hub := pagechannel.New(pagechannel.Options{
		Metrics:        reg,
		ReplyTimeout:   cfg.ReplyTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	// The in-page agent answers first; the DevTools overlay is the backup.
	var (
		tabs       dispatcher.Tabs
		pages      dispatcher.PageChannel = hub
		overlays   blocker.OverlayRouter
		activeTabs blocker.ActiveTabProvider
		ctrl       *browser.Controller
	)
	if cfg.Browser.Enabled {
		ctrl = browser.New(browser.Options{
			ControlURL:   cfg.Browser.URL,
			Headless:     cfg.Browser.Headless,
			Bin:          cfg.Browser.Bin,
			PollInterval: cfg.Browser.PollInterval,
			Clock:        clk,
			Logger:       logger,
		})
		tabs, overlays, activeTabs = ctrl, ctrl, ctrl
		pages = dispatcher.ChainChannels(hub, ctrl)
	}

	d := dispatcher.New(dispatcher.Options{
		Tabs:  tabs,
		Pages: pages,
		Stats: st,
		Notifier: notify.New(notify.Options{
			Rate:    cfg.NotifyRate,
			Burst:   cfg.NotifyBurst,
			Metrics: reg,
			Logger:  logger,
		}),
		Metrics:         reg,
		InterstitialURL: cfg.Interstitial(),
		Logger:          logger,
	})

	svc, err := blocker.New(blocker.Options{
		Store:        st,
		Matcher:      m,
		Dispatcher:   d,
		Overlays:     overlays,
		Tabs:         activeTabs,
		Metrics:      reg,
		Clock:        clk,
		Logger:       logger,
		DedupWindow:  cfg.DedupWindow,
		OverrideTTL:  cfg.OverrideTTL,
		ActivitySize: int(cfg.ActivitySize),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build blocker service: %w", err)
	}
	if err := svc.Init(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cfg.Method != "" {
		method, err := svc.SetMethod(cfg.Method)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to apply blocking method: %w", err)
		}
		log.Info(map[string]any{"method": string(method)}, "Blocking method set from configuration")
	}
	hub.SetRequestHandler(svc)

	server := httpapi.New(httpapi.Options{
		Addr:           cfg.ListenAddr,
		Service:        svc,
		AllowedOrigins: cfg.AllowedOrigins,
		PageChannel:    hub,
		Metrics:        reg,
		Clock:          clk,
		Logger:         logger,
	})

	return &Application{
		config:  cfg,
		store:   st,
		service: svc,
		hub:     hub,
		browser: ctrl,
		server:  server,
	}, nil
}

// openStore opens the bbolt file, creating its directory if needed.
func openStore(path string, clk clock.Clock) (store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := bolt.New(path, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	log.Info(map[string]any{"path": path}, "Store opened")
	return st, nil
}

// buildMatcher wires the decision cache and bloom prefilter. The
// interstitial is always excluded so a redirect can never loop.
func buildMatcher(cfg *config.AppConfig, logger log.Logger) (*matcher.Matcher, error) {
	cacheSize := cfg.DecisionCacheSize
	if cacheSize > uint(^uint(0)>>1) {
		return nil, fmt.Errorf("decision cache size too large: %d (max %d)", cacheSize, ^uint(0)>>1)
	}
	cache, err := decisioncache.New(int(cacheSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	excluded := append([]string{cfg.Interstitial()}, cfg.ExcludedPrefixes...)
	log.Info(map[string]any{
		"cache_size": cfg.DecisionCacheSize,
		"excluded":   excluded,
	}, "Matcher configured")

	return matcher.New(matcher.Options{
		Cache:            cache,
		BloomFactory:     hostindex.NewFactory(),
		ExcludedPrefixes: excluded,
		Logger:           logger,
	}), nil
}

// Run serves the HTTP API, follows the browser, and blocks until ctx is
// cancelled.
func (app *Application) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Start()
	}()

	if app.browser != nil {
		if err := app.browser.Start(ctx, app.service); err != nil {
			// The HTTP API and page channel still work without a browser.
			log.Warn(map[string]any{"error": err}, "Browser controller unavailable")
			app.browser = nil
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	log.Info(nil, "Shutdown initiated")
	if err := app.shutdown(); err != nil {
		runErr = multierror.Append(runErr, err).ErrorOrNil()
	}
	return runErr
}

// shutdown stops every component and returns all failures together.
func (app *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var errs *multierror.Error
	if err := app.server.Stop(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("http: %w", err))
	}
	if err := app.hub.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("page channel: %w", err))
	}
	if app.browser != nil {
		if err := app.browser.Stop(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("browser: %w", err))
		}
	}
	if err := app.store.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("store: %w", err))
	}
	if errs.ErrorOrNil() == nil {
		log.Info(nil, "Graceful shutdown completed")
	}
	return errs.ErrorOrNil()
}
