// Package httpapi exposes the blocker over HTTP: a JSON API mirroring the
// request vocabulary, the interstitial page that redirected tabs land on,
// the page-channel WebSocket endpoint and the metrics endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/repos/listfile"
	"github.com/haukened/dontvisit/internal/blocker/services/blocker"
)

// InterstitialPath is where redirected tabs land.
const InterstitialPath = "/blocked"

// maxBodyBytes bounds request bodies, including imported lists.
const maxBodyBytes = 4 << 20

// importContentTypes are accepted by /api/import. Every other write route
// takes JSON only, which a cross-site form cannot send without a preflight.
var importContentTypes = []string{
	"application/json",
	"text/plain",
	"text/yaml",
	"application/yaml",
	"application/x-yaml",
	"application/toml",
}

// Service is the part of *blocker.Service the API uses.
type Service interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
	HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.BlockOutcome, bool)
	Snapshot() (domain.Snapshot, error)
	Entries() (domain.BlockList, error)
	AddEntry(site string) (domain.BlockList, error)
	AddEntryFromURL(rawURL string) (domain.BlockList, error)
	RemoveEntry(site string) (domain.BlockList, error)
	ClearEntries() error
	ImportEntries(sites []string) (blocker.ImportResult, error)
	SetEnabled(enabled *bool) (bool, error)
	SetMethod(raw string) (domain.BlockingMethod, error)
	Settings() (domain.Settings, error)
	UpdateSettings(st domain.Settings) error
	Statistics() (domain.Statistics, error)
	RecordActivity(ctx context.Context, ev domain.ActivityEvent)
	RecentActivity() []domain.ActivityEvent
}

// Metrics instruments the router.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

// Options configures a Server. Service is required; PageChannel and
// Metrics are mounted only when set.
type Options struct {
	Addr    string
	Service Service
	// AllowedOrigins may call the API and page channel in addition to pages
	// served by the daemon itself.
	AllowedOrigins []string
	PageChannel http.Handler
	Metrics     Metrics
	Clock       clock.Clock
	Logger      log.Logger
}

// Server owns the chi router and the listening http.Server.
type Server struct {
	svc     Service
	origins []string
	lists   *listfile.Reader
	clock   clock.Clock
	logger  log.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		svc:     opts.Service,
		origins: opts.AllowedOrigins,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if s.clock == nil {
		s.clock = &clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}
	s.lists = listfile.NewReader(nil, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(InterstitialPath, s.handleInterstitial)
	if opts.PageChannel != nil {
		r.With(s.checkOrigin).Method(http.MethodGet, "/ws", opts.PageChannel)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.checkOrigin)

		r.Get("/entries", s.handleListEntries)
		r.Get("/state", s.handleState)
		r.Get("/settings", s.handleGetSettings)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/activity", s.handleActivity)
		r.Get("/export", s.handleExport)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/messages", s.handleMessage)
			r.Post("/navigation", s.handleNavigation)
			r.Post("/entries", s.handleAddEntry)
			r.Delete("/entries", s.handleDeleteEntries)
			r.Put("/enabled", s.handleSetEnabled)
			r.Put("/method", s.handleSetMethod)
			r.Put("/settings", s.handlePutSettings)
		})
		r.With(middleware.AllowContentType(importContentTypes...)).Post("/import", s.handleImport)
	})

	s.router = r
	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// checkOrigin rejects browser requests from pages the daemon did not serve.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !urlutil.OriginAllowed(r, s.origins) {
			s.logger.Warn(map[string]any{"origin": r.Header.Get("Origin"), "path": r.URL.Path}, "request from foreign origin rejected")
			writeJSON(w, http.StatusForbidden, domain.Failure("origin not allowed"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Stop is called. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.logger.Info(map[string]any{"addr": s.httpSrv.Addr}, "HTTP API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
