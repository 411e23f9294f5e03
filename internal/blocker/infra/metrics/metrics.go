// Package metrics owns the Prometheus collectors of the daemon. Collectors
// live on a private registry so tests can build as many instances as they
// like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dontvisit"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Blocking pipeline
	Navigations   *prometheus.CounterVec
	Decisions     *prometheus.CounterVec
	Actions       *prometheus.CounterVec
	Fallbacks     prometheus.Counter
	Notifications *prometheus.CounterVec
	Activity      *prometheus.CounterVec
	BlockListSize prometheus.Gauge

	// Transport
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PageChannels    prometheus.Gauge
}

// New registers every collector on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Navigations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Navigation events received, by lifecycle stage.",
		}, []string{"stage"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Matcher decisions, by result and matching rule.",
		}, []string{"result", "rule"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_actions_total",
			Help:      "Blocking strategies attempted, by strategy and status.",
		}, []string{"strategy", "status"}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_fallbacks_total",
			Help:      "Blocked navigations that needed a fallback strategy.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Block notifications, by status (sent or throttled).",
		}, []string{"status"}),
		Activity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Logged user activity, by type.",
		}, []string{"type"}),
		BlockListSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocklist_entries",
			Help:      "Entries on the block list.",
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		PageChannels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "page_channels_active",
			Help:      "Connected in-page agents.",
		}),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveNavigation(stage string) { m.Navigations.WithLabelValues(stage).Inc() }

func (m *Metrics) ObserveDecision(blocked bool, rule string) {
	result := "allowed"
	if blocked {
		result = "blocked"
	}
	m.Decisions.WithLabelValues(result, rule).Inc()
}

func (m *Metrics) ObserveAction(strategy string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.Actions.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) ObserveFallback() { m.Fallbacks.Inc() }

func (m *Metrics) ObserveNotification(sent bool) {
	status := "sent"
	if !sent {
		status = "throttled"
	}
	m.Notifications.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveActivity(kind string) { m.Activity.WithLabelValues(kind).Inc() }

func (m *Metrics) SetBlockListSize(n int) { m.BlockListSize.Set(float64(n)) }

func (m *Metrics) PageChannelOpened() { m.PageChannels.Inc() }
func (m *Metrics) PageChannelClosed() { m.PageChannels.Dec() }

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
