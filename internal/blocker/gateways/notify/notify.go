// Package notify delivers "site blocked" notifications. Delivery is
// throttled with a token bucket so a burst of blocked navigations, such as a
// page that keeps reloading, does not flood the user.
package notify

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/services/dispatcher"
)

// Defaults for Options.
const (
	DefaultRate  = 0.5
	DefaultBurst = 3
)

// Sink shows a notification to the user.
type Sink interface {
	Deliver(ctx context.Context, n dispatcher.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n dispatcher.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n dispatcher.Notification) error { return f(ctx, n) }

// Metrics counts sent and throttled notifications.
type Metrics interface {
	ObserveNotification(sent bool)
}

// Options configures a Notifier. A zero Rate uses DefaultRate; a negative
// Rate disables throttling.
type Options struct {
	Rate    float64
	Burst   int
	Sink    Sink
	Metrics Metrics
	Logger  log.Logger
}

// Notifier implements dispatcher.Notifier.
type Notifier struct {
	limiter *rate.Limiter
	sink    Sink
	metrics Metrics
	logger  log.Logger
}

var _ dispatcher.Notifier = (*Notifier)(nil)

// New constructs a Notifier. Without a Sink, notifications are written to
// the logger.
func New(opts Options) *Notifier {
	n := &Notifier{sink: opts.Sink, metrics: opts.Metrics, logger: opts.Logger}
	if n.logger == nil {
		n.logger = log.NewNoopLogger()
	}
	if n.sink == nil {
		n.sink = LogSink(n.logger)
	}

	r, burst := opts.Rate, opts.Burst
	if r == 0 {
		r = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if r < 0 {
		n.limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		n.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	return n
}

// Notify delivers n unless the limiter is exhausted or the sink fails.
func (n *Notifier) Notify(ctx context.Context, note dispatcher.Notification) bool {
	if !n.limiter.Allow() {
		n.observe(false)
		n.logger.Debug(map[string]any{"host": note.Host}, "notification throttled")
		return false
	}
	if err := n.sink.Deliver(ctx, note); err != nil {
		n.observe(false)
		n.logger.Warn(map[string]any{"host": note.Host, "error": err}, "notification delivery failed")
		return false
	}
	n.observe(true)
	return true
}

func (n *Notifier) observe(sent bool) {
	if n.metrics != nil {
		n.metrics.ObserveNotification(sent)
	}
}

// LogSink writes notifications to logger at info level.
func LogSink(logger log.Logger) Sink {
	return SinkFunc(func(_ context.Context, note dispatcher.Notification) error {
		logger.Info(map[string]any{
			"title": note.Title,
			"host":  note.Host,
			"url":   note.URL,
		}, note.Message)
		return nil
	})
}
