// Package dispatcher turns a positive match into a side effect on the
// navigation target: close the tab, redirect it to the interstitial, or ask
// the page to show the warning overlay.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// Options configures a Dispatcher. Tabs is required for close and redirect;
// Pages for warning. The rest are optional.
type Options struct {
	Tabs            Tabs
	Pages           PageChannel
	Stats           StatsRecorder
	Notifier        Notifier
	Metrics         Metrics
	InterstitialURL string
	Logger          log.Logger
}

// Dispatcher applies blocking strategies. Safe for concurrent use.
type Dispatcher struct {
	strategies map[string]Strategy
	stats      StatsRecorder
	notifier   Notifier
	metrics    Metrics
	logger     log.Logger
}

// New constructs a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		strategies: map[string]Strategy{
			StrategyClose:    closeStrategy{tabs: opts.Tabs},
			StrategyRedirect: redirectStrategy{tabs: opts.Tabs, base: opts.InterstitialURL},
			StrategyWarning:  warningStrategy{pages: opts.Pages},
		},
		stats:    opts.Stats,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	if d.logger == nil {
		d.logger = log.NewNoopLogger()
	}
	return d
}

// ApplyBlock blocks rawURL in tab. Statistics are incremented once, before
// any strategy runs. Strategies from Plan(method) are tried in order until
// one succeeds; if none does, the outcome carries the aggregated error.
// ApplyBlock never panics and never returns an error directly.
func (d *Dispatcher) ApplyBlock(ctx context.Context, tab domain.TabID, rawURL string, method domain.BlockingMethod, settings domain.Settings) domain.BlockOutcome {
	out := domain.BlockOutcome{TabID: tab, URL: rawURL, Requested: method}
	host, _ := urlutil.Hostname(rawURL)

	d.recordStats(host, rawURL)

	var errs *multierror.Error
	for i, name := range Plan(method) {
		s := d.strategies[name]
		out.Tried = append(out.Tried, name)
		err := s.Apply(ctx, tab, rawURL)
		d.metrics.ObserveAction(name, err == nil)
		if err == nil {
			out.Applied = name
			out.FellBack = i > 0
			break
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		d.logger.Warn(map[string]any{
			"tab":      string(tab),
			"url":      rawURL,
			"strategy": name,
			"error":    err,
		}, "blocking strategy failed")
	}

	switch {
	case !out.OK():
		out.Err = errs.ErrorOrNil()
		d.logger.Error(map[string]any{"tab": string(tab), "url": rawURL, "method": string(method), "error": out.Err}, "failed to apply blocking method")
	case out.FellBack:
		d.metrics.ObserveFallback()
		d.logger.Info(map[string]any{"tab": string(tab), "url": rawURL, "method": string(method), "applied": out.Applied}, "blocking fell back")
	default:
		d.logger.Info(map[string]any{"tab": string(tab), "url": rawURL, "applied": out.Applied}, "blocked navigation")
	}

	if settings.ShowNotifications {
		d.notify(ctx, host, rawURL)
	}
	return out
}

func (d *Dispatcher) recordStats(host, rawURL string) {
	if d.stats == nil {
		return
	}
	if err := d.stats.RecordBlock(host); err != nil {
		d.logger.Error(map[string]any{"url": rawURL, "error": err}, "failed to update statistics")
	}
}

func (d *Dispatcher) notify(ctx context.Context, host, rawURL string) {
	if d.notifier == nil {
		return
	}
	label := host
	if label == "" {
		label = rawURL
	}
	d.notifier.Notify(ctx, Notification{
		Title:   "Site blocked",
		Message: "Blocked: " + label,
		Host:    host,
		URL:     rawURL,
	})
}

type nopMetrics struct{}

func (nopMetrics) ObserveAction(string, bool) {}
func (nopMetrics) ObserveFallback()           {}
