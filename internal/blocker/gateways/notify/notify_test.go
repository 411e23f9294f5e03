package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dontvisit/internal/blocker/services/dispatcher"
)

type countingMetrics struct {
	sent, dropped int
}

func (m *countingMetrics) ObserveNotification(sent bool) {
	if sent {
		m.sent++
	} else {
		m.dropped++
	}
}

func note(host string) dispatcher.Notification {
	return dispatcher.Notification{Title: "Site Blocked", Message: "Blocked: " + host, Host: host, URL: "https://" + host + "/"}
}

func TestNotify_DeliversUntilBurstExhausted(t *testing.T) {
	var got []dispatcher.Notification
	sink := SinkFunc(func(_ context.Context, n dispatcher.Notification) error {
		got = append(got, n)
		return nil
	})
	m := &countingMetrics{}
	n := New(Options{Rate: 0.0001, Burst: 2, Sink: sink, Metrics: m})

	assert.True(t, n.Notify(context.Background(), note("a.com")))
	assert.True(t, n.Notify(context.Background(), note("b.com")))
	assert.False(t, n.Notify(context.Background(), note("c.com")))

	require.Len(t, got, 2)
	assert.Equal(t, "Blocked: a.com", got[0].Message)
	assert.Equal(t, 2, m.sent)
	assert.Equal(t, 1, m.dropped)
}

func TestNotify_NegativeRateDisablesThrottling(t *testing.T) {
	calls := 0
	sink := SinkFunc(func(context.Context, dispatcher.Notification) error {
		calls++
		return nil
	})
	n := New(Options{Rate: -1, Burst: 1, Sink: sink})
	for i := 0; i < 50; i++ {
		require.True(t, n.Notify(context.Background(), note("a.com")))
	}
	assert.Equal(t, 50, calls)
}

func TestNotify_SinkFailureReportsDropped(t *testing.T) {
	m := &countingMetrics{}
	sink := SinkFunc(func(context.Context, dispatcher.Notification) error { return errors.New("no display") })
	n := New(Options{Rate: -1, Sink: sink, Metrics: m})

	assert.False(t, n.Notify(context.Background(), note("a.com")))
	assert.Equal(t, 0, m.sent)
	assert.Equal(t, 1, m.dropped)
}

func TestNew_DefaultsToLogSink(t *testing.T) {
	n := New(Options{})
	assert.NotNil(t, n.sink)
	assert.InDelta(t, DefaultRate, float64(n.limiter.Limit()), 1e-9)
	assert.Equal(t, DefaultBurst, n.limiter.Burst())
	assert.True(t, n.Notify(context.Background(), note("a.com")))
}
