package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// PrometheusSink turns query events into counters and latency histograms.
type PrometheusSink struct {
	queries          prometheus.Counter
	geoSubstitutions prometheus.Counter
	attempts         *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	outcomes         *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trends_queries_total",
			Help: "Queries received by the gateway.",
		}),
		// The rejected geo is caller input, so it stays out of the label set.
		geoSubstitutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trends_geo_substitutions_total",
			Help: "Disallowed geo codes replaced by the default.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trends_upstream_attempts_total",
			Help: "Upstream attempts partitioned by result and failure reason.",
		}, []string{"result", "reason"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trends_upstream_attempt_duration_seconds",
			Help:    "Upstream attempt latency partitioned by result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trends_outcomes_total",
			Help: "Terminal query outcomes: upstream_ok, fallback, rate_limited or fatal.",
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.queries,
		s.geoSubstitutions,
		s.attempts,
		s.attemptDuration,
		s.outcomes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent
// use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt events.Event) {
	switch evt.Stage {
	case events.StageQueryReceived:
		s.queries.Inc()
	case events.StageGeoSubstituted:
		s.geoSubstitutions.Inc()
	case events.StageUpstreamOK:
		s.attempts.WithLabelValues("ok", "").Inc()
		s.observeAttempt(evt, "ok")
		s.outcomes.WithLabelValues("upstream_ok").Inc()
	case events.StageAttemptFailed:
		s.attempts.WithLabelValues("failed", evt.Reason).Inc()
		s.observeAttempt(evt, "failed")
	case events.StageFallback:
		s.outcomes.WithLabelValues("fallback").Inc()
	case events.StageRateLimited:
		s.outcomes.WithLabelValues("rate_limited").Inc()
	case events.StageFatal:
		s.outcomes.WithLabelValues("fatal").Inc()
	}
}

func (s *PrometheusSink) observeAttempt(evt events.Event, result string) {
	if evt.Dur > 0 {
		s.attemptDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
