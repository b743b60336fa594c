// Package breaker guards a trends.Upstream with a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/metrics"
	"github.com/JakeFAU/trends-gateway/internal/trends"
)

// Breaker defaults.
const (
	DefaultName         = "trends-upstream"
	DefaultMaxRequests  = 1
	DefaultInterval     = time.Minute
	DefaultTimeout      = 30 * time.Second
	DefaultMinRequests  = 5
	DefaultFailureRatio = 0.6
)

// Config tunes the breaker. Zero values select the defaults.
type Config struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// Upstream wraps another Upstream with a gobreaker circuit.
type Upstream struct {
	next   trends.Upstream
	cb     *gobreaker.CircuitBreaker[string]
	name   string
	logger *zap.Logger
}

// New wraps next. Only transient failures count against the circuit; fatal
// errors (bad requests) pass through without tripping it.
func New(next trends.Upstream, cfg Config, logger *zap.Logger) *Upstream {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)

	u := &Upstream{next: next, name: cfg.Name, logger: logger}
	metrics.SetBreakerState(cfg.Name, stateToFloat(gobreaker.StateClosed))

	u.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				logger.Warn("opening circuit",
					zap.Uint32("failures", counts.TotalFailures),
					zap.Float64("failure_ratio", ratio),
				)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, stateToFloat(to))
			metrics.ObserveBreakerTransition(name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !trends.Classify(err).Transient()
		},
	})
	return u
}

func withDefaults(cfg Config) Config {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = DefaultMinRequests
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = DefaultFailureRatio
	}
	return cfg
}

// Fetch runs the wrapped call through the breaker. While the circuit is open
// it fails fast with gobreaker.ErrOpenState. A markup payload counts as a
// failure and comes back alongside trends.ErrHTMLErrorPage.
func (u *Upstream) Fetch(ctx context.Context, query trends.CanonicalQuery) (string, error) {
	payload, err := u.cb.Execute(func() (string, error) {
		payload, err := u.next.Fetch(ctx, query)
		if err == nil && trends.LooksLikeMarkup(payload) {
			return payload, trends.ErrHTMLErrorPage
		}
		return payload, err
	})
	switch {
	case err == nil:
		metrics.ObserveUpstreamRequest(u.name, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ObserveUpstreamRequest(u.name, "rejected")
		u.logger.Warn("upstream call rejected", zap.String("breaker", u.name), zap.Error(err))
	default:
		metrics.ObserveUpstreamRequest(u.name, "failure")
	}
	return payload, err
}

// State reports the current circuit state.
func (u *Upstream) State() gobreaker.State {
	return u.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
