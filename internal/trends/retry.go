package trends

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultMinDelay    = 1000 * time.Millisecond
	DefaultMaxDelay    = 3000 * time.Millisecond
)

const tracerName = "github.com/JakeFAU/trends-gateway/internal/trends"

// RetryConfig bounds the attempt budget and the inter-attempt jitter window
// [MinDelay, MaxDelay).
type RetryConfig struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MinDelay <= 0 && c.MaxDelay <= 0 {
		c.MinDelay, c.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}

// Orchestrator calls the upstream with bounded, jittered retries and
// classifies every failure.
type Orchestrator struct {
	upstream  Upstream
	cfg       RetryConfig
	sleeper   Sleeper
	inspector PageInspector
	emitter   events.Emitter
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOrchestrator wires an Orchestrator. Nil collaborators fall back to a
// timer sleeper, no page inspection, no events and a no-op logger.
func NewOrchestrator(
	upstream Upstream,
	cfg RetryConfig,
	sleeper Sleeper,
	inspector PageInspector,
	emitter events.Emitter,
	logger *zap.Logger,
) *Orchestrator {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		upstream:  upstream,
		cfg:       cfg.withDefaults(),
		sleeper:   sleeper,
		inspector: inspector,
		emitter:   emitter,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// FetchWithRetry runs the attempt loop. Success and fatal failures return
// immediately; transient failures are retried until the budget is spent.
func (o *Orchestrator) FetchWithRetry(ctx context.Context, query CanonicalQuery) Outcome {
	reqID := events.UUIDToBytes(RequestIDFromContext(ctx))
	var last Failure
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := o.backoff()
			o.logger.Info("retrying upstream",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", o.cfg.MaxAttempts),
				zap.Duration("delay", delay),
			)
			if err := o.sleeper.Sleep(ctx, delay); err != nil {
				o.logger.Warn("retry wait aborted", zap.Int("attempt", attempt), zap.Error(err))
				failure := last
				return Outcome{Failure: &failure, Attempts: attempt - 1}
			}
		}

		o.emitter.Emit(events.Event{
			RequestID: reqID,
			TS:        nowUTC(),
			Stage:     events.StageAttemptStart,
			Geo:       query.Geo,
			Keywords:  query.Keywords,
			Attempt:   attempt,
		})
		start := time.Now()
		payload, failure := o.attempt(ctx, query, attempt)
		elapsed := time.Since(start)
		if failure == nil {
			o.logger.Debug("upstream attempt succeeded", zap.Int("attempt", attempt), zap.Duration("dur", elapsed))
			o.emitter.Emit(events.Event{
				RequestID: reqID,
				TS:        nowUTC(),
				Stage:     events.StageUpstreamOK,
				Geo:       query.Geo,
				Keywords:  query.Keywords,
				Attempt:   attempt,
				Dur:       elapsed,
			})
			return Outcome{Payload: payload, Attempts: attempt}
		}

		last = *failure
		o.logger.Warn("upstream attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", string(failure.Kind)),
			zap.String("reason", string(failure.Reason)),
			zap.String("error", failure.Message),
			zap.Duration("dur", elapsed),
		)
		o.emitter.Emit(events.Event{
			RequestID: reqID,
			TS:        nowUTC(),
			Stage:     events.StageAttemptFailed,
			Geo:       query.Geo,
			Keywords:  query.Keywords,
			Attempt:   attempt,
			Reason:    string(failure.Reason),
			Dur:       elapsed,
			Note:      failure.Message,
		})
		if !failure.Transient() {
			return Outcome{Failure: failure, Attempts: attempt}
		}
	}
	failure := last
	return Outcome{Failure: &failure, Attempts: o.cfg.MaxAttempts}
}

func (o *Orchestrator) attempt(ctx context.Context, query CanonicalQuery, attempt int) (string, *Failure) {
	ctx, span := o.tracer.Start(ctx, "trends.upstream.attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("geo", query.Geo),
		attribute.StringSlice("keywords", query.Keywords),
	))
	defer span.End()

	payload, err := o.upstream.Fetch(ctx, query)
	if (err == nil || errors.Is(err, ErrHTMLErrorPage)) && LooksLikeMarkup(payload) {
		o.describePage(payload, attempt)
		err = ErrHTMLErrorPage
	}
	if err != nil {
		failure := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, failure.Message)
		span.SetAttributes(
			attribute.String("failure.kind", string(failure.Kind)),
			attribute.String("failure.reason", string(failure.Reason)),
		)
		return "", &failure
	}
	span.SetAttributes(attribute.Int("payload.bytes", len(payload)))
	return payload, nil
}

func (o *Orchestrator) describePage(payload string, attempt int) {
	if o.inspector == nil {
		return
	}
	verdict := o.inspector.Inspect(payload)
	o.logger.Warn("upstream returned markup instead of data",
		zap.Int("attempt", attempt),
		zap.String("title", verdict.Title),
		zap.Bool("captcha", verdict.Captcha),
		zap.Int("bytes", len(payload)),
	)
}

// backoff draws a delay uniformly from [MinDelay, MaxDelay).
func (o *Orchestrator) backoff() time.Duration {
	return o.cfg.MinDelay + randomJitter(o.cfg.MaxDelay-o.cfg.MinDelay)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// LooksLikeMarkup reports whether an upstream payload is an HTML page rather
// than the JSON body.
func LooksLikeMarkup(payload string) bool {
	return strings.HasPrefix(strings.TrimSpace(payload), "<")
}
