// Package trends normalizes search queries, fetches interest-over-time data
// from a flaky upstream with jittered retries, and degrades to a synthetic
// timeline when the upstream stays unavailable.
package trends

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// Config is the explicit gateway configuration.
type Config struct {
	AllowedGeos    []string
	DefaultGeo     string
	DefaultKeyword string
	Retry          RetryConfig
	Assembler      AssemblerConfig
}

// Deps are the gateway's collaborators. Only Upstream is required.
type Deps struct {
	Upstream  Upstream
	Sleeper   Sleeper
	Inspector PageInspector
	Clock     Clock
	Emitter   events.Emitter
	Logger    *zap.Logger
}

// Gateway composes the normalizer, geo validator, orchestrator and assembler.
type Gateway struct {
	defaultKeyword string
	geo            *GeoValidator
	orchestrator   *Orchestrator
	assembler      *Assembler
	emitter        events.Emitter
	logger         *zap.Logger
}

// New builds a Gateway from cfg and deps.
func New(cfg Config, deps Deps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}
	defaultKeyword := strings.TrimSpace(cfg.DefaultKeyword)
	if defaultKeyword == "" {
		defaultKeyword = DefaultKeyword
	}
	return &Gateway{
		defaultKeyword: defaultKeyword,
		geo:            NewGeoValidator(cfg.AllowedGeos, cfg.DefaultGeo, logger.Named("geo"), emitter),
		orchestrator: NewOrchestrator(
			deps.Upstream,
			cfg.Retry,
			deps.Sleeper,
			deps.Inspector,
			emitter,
			logger.Named("retry"),
		),
		assembler: NewAssembler(cfg.Assembler, deps.Clock, emitter, logger.Named("assembler")),
		emitter:   emitter,
		logger:    logger,
	}
}

// HandleQuery answers one query. The error, when non-nil, is either a
// *RateLimitError or an *UpstreamError.
func (g *Gateway) HandleQuery(ctx context.Context, raw RawQuery) (*Envelope, error) {
	ctx = ensureRequestID(ctx)
	reqID := RequestIDFromContext(ctx)
	g.logger.Info("query received",
		zap.String("request_id", reqID.String()),
		zap.String("keyword", raw.Keyword.String()),
		zap.Bool("keyword_list", raw.Keyword.IsList()),
		zap.String("geo", raw.Geo),
		zap.String("start_time", raw.StartTime),
		zap.String("end_time", raw.EndTime),
	)

	query := g.Canonicalize(ctx, raw)
	g.logger.Info("keywords normalized",
		zap.String("request_id", reqID.String()),
		zap.Strings("keywords", query.Keywords),
		zap.String("geo", query.Geo),
	)
	g.emitter.Emit(events.Event{
		RequestID: events.UUIDToBytes(reqID),
		TS:        nowUTC(),
		Stage:     events.StageQueryReceived,
		Geo:       query.Geo,
		Keywords:  query.Keywords,
	})

	outcome := g.orchestrator.FetchWithRetry(ctx, query)
	return g.assembler.Assemble(ctx, outcome, query)
}

// Canonicalize normalizes keywords, validates geo and parses the time bounds.
func (g *Gateway) Canonicalize(ctx context.Context, raw RawQuery) CanonicalQuery {
	return CanonicalQuery{
		Keywords:  normalizeKeywords(raw.Keyword, g.defaultKeyword),
		Geo:       g.geo.Validate(ctx, raw.Geo),
		StartTime: g.parseBound("startTime", raw.StartTime),
		EndTime:   g.parseBound("endTime", raw.EndTime),
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", dateLayout}

func (g *Gateway) parseBound(name, raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	g.logger.Warn("ignoring unparseable time bound", zap.String("param", name), zap.String("value", raw))
	return nil
}

func ensureRequestID(ctx context.Context) context.Context {
	if id, ok := ctx.Value(requestIDKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return ctx
	}
	return ContextWithRequestID(ctx, uuid.New())
}
