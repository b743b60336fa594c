package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// ExhaustedPolicy selects what a caller sees once transient retries run out.
type ExhaustedPolicy string

// Exhausted-retry policies.
const (
	// PolicyDegrade answers with a synthetic timeline.
	PolicyDegrade ExhaustedPolicy = "degrade"
	// PolicySurface returns a RateLimitError for rate-limit and blocking
	// failures so the caller can back off; other transient failures degrade.
	PolicySurface ExhaustedPolicy = "surface"
)

// Assembler defaults.
const (
	DefaultRetryAfter   = 300 * time.Second
	DefaultFallbackDays = 30
)

const (
	metaStartDefault = "default"
	metaEndDefault   = "now"
	dateLayout       = "2006-01-02"
)

// AssemblerConfig controls envelope construction.
type AssemblerConfig struct {
	Policy       ExhaustedPolicy
	RetryAfter   time.Duration
	FallbackDays int
}

func (c AssemblerConfig) withDefaults() AssemblerConfig {
	if c.Policy == "" {
		c.Policy = PolicyDegrade
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = DefaultRetryAfter
	}
	if c.FallbackDays <= 0 {
		c.FallbackDays = DefaultFallbackDays
	}
	return c
}

// Assembler turns an Outcome into the caller-visible result.
type Assembler struct {
	cfg     AssemblerConfig
	clock   Clock
	emitter events.Emitter
	logger  *zap.Logger
}

// NewAssembler builds an Assembler. A nil clock uses UTC wall time.
func NewAssembler(cfg AssemblerConfig, clock Clock, emitter events.Emitter, logger *zap.Logger) *Assembler {
	if clock == nil {
		clock = utcClock{}
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{cfg: cfg.withDefaults(), clock: clock, emitter: emitter, logger: logger}
}

// Assemble returns the real envelope on success, a fallback envelope or a
// RateLimitError once transient retries are exhausted, and an UpstreamError
// for fatal failures.
func (a *Assembler) Assemble(ctx context.Context, outcome Outcome, query CanonicalQuery) (*Envelope, error) {
	now := a.clock.Now().UTC()
	if outcome.OK() {
		payload, err := decodePayload(outcome.Payload)
		if err != nil {
			a.logger.Error("upstream payload undecodable", zap.Error(err))
			a.emit(ctx, events.StageFatal, query, string(ReasonOther), err.Error())
			return nil, &UpstreamError{Message: err.Error()}
		}
		return a.envelope(payload, query, now, nil), nil
	}

	failure := *outcome.Failure
	if !failure.Transient() {
		a.logger.Error("fatal upstream failure", zap.String("error", failure.Message))
		a.emit(ctx, events.StageFatal, query, string(failure.Reason), failure.Message)
		return nil, &UpstreamError{Message: failure.Message}
	}

	if a.cfg.Policy == PolicySurface && failure.RateLimited() {
		a.logger.Warn("surfacing upstream rate limit",
			zap.String("reason", string(failure.Reason)),
			zap.Duration("retry_after", a.cfg.RetryAfter),
		)
		a.emit(ctx, events.StageRateLimited, query, string(failure.Reason), failure.Message)
		return nil, &RateLimitError{RetryAfter: a.cfg.RetryAfter, Message: failure.Message}
	}

	a.logger.Warn("retries exhausted, serving fallback data",
		zap.Strings("keywords", query.Keywords),
		zap.String("geo", query.Geo),
		zap.Int("attempts", outcome.Attempts),
		zap.String("error", failure.Message),
	)
	a.emit(ctx, events.StageFallback, query, string(failure.Reason), failure.Message)
	payload := map[string]any{
		"default": map[string]any{
			"timelineData": FallbackTimeline(now, a.cfg.FallbackDays, len(query.Keywords)),
		},
	}
	return a.envelope(payload, query, now, &failure), nil
}

func (a *Assembler) envelope(payload map[string]any, query CanonicalQuery, now time.Time, failure *Failure) *Envelope {
	meta := SearchMeta{
		Keywords:  append([]string(nil), query.Keywords...),
		Geo:       query.Geo,
		StartTime: formatBound(query.StartTime, metaStartDefault),
		EndTime:   formatBound(query.EndTime, metaEndDefault),
		Timestamp: now.Format(time.RFC3339),
	}
	if failure != nil {
		meta.Fallback = true
		meta.Error = failure.Message
	}
	return &Envelope{
		Payload:              payload,
		SearchedKeywordCount: len(query.Keywords),
		SearchMeta:           meta,
	}
}

func (a *Assembler) emit(ctx context.Context, stage events.Stage, query CanonicalQuery, reason, note string) {
	a.emitter.Emit(events.Event{
		RequestID: events.UUIDToBytes(RequestIDFromContext(ctx)),
		TS:        nowUTC(),
		Stage:     stage,
		Geo:       query.Geo,
		Keywords:  query.Keywords,
		Reason:    reason,
		Note:      note,
	})
}

// FallbackTimeline synthesizes one point per day for the days ending at now's
// calendar date, oldest first. Each point holds one value in [1,100] per
// keyword.
func FallbackTimeline(now time.Time, days, series int) []TimelinePoint {
	if series <= 0 {
		series = 1
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	points := make([]TimelinePoint, 0, days)
	for offset := days - 1; offset >= 0; offset-- {
		day := today.AddDate(0, 0, -offset)
		values := make([]int, series)
		hasData := make([]bool, series)
		for i := range values {
			values[i] = rand.IntN(100) + 1
			hasData[i] = true
		}
		points = append(points, TimelinePoint{
			Time:          strconv.FormatInt(day.Unix(), 10),
			FormattedTime: day.Format(dateLayout),
			Value:         values,
			HasData:       hasData,
		})
	}
	return points
}

func decodePayload(raw string) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode upstream payload: %w", err)
	}
	if obj, ok := decoded.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"data": decoded}, nil
}

func formatBound(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.UTC().Format(time.RFC3339)
}
