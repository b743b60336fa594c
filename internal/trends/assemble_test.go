package trends

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

var testNow = time.Date(2024, time.March, 15, 18, 30, 0, 0, time.UTC)

func TestAssemble_Success(t *testing.T) {
	t.Parallel()

	a := NewAssembler(AssemblerConfig{}, fixedClock{now: testNow}, nil, nil)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	query := CanonicalQuery{Keywords: []string{"ai", "ml"}, Geo: "GB", StartTime: &start}

	env, err := a.Assemble(context.Background(), Outcome{Payload: successPayload, Attempts: 1}, query)
	require.NoError(t, err)
	require.Equal(t, 2, env.SearchedKeywordCount)
	require.False(t, env.SearchMeta.Fallback)
	require.Empty(t, env.SearchMeta.Error)
	require.Equal(t, "2024-01-01T00:00:00Z", env.SearchMeta.StartTime)
	require.Equal(t, "now", env.SearchMeta.EndTime)
	require.Equal(t, "2024-03-15T18:30:00Z", env.SearchMeta.Timestamp)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "default")
	require.EqualValues(t, 2, decoded["searchedKeywordCount"])
	meta := decoded["searchMeta"].(map[string]any)
	require.Equal(t, "GB", meta["geo"])
	require.Equal(t, false, meta["fallback"])
	require.NotContains(t, meta, "error")
}

func TestAssemble_NonObjectPayload(t *testing.T) {
	t.Parallel()

	a := NewAssembler(AssemblerConfig{}, fixedClock{now: testNow}, nil, nil)
	env, err := a.Assemble(context.Background(), Outcome{Payload: `[1,2]`}, CanonicalQuery{Keywords: []string{"ai"}, Geo: "US"})
	require.NoError(t, err)
	require.Equal(t, []any{float64(1), float64(2)}, env.Payload["data"])
}

func TestAssemble_UndecodablePayloadIsFatal(t *testing.T) {
	t.Parallel()

	a := NewAssembler(AssemblerConfig{}, fixedClock{now: testNow}, nil, nil)
	env, err := a.Assemble(context.Background(), Outcome{Payload: `{"default":`}, CanonicalQuery{Keywords: []string{"ai"}, Geo: "US"})
	require.Nil(t, env)
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
}

func TestAssemble_FatalFailure(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	a := NewAssembler(AssemblerConfig{}, fixedClock{now: testNow}, emitter, nil)
	failure := &Failure{Kind: KindFatal, Reason: ReasonOther, Message: "boom"}

	env, err := a.Assemble(context.Background(), Outcome{Failure: failure, Attempts: 1}, CanonicalQuery{Keywords: []string{"ai"}, Geo: "US"})
	require.Nil(t, env)
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	require.Equal(t, "boom", upstreamErr.Error())
	require.Equal(t, []events.Stage{events.StageFatal}, emitter.Stages())
}

func TestAssemble_DegradeFallback(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	a := NewAssembler(AssemblerConfig{Policy: PolicyDegrade}, fixedClock{now: testNow}, emitter, nil)
	failure := &Failure{Kind: KindTransient, Reason: ReasonRateLimited, Message: "429"}
	query := CanonicalQuery{Keywords: []string{"a", "b", "c"}, Geo: "US"}

	env, err := a.Assemble(context.Background(), Outcome{Failure: failure, Attempts: 3}, query)
	require.NoError(t, err)
	require.True(t, env.SearchMeta.Fallback)
	require.Equal(t, "429", env.SearchMeta.Error)
	require.Equal(t, 3, env.SearchedKeywordCount)
	require.Equal(t, []events.Stage{events.StageFallback}, emitter.Stages())

	points := fallbackPoints(env)
	require.Len(t, points, DefaultFallbackDays)
	require.Equal(t, "2024-03-15", points[len(points)-1].FormattedTime)
	var prev time.Time
	for i, p := range points {
		day, err := time.Parse(dateLayout, p.FormattedTime)
		require.NoError(t, err)
		if i > 0 {
			require.Equal(t, prev.AddDate(0, 0, 1), day)
		}
		prev = day
		require.Len(t, p.Value, 3)
		require.Len(t, p.HasData, 3)
		for _, v := range p.Value {
			require.GreaterOrEqual(t, v, 1)
			require.LessOrEqual(t, v, 100)
		}
	}
}

func TestAssemble_SurfacePolicy(t *testing.T) {
	t.Parallel()

	a := NewAssembler(AssemblerConfig{Policy: PolicySurface}, fixedClock{now: testNow}, nil, nil)
	query := CanonicalQuery{Keywords: []string{"ai"}, Geo: "US"}

	limited := &Failure{Kind: KindTransient, Reason: ReasonCaptcha, Message: "captcha"}
	env, err := a.Assemble(context.Background(), Outcome{Failure: limited, Attempts: 3}, query)
	require.Nil(t, env)
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	require.Equal(t, DefaultRetryAfter, rlErr.RetryAfter)

	unavailable := &Failure{Kind: KindTransient, Reason: ReasonUnavailable, Message: "circuit breaker is open"}
	env, err = a.Assemble(context.Background(), Outcome{Failure: unavailable, Attempts: 3}, query)
	require.NoError(t, err)
	require.True(t, env.SearchMeta.Fallback)
}

func TestFallbackTimelineSeriesFloor(t *testing.T) {
	t.Parallel()

	points := FallbackTimeline(testNow, 7, 0)
	require.Len(t, points, 7)
	require.Len(t, points[0].Value, 1)
	require.Equal(t, "2024-03-09", points[0].FormattedTime)
	require.Equal(t, "1709942400", points[0].Time)
}

// fallbackPoints returns default.timelineData when the envelope carries the
// synthetic fallback series.
func fallbackPoints(env *Envelope) []TimelinePoint {
	def, ok := env.Payload["default"].(map[string]any)
	if !ok {
		return nil
	}
	points, _ := def["timelineData"].([]TimelinePoint)
	return points
}
