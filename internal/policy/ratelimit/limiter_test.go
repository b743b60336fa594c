package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trends-gateway/internal/trends"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 leaves a ~100ms gap after the first token.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://trends.example.com/api"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://trends.example.com/other"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "https://trends.example.com"))
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.example.com")
	require.Error(t, err)
	require.Equal(t, trends.KindFatal, trends.Classify(err).Kind)
}

func TestUpstreamWrap(t *testing.T) {
	t.Parallel()

	calls := 0
	next := trends.UpstreamFunc(func(context.Context, trends.CanonicalQuery) (string, error) {
		calls++
		return "{}", nil
	})
	u := Wrap(next, New(Config{DefaultRPS: 100, DefaultBurst: 2}), "https://trends.example.com")

	for range 3 {
		payload, err := u.Fetch(context.Background(), trends.CanonicalQuery{Keywords: []string{"ai"}})
		require.NoError(t, err)
		require.Equal(t, "{}", payload)
	}
	require.Equal(t, 3, calls)
}
