package trends

import (
	"context"
	"time"
)

// Upstream fetches raw interest-over-time data for a canonical query. Each
// call is independent and returns either the whole payload or an error.
type Upstream interface {
	Fetch(ctx context.Context, query CanonicalQuery) (string, error)
}

// UpstreamFunc adapts a function to Upstream.
type UpstreamFunc func(ctx context.Context, query CanonicalQuery) (string, error)

// Fetch calls f.
func (f UpstreamFunc) Fetch(ctx context.Context, query CanonicalQuery) (string, error) {
	return f(ctx, query)
}

// Sleeper suspends the calling goroutine between attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// PageInspector describes an HTML error page for logging.
type PageInspector interface {
	Inspect(body string) PageVerdict
}

// PageVerdict summarizes an HTML error page.
type PageVerdict struct {
	Title   string
	Captcha bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// TimerSleeper sleeps on a per-call timer so concurrent requests never wait on
// each other.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
