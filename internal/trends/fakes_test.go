package trends

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

type scriptedUpstream struct {
	mu      sync.Mutex
	steps   []step
	calls   int
	queries []CanonicalQuery
}

type step struct {
	payload string
	err     error
}

// Fetch replays steps in order and repeats the last one once exhausted.
func (u *scriptedUpstream) Fetch(_ context.Context, q CanonicalQuery) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queries = append(u.queries, q)
	idx := u.calls
	if idx >= len(u.steps) {
		idx = len(u.steps) - 1
	}
	u.calls++
	s := u.steps[idx]
	return s.payload, s.err
}

func (u *scriptedUpstream) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(evt events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages() []events.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type stubInspector struct {
	calls int
}

func (s *stubInspector) Inspect(string) PageVerdict {
	s.calls++
	return PageVerdict{Title: "Sorry", Captcha: true}
}

const successPayload = `{"default":{"timelineData":[{"time":"1700000000","value":[42]}]}}`
