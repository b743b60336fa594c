package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageQueryReceived))
	hub.Emit(sampleEvent(StageFallback))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies small batches are flushed on the ticker.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   20 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageQueryReceived))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlocking asserts Emit never blocks callers when the buffer is full.
func TestHubEmitNonBlocking(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageQueryReceived))
	hub.Emit(sampleEvent(StageQueryReceived))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	// The first drop is logged and resets the counter; the second is only counted.
	require.Equal(t, int64(1), hub.dropped.Load())
}

// TestHubDiscardsInvalidEvents ensures malformed events never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageQueryReceived})
	evt := sampleEvent(StageAttemptStart)
	evt.Attempt = 0
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestHubFlushOnClose ensures Close drains buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageFallback))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.closed)

	hub.Emit(sampleEvent(StageFallback))
	require.Len(t, sink.Batches(), 1)
}

// TestHubSinkErrorDoesNotStopDelivery keeps delivering to later sinks.
func TestHubSinkErrorDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	failing := newStubSink()
	failing.err = errors.New("boom")
	healthy := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, failing, healthy)

	hub.Emit(sampleEvent(StageRateLimited))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, healthy.Batches(), 1)
}

// TestHubRecoversPanickingSink keeps the hub alive when a sink panics.
func TestHubRecoversPanickingSink(t *testing.T) {
	t.Parallel()

	healthy := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, panicSink{}, healthy)

	hub.Emit(sampleEvent(StageGeoSubstituted))
	require.Eventually(t, func() bool {
		return len(healthy.Batches()) == 1
	}, time.Second, 5*time.Millisecond)

	hub.Emit(sampleEvent(StageFallback))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, healthy.Batches(), 2)
	require.True(t, healthy.closed)
}

type panicSink struct{}

func (panicSink) Consume(context.Context, []Event) error { panic("invalid label value") }

func (panicSink) Close(context.Context) error { return nil }

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{name: "valid", mutate: func(*Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.RequestID = [16]byte{} }, wantErr: "request id"},
		{name: "missing ts", mutate: func(e *Event) { e.TS = time.Time{} }, wantErr: "timestamp"},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "NOPE" }, wantErr: "unknown stage"},
		{name: "negative dur", mutate: func(e *Event) { e.Dur = -time.Second }, wantErr: "duration"},
		{
			name:    "attempt without number",
			mutate:  func(e *Event) { e.Stage = StageAttemptFailed; e.Attempt = 0 },
			wantErr: "attempt",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := sampleEvent(StageQueryReceived)
			tt.mutate(&evt)
			err := evt.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.err
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		RequestID: UUIDToBytes(uuid.New()),
		TS:        time.Now(),
		Stage:     stage,
		Geo:       "US",
		Keywords:  []string{"AI"},
		Attempt:   1,
	}
}
