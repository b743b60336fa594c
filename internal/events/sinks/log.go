package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// LogSink emits one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Degradation stages log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		level := zapcore.DebugLevel
		switch evt.Stage {
		case events.StageFallback, events.StageRateLimited, events.StageFatal:
			level = zapcore.WarnLevel
		}
		if ce := s.logger.Check(level, "trends event"); ce != nil {
			ce.Write(
				zap.String("request_id", evt.RequestUUID().String()),
				zap.String("stage", string(evt.Stage)),
				zap.String("geo", evt.Geo),
				zap.Strings("keywords", evt.Keywords),
				zap.Int("attempt", evt.Attempt),
				zap.String("reason", evt.Reason),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
