package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// Publisher delivers a payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, attrs map[string]string) (string, error)
}

// Notice is the published form of a degradation event.
type Notice struct {
	RequestID string    `json:"request_id"`
	Stage     string    `json:"stage"`
	Geo       string    `json:"geo"`
	Keywords  []string  `json:"keywords"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublisherSink forwards fallback, rate-limit and fatal events so downstream
// systems can alert on upstream degradation.
type PublisherSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink builds a sink that publishes to topic.
func NewPublisherSink(publisher Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes the degradation events in batch and skips the rest.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	var errs []error
	for _, evt := range batch {
		if !publishable(evt.Stage) {
			continue
		}
		notice := Notice{
			RequestID: evt.RequestUUID().String(),
			Stage:     string(evt.Stage),
			Geo:       evt.Geo,
			Keywords:  evt.Keywords,
			Reason:    evt.Reason,
			Error:     evt.Note,
			Timestamp: evt.TS.UTC(),
		}
		attrs := map[string]string{
			"stage":      notice.Stage,
			"request_id": notice.RequestID,
		}
		id, err := s.publisher.Publish(ctx, s.topic, notice, attrs)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s notice: %w", evt.Stage, err))
			continue
		}
		s.logger.Debug("published degradation notice",
			zap.String("message_id", id),
			zap.String("stage", notice.Stage),
			zap.String("request_id", notice.RequestID),
		)
	}
	return errors.Join(errs...)
}

func publishable(stage events.Stage) bool {
	switch stage {
	case events.StageFallback, events.StageRateLimited, events.StageFatal:
		return true
	default:
		return false
	}
}

// Close implements the Sink interface; the publisher's lifecycle belongs to
// its owner.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
