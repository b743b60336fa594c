package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported stages.
const (
	StageQueryReceived  Stage = "QUERY_RECEIVED"
	StageGeoSubstituted Stage = "GEO_SUBSTITUTED"
	StageAttemptStart   Stage = "ATTEMPT_START"
	StageAttemptFailed  Stage = "ATTEMPT_FAILED"
	StageUpstreamOK     Stage = "UPSTREAM_OK"
	StageFallback       Stage = "FALLBACK"
	StageRateLimited    Stage = "RATE_LIMITED"
	StageFatal          Stage = "FATAL"
)

// Event captures a single step of query handling.
type Event struct {
	// RequestID identifies the inbound request using the 16-byte UUID form.
	RequestID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Geo is the canonical geo, or the rejected value for GEO_SUBSTITUTED.
	Geo string
	// Keywords are the normalized keywords.
	Keywords []string
	// Attempt is the 1-based upstream attempt number for attempt stages.
	Attempt int
	// Reason carries the failure classification for failure stages.
	Reason string
	// Dur captures attempt latency or total request latency.
	Dur time.Duration
	// Note holds low-volume context such as the error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RequestID == [16]byte{} {
		return errors.New("request id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageQueryReceived, StageGeoSubstituted, StageUpstreamOK, StageFallback, StageRateLimited, StageFatal:
	case StageAttemptStart, StageAttemptFailed:
		if e.Attempt <= 0 {
			return fmt.Errorf("%s requires attempt > 0", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RequestUUID converts the binary request ID to uuid.UUID.
func (e Event) RequestUUID() uuid.UUID {
	return uuid.UUID(e.RequestID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
