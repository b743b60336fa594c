package trends

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// ContextWithRequestID tags ctx with the inbound request ID.
func ContextWithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID set by ContextWithRequestID, or
// a fresh random ID.
func RequestIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(requestIDKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return id
	}
	return uuid.New()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
