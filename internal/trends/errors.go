package trends

import (
	"errors"
	"fmt"
	"time"
)

// ErrHTMLErrorPage marks a 200 response whose body is a markup page rather
// than data.
var ErrHTMLErrorPage = errors.New("upstream returned an HTML error page")

// RateLimitError tells the caller to back off before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upstream rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
}

// UpstreamError carries a fatal upstream failure to the caller unchanged.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}
