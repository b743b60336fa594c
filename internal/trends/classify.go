package trends

import (
	"errors"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"
)

type marker struct {
	reason  FailureReason
	needles []string
}

// transientMarkers are matched in order against the lower-cased error text.
var transientMarkers = []marker{
	{reason: ReasonRateLimited, needles: []string{"rate limit", "ratelimit", "too many requests", "status 429", "quota"}},
	{reason: ReasonCaptcha, needles: []string{"captcha"}},
	{reason: ReasonBlocked, needles: []string{"blocked", "unusual traffic", "access denied"}},
	{reason: ReasonHTMLPage, needles: []string{"html error page", "unexpected token <"}},
	{reason: ReasonUnavailable, needles: []string{"circuit breaker is open"}},
}

// Classify maps an upstream error to Transient or Fatal. Rate limiting,
// blocking, CAPTCHA challenges, disguised HTML pages and an open breaker are
// transient; everything else is fatal.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: KindFatal, Reason: ReasonOther, Message: "unknown upstream error"}
	}
	msg := err.Error()
	switch {
	case errors.Is(err, ErrHTMLErrorPage):
		return Failure{Kind: KindTransient, Reason: ReasonHTMLPage, Message: msg}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Failure{Kind: KindTransient, Reason: ReasonUnavailable, Message: msg}
	}
	lower := strings.ToLower(msg)
	for _, m := range transientMarkers {
		for _, needle := range m.needles {
			if strings.Contains(lower, needle) {
				return Failure{Kind: KindTransient, Reason: m.reason, Message: msg}
			}
		}
	}
	return Failure{Kind: KindFatal, Reason: ReasonOther, Message: msg}
}
