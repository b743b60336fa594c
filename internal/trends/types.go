package trends

import (
	"strings"
	"time"
)

// KeywordParam is the undecoded keyword parameter: a single string, a
// sequence of strings, or absent (the zero value).
type KeywordParam struct {
	values []string
	list   bool
}

// KeywordText wraps a single keyword string.
func KeywordText(s string) KeywordParam {
	return KeywordParam{values: []string{s}}
}

// KeywordList wraps an already-split keyword sequence.
func KeywordList(values ...string) KeywordParam {
	return KeywordParam{values: append([]string(nil), values...), list: true}
}

// IsList reports whether the parameter arrived as a sequence.
func (p KeywordParam) IsList() bool { return p.list }

// Absent reports whether no keyword was supplied.
func (p KeywordParam) Absent() bool { return len(p.values) == 0 }

// String renders the parameter the way it was received.
func (p KeywordParam) String() string {
	if p.list {
		return "[" + strings.Join(p.values, ", ") + "]"
	}
	if len(p.values) == 0 {
		return ""
	}
	return p.values[0]
}

// RawQuery is the untyped per-request input.
type RawQuery struct {
	Keyword   KeywordParam
	Geo       string
	StartTime string
	EndTime   string
}

// CanonicalQuery is the normalized, validated form of a request. Keywords is
// never empty and Geo is always a member of the allow-list.
type CanonicalQuery struct {
	Keywords  []string
	Geo       string
	StartTime *time.Time
	EndTime   *time.Time
}

// FailureKind separates retryable upstream failures from terminal ones.
type FailureKind string

// Failure kinds.
const (
	KindTransient FailureKind = "transient"
	KindFatal     FailureKind = "fatal"
)

// FailureReason records which classification rule matched.
type FailureReason string

// Failure reasons.
const (
	ReasonRateLimited FailureReason = "rate_limited"
	ReasonBlocked     FailureReason = "blocked"
	ReasonCaptcha     FailureReason = "captcha"
	ReasonHTMLPage    FailureReason = "html_page"
	ReasonUnavailable FailureReason = "unavailable"
	ReasonOther       FailureReason = "other"
)

// Failure is a classified upstream error.
type Failure struct {
	Kind    FailureKind
	Reason  FailureReason
	Message string
}

// Transient reports whether the failure is eligible for retry.
func (f Failure) Transient() bool { return f.Kind == KindTransient }

// RateLimited reports whether the failure is rate-limit or blocking in nature,
// as opposed to a generic transient error.
func (f Failure) RateLimited() bool {
	switch f.Reason {
	case ReasonRateLimited, ReasonBlocked, ReasonCaptcha, ReasonHTMLPage:
		return true
	default:
		return false
	}
}

// Outcome is the terminal result of FetchWithRetry: either a payload or a
// classified failure.
type Outcome struct {
	Payload  string
	Failure  *Failure
	Attempts int
}

// OK reports whether the outcome carries a payload.
func (o Outcome) OK() bool { return o.Failure == nil }

// SearchMeta is attached to every envelope.
type SearchMeta struct {
	Keywords  []string `json:"keywords"`
	Geo       string   `json:"geo"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Timestamp string   `json:"timestamp"`
	Fallback  bool     `json:"fallback"`
	Error     string   `json:"error,omitempty"`
}

// TimelinePoint is one day of the synthetic fallback series.
type TimelinePoint struct {
	Time          string `json:"time"`
	FormattedTime string `json:"formattedTime"`
	Value         []int  `json:"value"`
	HasData       []bool `json:"hasData"`
}

// KeywordDiagnostic pairs a normalizer input with its output.
type KeywordDiagnostic struct {
	Input  any      `json:"input"`
	Output []string `json:"output"`
}
