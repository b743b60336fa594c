package trends

import (
	"fmt"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// DefaultKeyword is used when a request carries no usable keyword.
const DefaultKeyword = "AI"

// delimiters are tried in priority order after the bracketed form.
var delimiters = []string{",", "|", ";"}

// NormalizeKeywords parses p into an ordered, non-empty list of trimmed
// keywords, falling back to DefaultKeyword.
func NormalizeKeywords(p KeywordParam) []string {
	return normalizeKeywords(p, DefaultKeyword)
}

func normalizeKeywords(p KeywordParam, fallback string) []string {
	var out []string
	switch {
	case p.IsList():
		out = compact(p.values)
	case !p.Absent():
		out = compact(splitKeywordText(p.values[0]))
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}

func splitKeywordText(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		if parsed, err := parseBracketed(text); err == nil {
			return parsed
		}
		inner := strings.Split(text[1:len(text)-1], ",")
		for i, part := range inner {
			inner[i] = unquote(part)
		}
		return inner
	}
	for _, sep := range delimiters {
		if strings.Contains(text, sep) {
			return strings.Split(text, sep)
		}
	}
	return []string{text}
}

// parseBracketed decodes a JSON5 array of scalars.
func parseBracketed(text string) ([]string, error) {
	var items []any
	if err := json5.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("decode keyword list: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			out = append(out, v)
		case float64, bool, int64:
			out = append(out, fmt.Sprint(v))
		default:
			return nil, fmt.Errorf("keyword list element %T is not a scalar", item)
		}
	}
	return out, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return strings.Trim(s, `"'`)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
