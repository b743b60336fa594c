// Package detector describes the HTML pages an upstream serves in place of
// data, usually block or CAPTCHA interstitials.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/trends-gateway/internal/trends"
)

var defaultCaptchaMarkers = []string{
	"captcha",
	"unusual traffic",
	"not a robot",
	"/sorry/index",
}

var defaultCaptchaSelectors = []string{
	"#captcha-form",
	"form[action*='sorry']",
	"div.g-recaptcha",
	"iframe[src*='recaptcha']",
}

// Heuristic flags challenge pages using body markers and DOM selectors.
type Heuristic struct {
	markers   [][]byte
	selectors []string
}

// NewHeuristic creates a detector. Empty arguments select the built-in
// marker and selector sets.
func NewHeuristic(markers, selectors []string) *Heuristic {
	if len(markers) == 0 {
		markers = defaultCaptchaMarkers
	}
	if len(selectors) == 0 {
		selectors = defaultCaptchaSelectors
	}
	lower := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lower = append(lower, bytes.ToLower([]byte(m)))
	}
	return &Heuristic{markers: lower, selectors: selectors}
}

// Inspect extracts the page title and reports whether the page looks like a
// challenge.
func (h *Heuristic) Inspect(body string) trends.PageVerdict {
	if h == nil || strings.TrimSpace(body) == "" {
		return trends.PageVerdict{}
	}
	verdict := trends.PageVerdict{Captcha: h.containsMarker(body)}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return verdict
	}
	verdict.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if !verdict.Captcha {
		verdict.Captcha = h.matchesSelector(doc)
	}
	return verdict
}

func (h *Heuristic) containsMarker(body string) bool {
	lowerBody := bytes.ToLower([]byte(body))
	for _, m := range h.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

func (h *Heuristic) matchesSelector(doc *goquery.Document) bool {
	for _, sel := range h.selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
