// Package collyupstream fetches interest-over-time payloads over HTTP using
// gocolly.
package collyupstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/trends-gateway/internal/trends"
)

// xssiPrefix guards trends-style JSON responses against script inclusion.
var xssiPrefix = []byte(")]}'")

const (
	defaultTimeout  = 15 * time.Second
	defaultLanguage = "en-US"
	defaultPath     = "/trends/api/widgetdata/multiline"
	timeLayout      = time.RFC3339
)

// Config controls the upstream endpoint and collector behavior.
type Config struct {
	BaseURL   string
	Path      string
	UserAgent string
	Language  string
	TZOffset  int
	Timeout   time.Duration
}

// Client implements trends.Upstream.
type Client struct {
	cfg           Config
	endpoint      *url.URL
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", cfg.BaseURL)
	}
	endpoint := base.JoinPath(cfg.Path)

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{cfg: cfg, endpoint: endpoint, baseCollector: c}, nil
}

// Fetch performs one GET for query and returns the body with any anti-XSSI
// prefix removed. Non-2xx responses are errors carrying the status text.
func (c *Client) Fetch(ctx context.Context, query trends.CanonicalQuery) (string, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	c.configureCollectorHooks(collector, &body, &fetchErr)

	if err := c.runCollector(ctx, collector, c.RequestURL(query), &fetchErr); err != nil {
		return "", err
	}
	return string(StripXSSI(body)), nil
}

// RequestURL renders the upstream URL for query.
func (c *Client) RequestURL(query trends.CanonicalQuery) string {
	u := *c.endpoint
	params := url.Values{}
	for _, kw := range query.Keywords {
		params.Add("keyword", kw)
	}
	params.Set("geo", query.Geo)
	params.Set("hl", c.cfg.Language)
	params.Set("tz", fmt.Sprint(c.cfg.TZOffset))
	if query.StartTime != nil {
		params.Set("startTime", query.StartTime.UTC().Format(timeLayout))
	}
	if query.EndTime != nil {
		params.Set("endTime", query.EndTime.UTC().Format(timeLayout))
	}
	u.RawQuery = params.Encode()
	return u.String()
}

func (c *Client) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("upstream status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = scrubURLError(err)
	})
}

// scrubURLError drops the request URL from transport errors. The URL carries
// caller keywords, which must not leak into the text Classify matches on.
func scrubURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("upstream %s request: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("upstream fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return fmt.Errorf("upstream visit failed: %w", scrubURLError(err))
		}
		return nil
	}
}

// StripXSSI removes the anti-XSSI guard line from body, if present.
func StripXSSI(body []byte) []byte {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if !bytes.HasPrefix(trimmed, xssiPrefix) {
		return body
	}
	rest := trimmed[len(xssiPrefix):]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		return rest[i+1:]
	}
	return bytes.TrimLeft(rest, ",")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
