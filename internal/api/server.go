// Package api exposes the HTTP interface for the trends gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/metrics"
	"github.com/JakeFAU/trends-gateway/internal/trends"
)

// RootMessage is served on GET /.
const RootMessage = "Google Trends API is running ✅"

// DefaultRequestTimeout bounds each request when Options leaves it unset.
const DefaultRequestTimeout = 60 * time.Second

// TrendsService answers trend queries.
type TrendsService interface {
	HandleQuery(ctx context.Context, raw trends.RawQuery) (*trends.Envelope, error)
	DiagnoseKeywords() []trends.KeywordDiagnostic
}

// RequestIDSource mints and parses request IDs.
type RequestIDSource interface {
	NewRequestID() (uuid.UUID, error)
	Parse(raw string) (uuid.UUID, bool)
}

// CORSOptions configures cross-origin access.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	MaxAgeSeconds  int
}

// Options tunes the server middleware.
type Options struct {
	RequestTimeout time.Duration
	CORS           CORSOptions
	IDs            RequestIDSource
}

// Server wires HTTP handlers to the trends gateway.
type Server struct {
	router  chi.Router
	service TrendsService
	ids     RequestIDSource
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service TrendsService, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.IDs == nil {
		opts.IDs = randomIDs{}
	}
	metrics.Init()

	s := &Server{
		service: service,
		ids:     opts.IDs,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader, "Retry-After"},
			MaxAge:         opts.CORS.MaxAgeSeconds,
		}))
	}
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/api/trends", s.getTrends)
	r.Get("/api/trends/test-parsing", s.testParsing)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(RootMessage)); err != nil {
		s.logger.Error("root write failed", zap.Error(err))
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The gateway keeps no connections that need warming.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getTrends(w http.ResponseWriter, r *http.Request) {
	envelope, err := s.service.HandleQuery(r.Context(), rawQueryFromRequest(r))
	if err == nil {
		s.writeJSON(w, http.StatusOK, envelope)
		return
	}

	var rateLimited *trends.RateLimitError
	if errors.As(err, &rateLimited) {
		seconds := retryAfterSeconds(rateLimited.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		s.writeJSON(w, http.StatusTooManyRequests, rateLimitBody{
			Error:      rateLimited.Message,
			RetryAfter: seconds,
		})
		return
	}

	var upstream *trends.UpstreamError
	if errors.As(err, &upstream) {
		s.writeError(w, http.StatusInternalServerError, upstream.Message)
		return
	}
	s.logger.Error("unclassified gateway error", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) testParsing(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, parsingReport{Results: s.service.DiagnoseKeywords()})
}

// rawQueryFromRequest merges keyword and its keywords alias. One value stays a
// plain string for the normalizer to split; repeated values form a sequence.
func rawQueryFromRequest(r *http.Request) trends.RawQuery {
	q := r.URL.Query()
	values := append(append([]string(nil), q["keyword"]...), q["keywords"]...)

	var keyword trends.KeywordParam
	switch len(values) {
	case 0:
	case 1:
		keyword = trends.KeywordText(values[0])
	default:
		keyword = trends.KeywordList(values...)
	}
	return trends.RawQuery{
		Keyword:   keyword,
		Geo:       q.Get("geo"),
		StartTime: q.Get("startTime"),
		EndTime:   q.Get("endTime"),
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

type rateLimitBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type parsingReport struct {
	Results []trends.KeywordDiagnostic `json:"results"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type randomIDs struct{}

func (randomIDs) NewRequestID() (uuid.UUID, error) { return uuid.New(), nil }

func (randomIDs) Parse(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil && id != uuid.Nil
}
