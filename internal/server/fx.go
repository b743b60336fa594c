// Package server builds the gateway's dependency graph and runs the HTTP
// server until the process is signaled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/api"
	"github.com/JakeFAU/trends-gateway/internal/clock/system"
	"github.com/JakeFAU/trends-gateway/internal/config"
	"github.com/JakeFAU/trends-gateway/internal/detector"
	"github.com/JakeFAU/trends-gateway/internal/events"
	"github.com/JakeFAU/trends-gateway/internal/events/sinks"
	"github.com/JakeFAU/trends-gateway/internal/id/uuid"
	"github.com/JakeFAU/trends-gateway/internal/logging"
	"github.com/JakeFAU/trends-gateway/internal/metrics"
	"github.com/JakeFAU/trends-gateway/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/trends-gateway/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/trends-gateway/internal/publisher/pubsub"
	"github.com/JakeFAU/trends-gateway/internal/telemetry"
	"github.com/JakeFAU/trends-gateway/internal/trends"
	"github.com/JakeFAU/trends-gateway/internal/upstream/breaker"
	collyupstream "github.com/JakeFAU/trends-gateway/internal/upstream/colly"
)

// memoryNoticeLimit caps degradation notices retained without Pub/Sub.
const memoryNoticeLimit = 1024

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	gateway         *trends.Gateway
	eventHub        *events.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	telemetry       *telemetry.Providers
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Strings("allowed_geos", cfg.Gateway.AllowedGeos),
		zap.String("exhausted_policy", cfg.Gateway.ExhaustedPolicy),
	)

	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		GCPProjectID:   cfg.Telemetry.GCPProjectID,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Registerer:     reg,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.telemetry = providers
	metrics.Init()

	upstream, err := setupUpstream(app)
	if err != nil {
		return nil, err
	}

	emitter, err := setupEvents(ctx, app, reg)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.gateway = trends.New(cfg.GatewayConfig(), trends.Deps{
		Upstream:  upstream,
		Sleeper:   trends.TimerSleeper{},
		Inspector: detector.NewHeuristic(cfg.Upstream.CaptchaMarkers, nil),
		Clock:     system.New(),
		Emitter:   emitter,
		Logger:    logger.Named("trends"),
	})

	app.apiServer = api.NewServer(app.gateway, logger.Named("api"), api.Options{
		RequestTimeout: cfg.RequestTimeout(),
		CORS: api.CORSOptions{
			Enabled:        cfg.CORS.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MaxAgeSeconds:  cfg.CORS.MaxAgeSeconds,
		},
		IDs: uuid.New(),
	})
	return app, nil
}

// setupUpstream layers pacing and the circuit breaker over the HTTP client.
// The breaker sits outermost so an open circuit rejects without waiting for
// a pacing token.
func setupUpstream(app *App) (trends.Upstream, error) {
	ucfg := app.cfg.Upstream
	client, err := collyupstream.New(collyupstream.Config{
		BaseURL:   ucfg.BaseURL,
		Path:      ucfg.Path,
		UserAgent: ucfg.UserAgent,
		Language:  ucfg.Language,
		TZOffset:  ucfg.TZOffset,
		Timeout:   time.Duration(ucfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream client init failed: %w", err)
	}
	app.logger.Info("using colly upstream client",
		zap.String("base_url", ucfg.BaseURL),
		zap.String("path", ucfg.Path),
	)

	var upstream trends.Upstream = client
	if ucfg.RateLimit.RPS > 0 {
		limiter := ratelimit.New(ratelimit.Config{
			DefaultRPS:   ucfg.RateLimit.RPS,
			DefaultBurst: ucfg.RateLimit.Burst,
		})
		upstream = ratelimit.Wrap(upstream, limiter, ucfg.BaseURL)
		app.logger.Info("outbound pacing enabled",
			zap.Float64("rps", ucfg.RateLimit.RPS),
			zap.Int("burst", ucfg.RateLimit.Burst),
		)
	}
	if ucfg.Breaker.Enabled {
		upstream = breaker.New(upstream, breaker.Config{
			MaxRequests:  ucfg.Breaker.MaxRequests,
			Interval:     time.Duration(ucfg.Breaker.IntervalSeconds) * time.Second,
			Timeout:      time.Duration(ucfg.Breaker.TimeoutSeconds) * time.Second,
			MinRequests:  ucfg.Breaker.MinRequests,
			FailureRatio: ucfg.Breaker.FailureRatio,
		}, app.logger.Named("breaker"))
		app.logger.Info("circuit breaker enabled",
			zap.Uint32("min_requests", ucfg.Breaker.MinRequests),
			zap.Float64("failure_ratio", ucfg.Breaker.FailureRatio),
		)
	}
	return upstream, nil
}

func setupPublisher(ctx context.Context, app *App) (sinks.Publisher, error) {
	ps := app.cfg.Events.PubSub
	if ps.TopicName == "" || ps.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.NewBounded(memoryNoticeLimit), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(ps.TopicName)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupEvents(ctx context.Context, app *App, reg prometheus.Registerer) (events.Emitter, error) {
	ecfg := app.cfg.Events
	if !ecfg.Enabled {
		app.logger.Info("event hub disabled")
		return nil, nil
	}

	var sinkList []events.Sink
	if ecfg.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(app.logger.Named("events_log")))
	}
	if ecfg.PrometheusEnabled {
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("event metrics init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	sinkList = append(sinkList,
		sinks.NewPublisherSink(publisher, ecfg.PubSub.TopicName, app.logger.Named("events_publisher")),
	)

	hubCfg := events.Config{
		BufferSize:     ecfg.BufferSize,
		MaxBatchEvents: ecfg.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(ecfg.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(ecfg.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("events_hub"),
	}
	app.eventHub = events.NewHub(hubCfg, sinkList...)
	app.logger.Info("event hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.eventHub, nil
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled or
// SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.eventHub != nil {
		if err := a.eventHub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
