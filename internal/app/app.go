package app

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/rank-tracker/external/notifier"
	"github.com/riskibarqy/rank-tracker/internal/config"
	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/interfaces/httpapi"
	"github.com/riskibarqy/rank-tracker/internal/observability"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/platform/metrics"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

const defaultShutdownTimeout = 30 * time.Second

// App owns every long lived component of the tracker process.
type App struct {
	cfg       config.Config
	logger    *logging.Logger
	server    *http.Server
	pprof     *http.Server
	scheduler *usecase.SchedulerService
	stores    *stores

	shutdownTracing  func(context.Context) error
	shutdownProfiler func() error
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		return nil, crerr.Wrap(err, "init uptrace")
	}
	shutdownProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, crerr.Wrap(err, "init pyroscope")
	}

	a := &App{
		cfg:              cfg,
		logger:           logger,
		shutdownTracing:  shutdownTracing,
		shutdownProfiler: shutdownProfiler,
	}
	if err := a.build(ctx); err != nil {
		_ = a.releaseObservability(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	ids := id.NewTimeOrderedGenerator()
	recorder := metrics.NewRecorder()

	st, err := buildStores(ctx, cfg, ids, logger)
	if err != nil {
		return err
	}
	a.stores = st

	registry, err := usecase.NewAdapterRegistry(buildAdapters(cfg, recorder, logger)...)
	if err != nil {
		_ = st.close()
		return crerr.Wrap(err, "build adapter registry")
	}
	if err := registry.Require(cfg.ReportGames()...); err != nil {
		_ = st.close()
		return crerr.Wrap(err, "reports reference games without a configured provider")
	}
	tracked, err := trackedGames(ctx, st.players)
	if err != nil {
		_ = st.close()
		return crerr.Wrap(err, "list tracked players")
	}
	if err := registry.Require(tracked...); err != nil {
		_ = st.close()
		return crerr.Wrap(err, "tracked players reference games without a configured provider")
	}
	logger.Info("game adapters registered", "games", registry.Games())

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		_ = st.close()
		return err
	}

	ingestionSvc := usecase.NewIngestionService(
		st.players,
		registry,
		st.snapshots,
		st.audit,
		ids,
		recorder,
		usecase.IngestionConfig{
			WorkerPoolSize:   cfg.WorkerPoolSize,
			CycleTimeout:     cfg.IngestionCycleTimeout,
			MaxAttempts:      cfg.MaxRetriesPerAdapter,
			TransientRetries: cfg.TransientRetries,
			RetryBaseDelay:   cfg.RetryBaseDelay,
			RateLimitDelay:   cfg.RateLimitDefaultDelay,
			RetryMaxDelay:    cfg.RetryMaxDelay,
		},
		logger.Named("ingestion"),
	)
	aggregationSvc := usecase.NewAggregationService(st.snapshots, st.audit, cfg.WorkerPoolSize, logger.Named("aggregation"))
	reportSvc := usecase.NewReportService(st.players, aggregationSvc, publisher, cfg.Reports, recorder, logger.Named("report"))
	retentionSvc := usecase.NewRetentionService(
		st.snapshots,
		st.audit,
		usecase.RetentionConfig{
			SnapshotRetention: cfg.SnapshotRetention(),
			AuditRetention:    cfg.AuditRetention,
		},
		recorder,
		logger.Named("retention"),
	)
	querySvc := usecase.NewSnapshotQueryService(st.snapshots, st.audit, logger.Named("query"))

	scheduler, err := usecase.NewSchedulerService(
		ingestionSvc,
		reportSvc,
		retentionSvc,
		cfg.Reports,
		st.dispatch,
		ids,
		recorder,
		usecase.SchedulerConfig{
			IngestionInterval: cfg.IngestionInterval,
			PruneInterval:     cfg.PruneInterval,
			IngestOnStart:     cfg.IngestOnStart,
			StopTimeout:       defaultShutdownTimeout,
		},
		logger.Named("scheduler"),
	)
	if err != nil {
		_ = st.close()
		return crerr.Wrap(err, "build scheduler")
	}
	a.scheduler = scheduler

	handler := httpapi.NewHandler(querySvc, reportSvc, scheduler, logger.Named("http"))
	router := httpapi.NewRouter(handler, recorder.Handler(), logger.Named("http"), cfg.CORSAllowedOrigins, cfg.InternalJobToken)
	a.server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if a.server.Addr == "" {
		_ = st.close()
		return crerr.New("http server addr cannot be empty")
	}
	return nil
}

func buildPublisher(cfg config.Config, logger *logging.Logger) (*notifier.Router, error) {
	var webhooks *notifier.WebhookPublisher
	if len(cfg.NotifyChannels) > 0 {
		var err error
		webhooks, err = notifier.NewWebhookPublisher(notifier.WebhookConfig{
			Channels:       cfg.NotifyChannels,
			Timeout:        cfg.NotifyTimeout,
			CircuitBreaker: circuitBreakerConfig(cfg, logger, "webhook"),
		}, logger.Named("webhook"))
		if err != nil {
			return nil, crerr.Wrap(err, "build webhook publisher")
		}
	}
	return notifier.NewRouter(webhooks, notifier.NewLogPublisher(logger.Named("report-log"))), nil
}

// Run starts the scheduler and the HTTP server and blocks until ctx is done
// or the server fails. It always shuts everything down before returning.
func (a *App) Run(ctx context.Context) error {
	a.pprof = observability.StartPprofServer(a.cfg, a.logger)

	if err := a.scheduler.Start(ctx); err != nil {
		_ = a.shutdown()
		return crerr.Wrap(err, "start scheduler")
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "addr", a.cfg.HTTPAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("http server failed", "error", err)
			runErr = crerr.Wrap(err, "http server")
		}
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops intake first, then waits for in-flight runs, then releases
// stores and telemetry.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var errs error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("graceful http shutdown failed", "error", err)
		errs = crerr.CombineErrors(errs, err)
	}
	a.scheduler.Stop()
	if err := observability.StopPprofServer(ctx, a.pprof); err != nil {
		a.logger.Warn("pprof shutdown failed", "error", err)
	}
	if a.stores != nil {
		if err := a.stores.close(); err != nil {
			a.logger.Warn("close stores failed", "error", err)
			errs = crerr.CombineErrors(errs, err)
		}
	}
	if err := a.releaseObservability(ctx); err != nil {
		a.logger.Warn("flush telemetry failed", "error", err)
	}

	a.logger.Info("rank tracker stopped")
	return errs
}

func (a *App) releaseObservability(ctx context.Context) error {
	var errs error
	if a.shutdownProfiler != nil {
		errs = crerr.CombineErrors(errs, a.shutdownProfiler())
	}
	if a.shutdownTracing != nil {
		errs = crerr.CombineErrors(errs, a.shutdownTracing(ctx))
	}
	return errs
}

func trackedGames(ctx context.Context, players player.Repository) ([]game.ID, error) {
	pairs, err := players.ListTrackedPairs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]game.ID, 0, 4)
	for _, pair := range pairs {
		if !slices.Contains(out, pair.Game) {
			out = append(out, pair.Game)
		}
	}
	return out, nil
}
