package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"CompetitorReports/internal/collection"
	"CompetitorReports/internal/config"
	"CompetitorReports/internal/freshness"
	"CompetitorReports/internal/infrastructure/llm"
	"CompetitorReports/internal/infrastructure/ml"
	"CompetitorReports/internal/infrastructure/parser"
	"CompetitorReports/internal/infrastructure/scheduler"
	"CompetitorReports/internal/infrastructure/storage"
	"CompetitorReports/internal/infrastructure/telegram"
	"CompetitorReports/internal/logging"
	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/readiness"
	"CompetitorReports/internal/report"
	"CompetitorReports/internal/scanner"
	"CompetitorReports/internal/telemetry"
	"CompetitorReports/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     storage.Backend
	registry  *prometheus.Registry
	generator *usecase.ReportGenerator
	integrity *report.IntegrityValidator
	sweep     *usecase.IntegritySweep
}

// New opens the store and builds every collaborator from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	alerter := newAlerter(cfg, baseLogger)
	failures := telemetry.NewFailureTracker(telemetry.Options{
		Window:            cfg.Telemetry.Window,
		WarningThreshold:  cfg.Telemetry.WarningThreshold,
		CriticalThreshold: cfg.Telemetry.CriticalThreshold,
		Registerer:        registry,
		Alerter:           alerter,
		Logger:            baseLogger.With("component", "telemetry"),
	})

	breaker := collection.NewDomainBreaker(collection.BreakerConfig{
		FailureThreshold: cfg.Scraping.BreakerFailureThreshold,
		Window:           cfg.Scraping.BreakerWindow,
		Cooldown:         cfg.Scraping.BreakerCooldown,
	})
	limiter := collection.NewDomainLimiter(cfg.Scraping.RequestsPerSecond, cfg.Scraping.Burst)

	var scraper ports.Scraper
	if !cfg.Scraping.Disabled {
		fetcher := parser.NewPageFetcher(&http.Client{Timeout: cfg.Scraping.BaseTimeout}, cfg.Scraping.UserAgent)
		scanners := scanner.NewRegistry(parser.NewFullScanner(fetcher), parser.NewLightweightScanner(fetcher))
		scraper = parser.NewSiteCapturer(scanners, store, baseLogger.With("component", "capturer"))
	}

	analyzer, err := newAnalyzer(cfg.Analysis)
	if err != nil {
		baseLogger.Warn("analysis service unavailable, full reports will fall back", "provider", cfg.Analysis.Provider, "error", err)
	}

	persister := report.NewPersister(store, cfg.Generation.StoreTimeout)
	generator := usecase.NewReportGenerator(usecase.GeneratorDeps{
		Projects:  store,
		Readiness: readiness.NewValidator(store, store, baseLogger.With("component", "readiness")),
		Freshness: freshness.NewAnalyzer(store, store, cfg.Generation.StalenessThreshold(), baseLogger.With("component", "freshness")),
		Snapshots: collection.NewSnapshotCollector(store, store, scraper, breaker, limiter, failures, collection.SnapshotCollectorConfig{
			MaxConcurrency:   cfg.Scraping.MaxConcurrency,
			PerEntityTimeout: cfg.Scraping.BaseTimeout,
			DefaultMaxWait:   cfg.Scraping.MaxWait,
		}, baseLogger.With("component", "snapshots")),
		Collector: collection.NewPriorityDataCollector(store, store, scraper, breaker, limiter, collection.PriorityConfig{
			BaseTimeout:        cfg.Scraping.BaseTimeout,
			StalenessThreshold: cfg.Generation.StalenessThreshold(),
			MaxConcurrency:     cfg.Scraping.MaxConcurrency,
		}, baseLogger.With("component", "collector")),
		Assembler: report.NewAssembler(analyzer, report.AssemblerConfig{
			PartialThreshold: cfg.Generation.PartialThreshold,
			AnalysisTimeout:  cfg.Analysis.Timeout,
		}, baseLogger.With("component", "assembler")),
		Persister: persister,
		Guard:     report.NewDuplicateGuard(store, cfg.Generation.DuplicateWindow, baseLogger.With("component", "duplicates")),
		Emergency: report.NewEmergencyGenerator(store, persister, baseLogger.With("component", "emergency")),
		Failures:  failures,
		Alerter:   alerter,
		Logger:    baseLogger.With("component", "generator"),

		OverallTimeout: cfg.Generation.OverallTimeout,
		MaxCaptureWait: cfg.Scraping.MaxWait,
	})

	integrity := report.NewIntegrityValidator(store, alerter, failures, baseLogger.With("component", "integrity"))
	sweep := usecase.NewIntegritySweep(
		scheduler.NewTickerScheduler(cfg.Integrity.SweepInterval),
		integrity,
		cfg.Integrity.Lookback,
		baseLogger.With("component", "sweep"),
	)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		registry:  registry,
		generator: generator,
		integrity: integrity,
		sweep:     sweep,
	}, nil
}

func newAnalyzer(cfg config.AnalysisConfig) (ports.Analyzer, error) {
	switch cfg.Provider {
	case config.ProviderLegacy:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("legacy analysis endpoint is not set")
		}
		return ml.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout), nil
	case config.ProviderUnified, "":
		analyzer, err := llm.NewChatGPTAnalyzer(cfg)
		if err != nil {
			return nil, err
		}
		return analyzer, nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.Provider)
	}
}

func newAlerter(cfg config.Config, logger *slog.Logger) ports.Alerter {
	sinks := telemetry.FanOut{telemetry.NewLogAlerter(logger.With("component", "alerts"))}
	notifier := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	if notifier.Configured() {
		sinks = append(sinks, notifier)
	}
	return sinks
}

// Config returns the settings the application was built from.
func (a *Application) Config() config.Config { return a.cfg }

// Generator exposes the report generation use case.
func (a *Application) Generator() *usecase.ReportGenerator { return a.generator }

// Integrity exposes the report integrity validator.
func (a *Application) Integrity() *report.IntegrityValidator { return a.integrity }

// Store exposes the backing store for seeding and inspection.
func (a *Application) Store() storage.Backend { return a.store }

// Metrics returns the registry holding every application collector.
func (a *Application) Metrics() *prometheus.Registry { return a.registry }

// Watch runs the integrity sweep until ctx is cancelled.
func (a *Application) Watch(ctx context.Context) error {
	if err := a.sweep.Start(ctx); err != nil {
		return fmt.Errorf("start sweep: %w", err)
	}
	a.logger.Info("integrity sweep started", "interval", a.cfg.Integrity.SweepInterval)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.sweep.Stop(stopCtx)
}

// SweepOnce runs a single integrity pass.
func (a *Application) SweepOnce(ctx context.Context) ([]report.Verdict, error) {
	return a.sweep.RunOnce(ctx, time.Now())
}

// Close releases the store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
