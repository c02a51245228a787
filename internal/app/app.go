package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/handlers"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/services/aggregator"
	"github.com/ternarybob/prospector/internal/services/batch"
	"github.com/ternarybob/prospector/internal/services/crawler"
	"github.com/ternarybob/prospector/internal/services/detail"
	"github.com/ternarybob/prospector/internal/services/discovery"
	"github.com/ternarybob/prospector/internal/services/output"
	"github.com/ternarybob/prospector/internal/services/pipeline"
	"github.com/ternarybob/prospector/internal/services/scheduler"
	"github.com/ternarybob/prospector/internal/services/social"
	"github.com/ternarybob/prospector/internal/services/website"
	"github.com/ternarybob/prospector/internal/storage/badger"
	"github.com/ternarybob/prospector/internal/storage/postgres"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB         *badger.BadgerDB
	RunStorage interfaces.RunStorage
	Listings   *postgres.ListingStorage // nil unless storage.postgres.enabled

	// Browser sessions shared by discovery, detail and social stages
	BrowserPool *crawler.ChromeDPPool

	// Pipeline
	Sink             *output.Sink
	Runner           *pipeline.Runner
	Manager          *pipeline.Manager
	SchedulerService *scheduler.Service
	BatchService     *batch.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	ScrapeHandler   *handlers.ScrapeHandler
	WSHandler       *handlers.WebSocketHandler
	DownloadHandler *handlers.DownloadHandler
	RunsHandler     *handlers.RunsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("sessions", cfg.Browser.Sessions).
		Int("concurrency", cfg.Pipeline.Concurrency).
		Bool("postgres", app.Listings != nil).
		Bool("s3", cfg.Storage.S3.Enabled).
		Bool("batch", app.BatchService != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the run store and, when enabled, the listing database
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.RunStorage = badger.NewRunStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	if a.Config.Storage.Postgres.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		listings, err := postgres.Open(ctx, a.Config.Storage.Postgres, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open listing database: %w", err)
		}
		a.Listings = listings
	}

	return nil
}

// initServices builds the pipeline stages in dependency order
func (a *App) initServices() error {
	cfg := a.Config

	a.BrowserPool = crawler.NewChromeDPPool(crawler.ChromeDPPoolConfig{
		Sessions:        cfg.Browser.Sessions,
		UserAgent:       cfg.Browser.UserAgent,
		Headless:        cfg.Browser.Headless,
		DisableGPU:      cfg.Browser.DisableGPU,
		NoSandbox:       cfg.Browser.NoSandbox,
		StartupTimeout:  cfg.Browser.StartupTimeout,
		ActionTimeout:   cfg.Browser.ActionTimeout,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
	}, a.Logger)
	if err := a.BrowserPool.InitBrowserPool(); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	discoveryConfig := discovery.DefaultConfig()
	discoveryConfig.MapsURL = cfg.Browser.MapsURL
	discoveryConfig.MaxScrollSteps = cfg.Pipeline.MaxScrollSteps
	if cfg.Pipeline.ScrollSettle > 0 {
		discoveryConfig.ScrollSettle = cfg.Pipeline.ScrollSettle
	}

	detailConfig := detail.DefaultConfig()
	detailConfig.ReviewRetry = cfg.Pipeline.ReviewRetry
	detailConfig.ListingTimeout = cfg.Browser.DetailTimeout
	if cfg.Browser.ActionTimeout > 0 {
		detailConfig.WaitTimeout = cfg.Browser.ActionTimeout
	}

	websiteEnricher := website.NewEnricher(cfg.Website, &http.Client{Timeout: cfg.Website.RequestTimeout}, a.Logger)

	// Typed nils would defeat the aggregator's nil checks
	var socialVisitor aggregator.SocialVisitor
	if cfg.Pipeline.SocialEnrichment {
		socialVisitor = social.NewEnricher(a.BrowserPool, social.DefaultConfig(), a.Logger)
	}
	var verifier aggregator.EmailVerifier
	if cfg.Verify.MXCheck {
		verifier = aggregator.NewMXVerifier(cfg.Verify.Resolver, cfg.Verify.DNSTimeout, a.Logger)
	}

	var uploader interfaces.ExportUploader
	if cfg.Storage.S3.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s3Uploader, err := output.NewS3Uploader(ctx, cfg.Storage.S3, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to configure export upload: %w", err)
		}
		uploader = s3Uploader
	}
	a.Sink = output.NewSink(cfg.Output, uploader, a.Logger)

	stages := pipeline.Stages{
		Discovery:  discovery.NewService(a.BrowserPool, discoveryConfig, a.Logger),
		Extractor:  detail.NewExtractor(a.BrowserPool, detailConfig, a.Logger),
		Aggregator: aggregator.NewService(websiteEnricher, socialVisitor, verifier, a.Logger),
		Exporter:   a.Sink,
		Deliverer:  output.NewDeliverer(cfg.Delivery.Timeout, a.Logger),
		Scheduler:  scheduler.NewConcurrencyScheduler(cfg.Pipeline.Concurrency, a.Logger),
	}
	if a.Listings != nil {
		stages.Listings = a.Listings
	}
	a.Runner = pipeline.NewRunner(stages, a.Logger)
	a.Manager = pipeline.NewManager(a.Runner, a.RunStorage, a.Logger)

	a.SchedulerService = scheduler.NewService(a.Logger)
	if cfg.Batch.Enabled {
		a.BatchService = batch.NewService(a.Manager, cfg.Batch.QueriesFile, cfg.Pipeline.DefaultTotalResults, a.Logger)
		if err := a.BatchService.Register(a.SchedulerService, cfg.Batch.Schedule); err != nil {
			return fmt.Errorf("failed to register batch job: %w", err)
		}
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if a.BatchService != nil && cfg.Batch.Schedule == "" {
		if err := a.SchedulerService.TriggerJob(batch.JobName); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to trigger startup batch")
		}
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Manager, a.Logger)
	a.ScrapeHandler = handlers.NewScrapeHandler(a.Manager, a.Config.Pipeline, a.Config.Delivery, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Manager, a.Logger)
	a.DownloadHandler = handlers.NewDownloadHandler(a.Sink, a.Logger)
	a.RunsHandler = handlers.NewRunsHandler(a.Manager, a.Logger)
}

// Close stops background work and releases resources in reverse start order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Manager.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Runs did not stop in time")
		}
		cancel()
	}

	if a.BrowserPool != nil && a.BrowserPool.IsInitialized() {
		if err := a.BrowserPool.ShutdownBrowserPool(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to shut down browser pool")
		}
	}

	if a.Listings != nil {
		if err := a.Listings.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close listing database")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
