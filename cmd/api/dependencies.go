package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tmcunha/billsight/internal/domain/analytics"
	analyticshandler "github.com/tmcunha/billsight/internal/domain/analytics/handler"
	"github.com/tmcunha/billsight/internal/domain/assistant"
	assistanthandler "github.com/tmcunha/billsight/internal/domain/assistant/handler"
	"github.com/tmcunha/billsight/internal/domain/catalog"
	ingesthandler "github.com/tmcunha/billsight/internal/domain/ingest/handler"
	ingestrepo "github.com/tmcunha/billsight/internal/domain/ingest/repository"
	ingestservice "github.com/tmcunha/billsight/internal/domain/ingest/service"
	"github.com/tmcunha/billsight/pkg/config"
	"github.com/tmcunha/billsight/pkg/cron"
	"github.com/tmcunha/billsight/pkg/db"
	"github.com/tmcunha/billsight/pkg/metrics"
	"github.com/tmcunha/billsight/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	UploadRepo  ingestrepo.UploadRepository
	MappingRepo ingestrepo.MappingRepository
	RecordRepo  ingestrepo.RecordRepository
	QueryStore  assistant.QueryStore

	// Services
	IngestService    *ingestservice.Service
	AnalyticsService *analytics.Service
	AssistantService *assistant.Service
	FileStorage      storage.Storage
	Metrics          *metrics.Pipeline
	Scheduler        *cron.Scheduler

	// Handlers
	IngestHandler    *ingesthandler.Handler
	AnalyticsHandler *analyticshandler.Handler
	AssistantHandler *assistanthandler.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.UploadRepo = ingestrepo.NewPostgresUploadRepository(d.DB.Pool)
	d.MappingRepo = ingestrepo.NewPostgresMappingRepository(d.DB.Pool)
	d.RecordRepo = ingestrepo.NewPostgresRecordRepository(d.DB.Pool)
	d.QueryStore = assistant.NewPostgresQueryStore(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	fileStorage, err := storage.NewLocalStorage(d.Config.Storage.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.Metrics = metrics.Default()

	d.IngestService = ingestservice.New(
		d.UploadRepo,
		d.MappingRepo,
		d.RecordRepo,
		d.FileStorage,
		catalog.Default(),
		d.Metrics,
		d.Logger,
	)

	aggregator := analytics.NewRepository(d.DB.Pool)
	d.AnalyticsService = analytics.NewService(aggregator, d.Logger)

	llm := assistant.NewClient(d.Config.OpenAI.APIKey, d.Config.OpenAI.Model, d.Config.OpenAI.BaseURL)
	d.AssistantService = assistant.NewService(llm, d.AnalyticsService, d.QueryStore, d.Logger)

	d.Scheduler = cron.NewScheduler(d.UploadRepo, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.IngestHandler = ingesthandler.New(d.IngestService, d.Logger)
	d.AnalyticsHandler = analyticshandler.New(d.AnalyticsService, d.Logger)
	d.AssistantHandler = assistanthandler.New(d.AssistantService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
