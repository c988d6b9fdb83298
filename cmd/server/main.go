package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealforge/dealforge/internal/affiliate"
	"github.com/dealforge/dealforge/internal/api"
	"github.com/dealforge/dealforge/internal/auth"
	"github.com/dealforge/dealforge/internal/config"
	"github.com/dealforge/dealforge/internal/content"
	"github.com/dealforge/dealforge/internal/database"
	"github.com/dealforge/dealforge/internal/extract"
	"github.com/dealforge/dealforge/internal/ingestion"
	"github.com/dealforge/dealforge/internal/logging"
	"github.com/dealforge/dealforge/internal/metrics"
	"github.com/dealforge/dealforge/internal/resolve"
	"github.com/dealforge/dealforge/internal/scrape"
	"github.com/dealforge/dealforge/internal/server"
	"github.com/dealforge/dealforge/internal/social"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting dealforge", "channels", len(cfg.Channels))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.Database.URL
	db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, cfg.Database.MigrationsDir, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Repositories
	contentRepo := database.NewContentRepository(db)
	tagRepo := database.NewTagRepository(db)
	channelStateRepo := database.NewChannelStateRepository(db)
	settingsRepo := database.NewSettingsRepository(db)

	// Pipeline stages
	selectors, err := scrape.LoadSelectorConfig(cfg.Pipeline.SelectorsPath)
	if err != nil {
		logger.Error("failed to load selector config", "error", err)
		os.Exit(1)
	}

	captioner := social.NewCaptionGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, contentRepo, logger)
	var notifier content.Notifier
	if captioner.Enabled() {
		notifier = captioner
		logger.Info("caption generation enabled", "model", cfg.OpenAI.Model)
	}

	transformer := affiliate.New(tagRepo, logger)

	pipeline := ingestion.NewPipeline(
		extract.New(),
		resolve.New(cfg.Pipeline.ResolveTimeout, logger),
		scrape.New(cfg.Pipeline.ScrapeTimeout, selectors, logger),
		transformer,
		content.New(contentRepo, notifier, logger),
		collector,
		logger,
	)

	// Listener registry
	overrides := make(map[string]ingestion.ChannelOverride)
	if states, err := channelStateRepo.Load(ctx); err != nil {
		logger.Warn("failed to load persisted channel state", "error", err)
	} else {
		for botID, state := range states {
			overrides[botID] = ingestion.ChannelOverride{
				Enabled: state.Enabled,
				Method:  state.Method,
				APIKey:  state.APIKey,
			}
		}
	}

	factory := ingestion.NewTransportFactory(ingestion.TransportConfig{
		PollInterval: cfg.Pipeline.PollInterval,
		HTTPTimeout:  cfg.Pipeline.ScrapeTimeout,
	}, logger)

	registry := ingestion.NewRegistry(
		cfg.Channels, overrides, factory, pipeline, channelStateRepo, collector,
		ingestion.RegistryConfig{QueueSize: cfg.Pipeline.QueueSize},
		logger,
	)

	if settings, err := settingsRepo.Get(ctx); err != nil {
		logger.Warn("failed to load processing settings", "error", err)
	} else {
		registry.SetProcessing(settings.Enabled)
		transformer.SetCommissionMethod(settings.CommissionMethod)
	}

	registry.Start(ctx)
	defer registry.Stop()

	// HTTP API
	authConfig := auth.LoadConfigFromEnv()
	mux := http.NewServeMux()
	api.SetupRoutes(mux, db, registry, contentRepo, tagRepo, settingsRepo, transformer, authConfig, logger)
	mux.Handle("/metrics", collector.Handler())

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("dealforge stopped")
}
