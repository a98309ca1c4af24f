package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/alert"
	"github.com/billwatch/munibill/internal/config"
	httpx "github.com/billwatch/munibill/internal/interfaces/http"
	"github.com/billwatch/munibill/internal/repository"
	"github.com/billwatch/munibill/internal/service"
	"github.com/billwatch/munibill/internal/verify"
	"github.com/billwatch/munibill/internal/worker"
	"github.com/billwatch/munibill/pkg/database"
	"github.com/billwatch/munibill/pkg/utils"
)

func main() {
	// Optional .env for local development; real deployments set env vars.
	_ = godotenv.Load()

	configPath := "configs/config.yaml"
	if p := os.Getenv("MUNIBILL_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting munibill",
		zap.String("provider", cfg.Analysis.Provider),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Export.OutputDir, 0755); err != nil {
		logger.Fatal("Failed to create export directory", zap.Error(err))
	}

	tariffRepo := repository.NewTariffRepository(db, logger)
	findingRepo := repository.NewFindingRepository(db, logger)
	missingRepo := repository.NewMissingTariffRepository(db, logger)

	engine := verify.NewEngine(tariffRepo, cfg.Analysis.Provider, logger)

	workers := worker.NewManager(logger)

	// The Kafka producer and the digest job are both optional. Without the
	// producer, missing tariffs still land in the database work queue.
	var alerter service.Alerter
	if cfg.Kafka.Enabled {
		producer := alert.NewProducer(alert.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		workers.Register(producer)
		alerter = producer
	}
	if cfg.Digest.Enabled {
		workers.Register(alert.NewDigest(missingRepo, cfg.Digest.Schedule, logger))
	}

	analysisService := service.NewAnalysisService(engine, findingRepo, missingRepo, alerter, logger)

	handlers := httpx.NewHandlers(analysisService, findingRepo, tariffRepo, missingRepo, logger)
	server := httpx.NewServer(httpx.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	cancel()
	if err := server.Stop(); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	workers.StopAll()

	logger.Info("Server exited")
}
