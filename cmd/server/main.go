package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/cache"
	"github.com/montesion/reconciliation/internal/config"
	"github.com/montesion/reconciliation/internal/extraction"
	"github.com/montesion/reconciliation/internal/httpapi"
	"github.com/montesion/reconciliation/internal/ingest"
	"github.com/montesion/reconciliation/internal/intake"
	"github.com/montesion/reconciliation/internal/receipts"
	"github.com/montesion/reconciliation/internal/reconcile"
	"github.com/montesion/reconciliation/internal/repository"
	"github.com/montesion/reconciliation/internal/storage"
	"github.com/montesion/reconciliation/pkg/database"
	"github.com/montesion/reconciliation/pkg/logging"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting reconciliation service",
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
	if err := migrator.Run(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Storage.BaseDir, 0755); err != nil {
		logger.Fatal("Failed to create storage directory", zap.Error(err))
	}

	reportRepo := repository.NewBankReportRepository(db.DB, logger)
	transactionRepo := repository.NewBankTransactionRepository(db.DB, logger)
	submissionRepo := repository.NewSubmissionRepository(db.DB, logger)
	paymentRepo := repository.NewPaymentRepository(db.DB, logger)
	formRepo := repository.NewFormRepository(db.DB, logger)

	receiptStore := storage.NewLocalStorage(cfg.Storage.BaseDir, logger)
	invalidator := cache.NewTagVersions(logger)

	extractor := extraction.NewClient(
		cfg.Extraction.APIKey,
		cfg.Extraction.Model,
		cfg.Extraction.Temperature,
		cfg.Extraction.Timeout,
		cfg.Extraction.BeneficiaryName,
		logger,
	)

	pipeline := ingest.NewPipeline(
		db, reportRepo, transactionRepo, extractor, invalidator, cfg.Ingest.ChunkSize, logger)
	analyzer := receipts.NewAnalyzer(
		formRepo, submissionRepo, paymentRepo, receiptStore, extractor, logger)
	reconciler := reconcile.NewService(
		transactionRepo, paymentRepo, submissionRepo, formRepo, invalidator, logger)
	intakeService := intake.NewService(
		submissionRepo, paymentRepo, receiptStore, extractor, invalidator, logger)

	server := httpapi.NewServer(httpapi.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, pipeline, analyzer, reconciler, intakeService, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
