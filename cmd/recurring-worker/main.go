package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conti/internal/amqp"
	"conti/internal/categorizer"
	"conti/internal/config"
	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	logger := applog.Setup(applog.Config{Level: slog.LevelInfo})
	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, events disabled", "error", err)
		} else {
			defer client.Close()
			events = client
		}
	}

	var cat services.Categorizer
	if cfg.CategorizerURL != "" {
		cat = categorizer.NewClient(cfg.CategorizerURL, cfg.CategorizerTimeout, repo)
	}

	ledger := services.NewLedgerService(repo, cat, events)
	recurrences := services.NewRecurrenceService(repo, ledger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Recurrence scheduler configured",
		"interval", cfg.RecurrenceInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	runBatch(ctx, recurrences, logger)

	ticker := time.NewTicker(cfg.RecurrenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
			return
		case <-ticker.C:
			runBatch(ctx, recurrences, logger)
		}
	}
}

func runBatch(ctx context.Context, recurrences *services.RecurrenceService, logger *slog.Logger) {
	summary, err := recurrences.ProcessDue(ctx, time.Now())
	if err != nil {
		logger.Error("Recurrence batch failed", "error", err)
		return
	}
	logger.Info("Recurrence batch complete",
		"created", summary.Created,
		"skipped", summary.Skipped,
		"errors", summary.Errors)
}
