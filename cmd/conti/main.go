package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conti/internal/amqp"
	"conti/internal/categorizer"
	"conti/internal/config"
	apphttp "conti/internal/http"
	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/storage"
	"conti/internal/storage/memory"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// backendStore is everything a data backend must provide: the services
// port, the directory surface and category lookup for the categorizer.
type backendStore interface {
	services.Store
	apphttp.Directory
	categorizer.CategoryFinder
	io.Closer
}

func main() {
	// Load .env for local development; absent in containers.
	_ = godotenv.Load()

	logger := applog.Setup(applog.Config{Level: slog.LevelInfo})

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var store backendStore
	switch cfg.DataBackend {
	case "memory":
		store = noopCloser{memory.NewStore()}
		logger.Info("Initialized memory backend")
	default:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		store = repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	}
	defer store.Close()

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, events disabled", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP event publishing enabled", "exchange", cfg.AMQPExchange)
		}
	}

	var cat services.Categorizer
	if cfg.CategorizerURL != "" {
		cat = categorizer.NewClient(cfg.CategorizerURL, cfg.CategorizerTimeout, store)
		logger.Info("Categorizer enabled", "url", cfg.CategorizerURL)
	}

	ledger := services.NewLedgerService(store, cat, events)
	recurrences := services.NewRecurrenceService(store, ledger)

	handlers := apphttp.NewHandlers(ledger, recurrences, store, cfg.UpcomingDaysDefault)
	srv := apphttp.NewServer(":"+cfg.Port, handlers)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// noopCloser lets the memory backend satisfy the Close the sqlite
// repository needs.
type noopCloser struct {
	*memory.Store
}

func (noopCloser) Close() error { return nil }
