package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	fintrackamqp "github.com/treiswell/fintrack/internal/amqp"
	"github.com/treiswell/fintrack/internal/config"
	"github.com/treiswell/fintrack/internal/httpapi"
	"github.com/treiswell/fintrack/internal/service/book"
	"github.com/treiswell/fintrack/internal/storage/memory"
	pgstore "github.com/treiswell/fintrack/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is a local dev convenience; absent in production
	_ = godotenv.Load()

	cfg := config.Load()
	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	var repo httpapi.Repository
	var writer httpapi.Writer
	var closeFn func()

	if cfg.DatabaseURL != "" {
		if err := pgstore.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = pg.Close
		repo, writer = pg, pg
		logger.Info("storage backend: postgres")
	} else {
		store := memory.New()
		repo, writer = store, store
		logger.Info("storage backend: memory")
	}

	var events book.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := fintrackamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("failed to initialize AMQP client, events disabled", "err", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.New(repo, writer, events, logger, cfg.StorageTimeout).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fintrack service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(level string) *slog.Logger {
	format := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}
