// Command sweeper books due occurrences on a schedule. It shares storage and
// the materialization path with the API server, so a sweep can never
// double-book a period the user already materialized by hand.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	fintrackamqp "github.com/treiswell/fintrack/internal/amqp"
	"github.com/treiswell/fintrack/internal/config"
	"github.com/treiswell/fintrack/internal/service/book"
	pgstore "github.com/treiswell/fintrack/internal/storage/postgres"
	"github.com/treiswell/fintrack/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required; an in-memory sweep has nothing durable to book into")
		os.Exit(1)
	}

	if err := pgstore.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer pg.Close()

	var events book.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := fintrackamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("failed to initialize AMQP client, events disabled", "err", err)
		} else {
			defer client.Close()
			events = client
		}
	}

	bookSvc := book.New(pg, pg, events, logger, cfg.StorageTimeout)
	sweeper := worker.New(pg, bookSvc, logger)

	// One sweep on startup catches anything missed while the process was down.
	if _, err := sweeper.Sweep(ctx, time.Now().UTC()); err != nil {
		logger.Error("initial sweep failed", "err", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		if _, err := sweeper.Sweep(ctx, time.Now().UTC()); err != nil {
			logger.Error("scheduled sweep failed", "err", err)
		}
	}); err != nil {
		logger.Error("invalid sweep schedule", "schedule", cfg.SweepSchedule, "err", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Start()
		logger.Info("sweeper running", "schedule", cfg.SweepSchedule)
		<-gctx.Done()
		stopCtx := c.Stop()
		// let an in-flight sweep finish before exiting
		select {
		case <-stopCtx.Done():
		case <-time.After(30 * time.Second):
			logger.Warn("timed out waiting for running sweep")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("sweeper stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("sweeper stopped")
}

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
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}
