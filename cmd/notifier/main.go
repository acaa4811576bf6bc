// Command notifier consumes entry-materialized events from the queue and
// emits one booking notification per entry.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	fintrackamqp "github.com/treiswell/fintrack/internal/amqp"
	"github.com/treiswell/fintrack/internal/config"
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
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required; the notifier has no queue to consume from")
		os.Exit(1)
	}

	client, err := fintrackamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to initialize AMQP client", "err", err)
		os.Exit(1)
	}
	defer client.Close()

	notifier := worker.NewNotifier(logger)
	logger.Info("notifier running", "queue", cfg.AMQPQueue)

	err = client.ConsumeEntryMaterialized(ctx, notifier.HandleEntryMaterialized)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notifier stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("notifier stopped")
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
