package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/cso-impact-service/internal/adapter/d8"
	"github.com/couchcryptid/cso-impact-service/internal/adapter/edm"
	httpadapter "github.com/couchcryptid/cso-impact-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/cso-impact-service/internal/adapter/kafka"
	"github.com/couchcryptid/cso-impact-service/internal/adapter/sqlite"
	"github.com/couchcryptid/cso-impact-service/internal/adapter/telegram"
	"github.com/couchcryptid/cso-impact-service/internal/config"
	"github.com/couchcryptid/cso-impact-service/internal/domain"
	"github.com/couchcryptid/cso-impact-service/internal/observability"
	"github.com/couchcryptid/cso-impact-service/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	client := edm.NewClient(cfg.EDMBaseURL, cfg.EDMClientID, cfg.EDMClientSecret, cfg.EDMTimeout, logger)
	source := edm.NewCachedSource(client, cfg.HistoryCache, cfg.HistoryCacheTTL).
		WithObserver(func(result string) { metrics.HistoryCache.WithLabelValues(result).Inc() })

	fleet, err := domain.NewFleet(cfg.Operator, source, func() (domain.FlowGrid, error) {
		grid, err := d8.Open(cfg.GridPath)
		if err != nil {
			return nil, err
		}
		return grid, nil
	})
	if err != nil {
		logger.Error("failed to build fleet", "error", err)
		os.Exit(1)
	}

	svc := snapshot.New(fleet, cfg.SnapshotInterval, cfg.IncludeRecent, logger, metrics)

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		svc = svc.WithPublisher(writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	var store *sqlite.Store
	if cfg.SQLiteEnabled() {
		store, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open archive", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		svc = svc.WithStore(store)
		logger.Info("sqlite archive enabled", "path", cfg.SQLitePath)
	} else {
		logger.Info("sqlite archive disabled")
	}

	if cfg.TelegramEnabled() {
		notifier, err := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("failed to connect telegram", "error", err)
			os.Exit(1)
		}
		svc = svc.WithNotifier(notifier)
		logger.Info("telegram alerts enabled", "chat_id", cfg.TelegramChatID)
	} else {
		logger.Info("telegram alerts disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, fleet, cfg.TimeSeriesWindow, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bulk history loads run on a cron schedule; an initial load in the
	// background warms the history-backed endpoints after startup.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.HistoryRefreshSchedule, func() { svc.RefreshHistories(ctx) }); err != nil {
		logger.Error("invalid history refresh schedule", "schedule", cfg.HistoryRefreshSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	go svc.RefreshHistories(ctx)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start snapshot loop.
	go func() {
		if err := svc.Run(ctx); err != nil {
			logger.Error("snapshot loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	<-scheduler.Stop().Done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("archive close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
