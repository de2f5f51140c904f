package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/gamenight/scheduler/config"
	"github.com/gamenight/scheduler/infra/postgres"
	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	"github.com/gamenight/scheduler/infra/redis"
	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/daemon"
	"github.com/gamenight/scheduler/internal/scheduler"
	"github.com/gamenight/scheduler/internal/store"
)

func ProvideLogger(cfg *config.Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(slog.String("service", ServiceName))
	slog.SetDefault(logger)
	return logger, level
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func ProvideDB(lc fx.Lifecycle, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(context.Background(), cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

func ProvideCache(lc fx.Lifecycle, cfg *config.Config) (*redis.Cache, error) {
	cache, err := redis.New(context.Background(), cfg.Redis.DSN)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(cache.Close))
	return cache, nil
}

func ProvidePubSub(lc fx.Lifecycle, cfg *config.Config, wmLogger watermill.LoggerAdapter) (*infrapubsub.Factory, error) {
	factory, err := infrapubsub.NewFactory(cfg.AMQP.URI, wmLogger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(factory.Close))
	return factory, nil
}

func ProvidePublisher(pp *adapter.PublisherProvider) (message.Publisher, error) {
	return pp.Build()
}

func ProvideChatClient(cfg *config.Config) (chat.Client, error) {
	return chat.NewHTTPClient(cfg.Chat.BaseURL, cfg.Chat.BotToken, cfg.Chat.RPS)
}

func ProvideDaemonConfig(cfg *config.Config) daemon.Config {
	return daemon.Config{
		Reminder: daemon.PollerConfig{Interval: cfg.Daemon.ReminderInterval, Batch: cfg.Daemon.Batch},
		Status:   daemon.PollerConfig{Interval: cfg.Daemon.StatusInterval, Batch: cfg.Daemon.Batch},
		Drain:    daemon.DrainerConfig{Interval: cfg.Daemon.DrainInterval, MaxBatch: cfg.Daemon.DrainMaxBatch},
	}
}

// ProvideMetricsRegistry backs both the promauto instruments and the
// /metrics scrape endpoint.
func ProvideMetricsRegistry() (prometheus.Registerer, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, reg
}

func ProvideMaterializer() *scheduler.Materializer { return scheduler.New() }

func ProvideStore(db *postgres.DB) *store.Store { return store.New(db) }
