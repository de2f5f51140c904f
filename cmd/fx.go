package cmd

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/gamenight/scheduler/config"
	"github.com/gamenight/scheduler/infra/observability"
	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
	"github.com/gamenight/scheduler/internal/daemon"
	amqphandler "github.com/gamenight/scheduler/internal/handler/amqp"
	httphandler "github.com/gamenight/scheduler/internal/handler/http"
	"github.com/gamenight/scheduler/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideMetricsRegistry,
			ProvideDB,
			ProvideCache,
			ProvidePubSub,
			ProvideStore,
			ProvideMaterializer,
			ProvideChatClient,
			ProvideDaemonConfig,
			ProvidePublisher,
			adapter.NewPublisherProvider,
			adapter.NewEventDispatcher,
		),

		fx.Invoke(func(lc fx.Lifecycle) error {
			shutdown, err := observability.Setup(context.Background())
			if err != nil {
				return err
			}
			lc.Append(fx.StopHook(shutdown))
			return nil
		}),

		fx.Invoke(func(c *config.Config, logger *slog.Logger, level *slog.LevelVar) {
			c.WatchLogLevel(level, logger)
		}),

		service.Module,
		daemon.Module,
		amqphandler.Module,
		httphandler.Module,
	)
}
