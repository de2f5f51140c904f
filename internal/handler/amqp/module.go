package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	infraredis "github.com/gamenight/scheduler/infra/redis"
	"github.com/gamenight/scheduler/internal/announce"
	"github.com/gamenight/scheduler/internal/store"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		func(s *store.Store) announce.Storage { return s },
		func(c *infraredis.Cache) announce.Cache { return c },
		announce.New,
		NewAnnounceHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(lc fx.Lifecycle, h *AnnounceHandler, router *message.Router, factory *infrapubsub.Factory) error {
		if err := h.RegisterHandlers(router, factory); err != nil {
			return err
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					// Run blocks until Close; startup errors surface in the
					// router logger.
					_ = router.Run(context.Background())
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				return router.Close()
			},
		})
		return nil
	}),
)
