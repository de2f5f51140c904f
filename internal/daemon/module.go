package daemon

import (
	"context"
	"errors"
	"log/slog"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/store"
)

// Config wires the three background workers.
type Config struct {
	Reminder PollerConfig
	Status   PollerConfig
	Drain    DrainerConfig
}

// Set is the process's group of background workers, started and stopped
// together.
type Set struct {
	pollers []*Poller
	drainer *Drainer
	logger  *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewSet(cfg Config, st *store.Store, factory *infrapubsub.Factory, dispatcher adapter.EventDispatcher, logger *slog.Logger, metrics *Metrics) (*Set, error) {
	cfg.Reminder.Kind = model.KindReminder
	cfg.Status.Kind = model.KindStatusTransition

	dlqSub, err := factory.DeadLetterSubscriber()
	if err != nil {
		return nil, err
	}
	pub, err := factory.Publisher()
	if err != nil {
		return nil, err
	}

	return &Set{
		pollers: []*Poller{
			NewPoller(cfg.Reminder, st, BuildReminder, dispatcher, logger, metrics),
			NewPoller(cfg.Status, st, BuildStatusTransition, dispatcher, logger, metrics),
		},
		drainer: NewDrainer(cfg.Drain, dlqSub, pub, logger, metrics),
		logger:  logger,
	}, nil
}

func (s *Set) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)

	for _, p := range s.pollers {
		s.group.Go(func() error { return p.Run(ctx) })
	}
	s.group.Go(func() error { return s.drainer.Run(ctx) })
}

func (s *Set) stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var Module = fx.Module("daemon",
	fx.Provide(
		NewMetrics,
		NewSet,
	),
	fx.Invoke(func(lc fx.Lifecycle, set *Set) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				set.start()
				return nil
			},
			OnStop: func(context.Context) error {
				return set.stop()
			},
		})
	}),
)
