// Package daemon runs the background workers: one schedule poller per
// schedule kind and the dead-letter drain. Pollers claim due rows under row
// locks, publish the corresponding event, and stamp the row, all in one
// transaction. Publishing inside the transaction makes delivery
// at-least-once: a commit failure after a confirmed publish means the next
// tick publishes again, and consumers dedup on their side.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/store"
)

// ScheduleStore is the poller's slice of the store.
type ScheduleStore interface {
	WithTx(ctx context.Context, fn func(q store.Querier) error) error
	ClaimDue(ctx context.Context, q store.Querier, kind model.ScheduleKind, now time.Time, limit int) ([]model.ScheduleRow, error)
	MarkDispatched(ctx context.Context, q store.Querier, id uuid.UUID, at time.Time) error
}

// PollerConfig sizes one poller instance.
type PollerConfig struct {
	Kind     model.ScheduleKind
	Interval time.Duration
	Batch    int
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	return c
}

// Poller drains one kind of the notification schedule. Multiple instances of
// the same kind may run concurrently; SKIP LOCKED in the claim query keeps
// them off each other's rows.
type Poller struct {
	cfg        PollerConfig
	store      ScheduleStore
	builder    Builder
	dispatcher adapter.EventDispatcher
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

func NewPoller(cfg PollerConfig, st ScheduleStore, builder Builder, dispatcher adapter.EventDispatcher, logger *slog.Logger, metrics *Metrics) *Poller {
	cfg = cfg.withDefaults()
	return &Poller{
		cfg:        cfg,
		store:      st,
		builder:    builder,
		dispatcher: dispatcher,
		logger:     logger.With("daemon", "poller", "kind", string(cfg.Kind)),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled. A tick in flight finishes its
// transaction before Run returns; cancellation is only observed between
// ticks.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("POLLER_STARTED", "interval", p.cfg.Interval, "batch", p.cfg.Batch)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if n, err := p.tick(context.WithoutCancel(ctx)); err != nil {
			p.metrics.DispatchError.WithLabelValues(string(p.cfg.Kind)).Inc()
			p.logger.Error("TICK_FAILED", "err", err)
		} else if n > 0 {
			p.logger.Debug("TICK_DISPATCHED", "rows", n)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("POLLER_STOPPED")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick claims one batch and dispatches it. Publish and store failures roll
// the whole batch back so the next tick retries it; a row the builder cannot
// turn into an event is stamped without publishing, retrying it would never
// end differently.
func (p *Poller) tick(ctx context.Context) (int, error) {
	dispatched := 0
	err := p.store.WithTx(ctx, func(q store.Querier) error {
		now := p.now()
		rows, err := p.store.ClaimDue(ctx, q, p.cfg.Kind, now, p.cfg.Batch)
		if err != nil {
			return err
		}

		for _, row := range rows {
			ev, ttl, err := p.builder(now, row)
			if err != nil {
				// A row the builder rejects can never produce a valid event.
				// Rolling back would put it at the head of every later claim
				// and wedge this kind behind it; stamp it and move on.
				p.logger.Error("ROW_UNBUILDABLE", "row_id", row.ID, "err", err)
				p.metrics.DispatchError.WithLabelValues(string(p.cfg.Kind)).Inc()
				if err := p.store.MarkDispatched(ctx, q, row.ID, now); err != nil {
					return err
				}
				continue
			}
			if ttl != nil {
				err = p.dispatcher.PublishTTL(ctx, ev, *ttl)
			} else {
				err = p.dispatcher.Publish(ctx, ev)
			}
			if err != nil {
				return fmt.Errorf("daemon: publish row %s: %w", row.ID, err)
			}
			if err := p.store.MarkDispatched(ctx, q, row.ID, now); err != nil {
				return err
			}
			dispatched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.metrics.Dispatched.WithLabelValues(string(p.cfg.Kind)).Add(float64(dispatched))
	return dispatched, nil
}
