package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
)

// drainIdle ends a drain window once the DLQ stops producing messages.
const drainIdle = 2 * time.Second

// DrainerConfig sizes the dead-letter drain.
type DrainerConfig struct {
	// Interval between drain windows. Kept long relative to the pollers so a
	// consumer outage cycles messages slowly instead of hot-looping them
	// between queue and DLQ.
	Interval time.Duration
	// MaxBatch caps messages moved per window.
	MaxBatch int
}

func (c DrainerConfig) withDefaults() DrainerConfig {
	if c.Interval <= 0 {
		c.Interval = 15 * 60 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 500
	}
	return c
}

// Drainer periodically moves dead-lettered messages back onto the main
// exchange under their original routing key. The expiration header is
// stripped on the way out: an expired reminder must not expire again, the
// consumer's staleness check decides what it is still worth.
type Drainer struct {
	cfg        DrainerConfig
	subscriber message.Subscriber
	publisher  message.Publisher
	logger     *slog.Logger
	metrics    *Metrics
}

func NewDrainer(cfg DrainerConfig, sub message.Subscriber, pub message.Publisher, logger *slog.Logger, metrics *Metrics) *Drainer {
	return &Drainer{
		cfg:        cfg.withDefaults(),
		subscriber: sub,
		publisher:  pub,
		logger:     logger.With("daemon", "dlq-drain"),
		metrics:    metrics,
	}
}

// Run drains until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	d.logger.Info("DRAINER_STARTED", "interval", d.cfg.Interval)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("DRAINER_STOPPED")
			return ctx.Err()
		case <-ticker.C:
		}

		if n, err := d.drain(ctx); err != nil {
			d.logger.Error("DRAIN_FAILED", "err", err)
		} else if n > 0 {
			d.logger.Info("DRAIN_COMPLETE", "redelivered", n)
		}
	}
}

// drain opens one consume window on the DLQ and republishes everything it
// can until the queue runs dry or the batch cap is hit.
func (d *Drainer) drain(ctx context.Context) (int, error) {
	windowCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs, err := d.subscriber.Subscribe(windowCtx, infrapubsub.DeadLetterQueue)
	if err != nil {
		return 0, err
	}

	idle := time.NewTimer(drainIdle)
	defer idle.Stop()

	moved := 0
	for moved < d.cfg.MaxBatch {
		select {
		case <-ctx.Done():
			return moved, nil
		case <-idle.C:
			return moved, nil
		case msg, ok := <-msgs:
			if !ok {
				return moved, nil
			}
			if d.redeliver(msg) {
				moved++
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(drainIdle)
		}
	}
	return moved, nil
}

// redeliver republishes one dead-lettered message, reporting whether it made
// it back onto the main exchange. Messages that never carried a routing key
// cannot be routed again and are dropped with a trace.
func (d *Drainer) redeliver(msg *message.Message) bool {
	topic := msg.Metadata.Get(adapter.RoutingKeyMetadataKey)
	if topic == "" {
		d.logger.Warn("DLQ_MESSAGE_UNROUTABLE", "msg_id", msg.UUID)
		d.metrics.DrainDropped.Inc()
		msg.Ack()
		return false
	}

	out := message.NewMessage(msg.UUID, msg.Payload)
	out.Metadata = msg.Metadata
	delete(out.Metadata, infrapubsub.ExpirationMetadataKey)

	if err := d.publisher.Publish(topic, out); err != nil {
		d.logger.Error("DLQ_REPUBLISH_FAILED", "msg_id", msg.UUID, "topic", topic, "err", err)
		// Requeue on the DLQ; the next window retries.
		msg.Nack()
		return false
	}
	d.metrics.Redelivered.Inc()
	msg.Ack()
	return true
}
