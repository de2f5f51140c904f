package pubsub

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	"github.com/gamenight/scheduler/internal/domain/event"
)

// RoutingKeyMetadataKey records the original routing key in watermill
// metadata for the benefit of the dead-letter drain.
const RoutingKeyMetadataKey = "x-original-routing-key"

// EventDispatcher is the high-level contract for outgoing events. Handlers
// and daemons stay agnostic of the transport implementation.
type EventDispatcher interface {
	// Publish emits ev on the main exchange under its routing key.
	Publish(ctx context.Context, ev event.Event) error
	// PublishTTL emits ev with a per-message expiration. A non-positive ttl
	// publishes an already-expired message, which the broker dead-letters
	// immediately; callers guard against that where it matters.
	PublishTTL(ctx context.Context, ev event.Event, ttl time.Duration) error
	Publisher() message.Publisher
}

type eventDispatcher struct {
	publisher message.Publisher
	now       func() time.Time
}

func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{publisher: pub, now: time.Now}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Event) error {
	return d.publish(ctx, ev, nil)
}

func (d *eventDispatcher) PublishTTL(ctx context.Context, ev event.Event, ttl time.Duration) error {
	return d.publish(ctx, ev, &ttl)
}

func (d *eventDispatcher) publish(ctx context.Context, ev event.Event, ttl *time.Duration) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	payload, err := event.Wrap(ev, d.now())
	if err != nil {
		return fmt.Errorf("event dispatcher: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", ev.Type())
	// The DLQ drain republishes on the original topic; the broker does not
	// give it back to us, so carry it ourselves.
	msg.Metadata.Set(RoutingKeyMetadataKey, ev.RoutingKey())
	if ttl != nil {
		ms := ttl.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		msg.Metadata.Set(infrapubsub.ExpirationMetadataKey, strconv.FormatInt(ms, 10))
	}

	if err := d.publisher.Publish(ev.RoutingKey(), msg); err != nil {
		return fmt.Errorf("event dispatcher: publish to %s: %w", ev.RoutingKey(), err)
	}
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
