package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	"github.com/gamenight/scheduler/internal/domain/event"
)

type capturingPublisher struct {
	topic string
	msgs  []*message.Message
	err   error
}

func (p *capturingPublisher) Publish(topic string, msgs ...*message.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func TestDispatcherWrapsEnvelope(t *testing.T) {
	pub := &capturingPublisher{}
	d := &eventDispatcher{publisher: pub, now: func() time.Time {
		return time.Date(2030, 1, 1, 19, 0, 0, 0, time.UTC)
	}}

	err := d.Publish(context.Background(), event.SessionUpdated{SessionID: "abc"})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, event.RouteGameUpdated, pub.topic)

	var env event.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].Payload, &env))
	assert.Equal(t, "session.updated", env.Type)
	assert.Equal(t, time.Date(2030, 1, 1, 19, 0, 0, 0, time.UTC), env.OccurredAt)

	// No TTL requested, no expiration metadata.
	assert.Empty(t, pub.msgs[0].Metadata.Get(infrapubsub.ExpirationMetadataKey))
}

func TestDispatcherTTLMetadata(t *testing.T) {
	pub := &capturingPublisher{}
	d := &eventDispatcher{publisher: pub, now: time.Now}

	err := d.PublishTTL(context.Background(), event.ReminderDue{SessionID: "s"}, time.Hour)
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "3600000", pub.msgs[0].Metadata.Get(infrapubsub.ExpirationMetadataKey))
}

func TestDispatcherNegativeTTLClampedToZero(t *testing.T) {
	pub := &capturingPublisher{}
	d := &eventDispatcher{publisher: pub, now: time.Now}

	err := d.PublishTTL(context.Background(), event.ReminderDue{SessionID: "s"}, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "0", pub.msgs[0].Metadata.Get(infrapubsub.ExpirationMetadataKey))
}

func TestDispatcherNilEvent(t *testing.T) {
	d := NewEventDispatcher(&capturingPublisher{})
	assert.Error(t, d.Publish(context.Background(), nil))
}
