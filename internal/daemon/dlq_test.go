package daemon

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
)

type capturePublisher struct {
	topics []string
	msgs   []*message.Message
	err    error
}

func (p *capturePublisher) Publish(topic string, msgs ...*message.Message) error {
	if p.err != nil {
		return p.err
	}
	for _, m := range msgs {
		p.topics = append(p.topics, topic)
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func newTestDrainer(pub *capturePublisher) *Drainer {
	return NewDrainer(DrainerConfig{}, nil, pub,
		slog.New(slog.DiscardHandler), NewMetrics(prometheus.NewRegistry()))
}

func deadMessage(routingKey string) *message.Message {
	msg := message.NewMessage("msg-1", []byte(`{"type":"reminder.due"}`))
	if routingKey != "" {
		msg.Metadata.Set(adapter.RoutingKeyMetadataKey, routingKey)
	}
	msg.Metadata.Set(infrapubsub.ExpirationMetadataKey, "60000")
	return msg
}

func TestRedeliverStripsExpiration(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDrainer(pub)

	msg := deadMessage("reminder.due")
	assert.True(t, d.redeliver(msg))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "reminder.due", pub.topics[0])
	assert.Empty(t, pub.msgs[0].Metadata.Get(infrapubsub.ExpirationMetadataKey),
		"redelivered messages must not expire a second time")
	assert.Equal(t, "reminder.due", pub.msgs[0].Metadata.Get(adapter.RoutingKeyMetadataKey))
	assert.Equal(t, msg.Payload, pub.msgs[0].Payload)
}

func TestRedeliverDropsUnroutable(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDrainer(pub)

	assert.False(t, d.redeliver(deadMessage("")))
	assert.Empty(t, pub.msgs)
}

func TestRedeliverRequeuesOnPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	d := newTestDrainer(pub)

	assert.False(t, d.redeliver(deadMessage("reminder.due")))
}
