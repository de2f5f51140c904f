package pubsub

import (
	"testing"

	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterUnmarshalKeepsStringHeaders(t *testing.T) {
	msg, err := deadLetterMarshaler{}.Unmarshal(amqp091.Delivery{
		Body: []byte(`{}`),
		Headers: amqp091.Table{
			amqp.DefaultMessageUUIDHeaderKey: "msg-1",
			"routing_key":                    "session.updated",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.UUID)
	assert.Equal(t, "session.updated", msg.Metadata.Get("routing_key"))
	assert.Empty(t, msg.Metadata.Get(amqp.DefaultMessageUUIDHeaderKey))
}

func TestDeadLetterUnmarshalFlattensDeathTrail(t *testing.T) {
	death := []any{amqp091.Table{
		"queue":  "main.dlq",
		"reason": "expired",
		"count":  int64(3),
	}}
	msg, err := deadLetterMarshaler{}.Unmarshal(amqp091.Delivery{
		Body:    []byte(`{}`),
		Headers: amqp091.Table{"x-death": death},
	})
	require.NoError(t, err)

	trail := msg.Metadata.Get("x-death")
	require.NotEmpty(t, trail, "the dead-letter trail must survive the drain")
	assert.Contains(t, trail, `"reason":"expired"`)
	assert.Contains(t, trail, `"count":3`)
}
