package pubsub

import (
	"encoding/json"

	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// deadLetterMarshaler reads deliveries off the DLQ. The broker stamps
// dead-lettered messages with an x-death header whose value is a table, and
// the default marshaler rejects any non-string header. This one keeps the
// string headers as metadata and flattens the structured ones to JSON, so a
// drained message still carries its dead-letter trail when it goes back out.
type deadLetterMarshaler struct {
	amqp.DefaultMarshaler
}

func (m deadLetterMarshaler) Unmarshal(amqpMsg amqp091.Delivery) (*message.Message, error) {
	msgUUID, ok := amqpMsg.Headers[amqp.DefaultMessageUUIDHeaderKey].(string)
	if !ok {
		msgUUID = amqpMsg.MessageId
	}

	msg := message.NewMessage(msgUUID, amqpMsg.Body)
	for key, value := range amqpMsg.Headers {
		if key == amqp.DefaultMessageUUIDHeaderKey {
			continue
		}
		switch v := value.(type) {
		case string:
			msg.Metadata.Set(key, v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue // Not representable; drop this header only.
			}
			msg.Metadata.Set(key, string(b))
		}
	}
	return msg, nil
}
