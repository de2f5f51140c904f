package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Broker topology: one durable topic exchange carries every event; NACKed
// and TTL-expired messages dead-letter into the DLX, which fans into a
// single catch-all DLQ drained by the poller daemons.
const (
	MainExchange       = "main"
	DeadLetterExchange = "main.dlx"
	DeadLetterQueue    = "main.dlq"
)

// ExpirationMetadataKey carries the per-message TTL (milliseconds, decimal
// string) in watermill metadata. The marshaler lifts it into the AMQP
// expiration property; absence means the message never expires.
const ExpirationMetadataKey = "x-gamenight-expiration-ms"

// Factory builds publishers and subscribers that share one AMQP connection
// per process.
type Factory struct {
	conn   *amqp.ConnectionWrapper
	logger watermill.LoggerAdapter
}

func NewFactory(uri string, logger watermill.LoggerAdapter) (*Factory, error) {
	conn, err := amqp.NewConnection(amqp.ConnectionConfig{AmqpURI: uri}, logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: amqp connect: %w", err)
	}
	return &Factory{conn: conn, logger: logger}, nil
}

func (f *Factory) Close() error { return f.conn.Close() }

// marshaler persists deliveries and honors the expiration metadata key.
func marshaler() amqp.Marshaler {
	return amqp.DefaultMarshaler{
		PostprocessPublishing: func(p amqp091.Publishing) amqp091.Publishing {
			p.DeliveryMode = amqp091.Persistent
			if exp, ok := p.Headers[ExpirationMetadataKey].(string); ok {
				p.Expiration = exp
				delete(p.Headers, ExpirationMetadataKey)
			}
			return p
		},
	}
}

// Publisher publishes to the main topic exchange; the watermill topic is the
// AMQP routing key. Publisher confirms are on: a returned nil means the
// broker owns the message.
func (f *Factory) Publisher() (message.Publisher, error) {
	cfg := amqp.Config{
		Connection: amqp.ConnectionConfig{},
		Marshaler:  marshaler(),
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return MainExchange },
			Type:         "topic",
			Durable:      true,
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
			ConfirmDelivery:    true,
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
	pub, err := amqp.NewPublisherWithConnection(cfg, f.logger, f.conn)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build publisher: %w", err)
	}
	return pub, nil
}

// Subscriber builds a durable consumer queue bound to the main exchange.
// queue is the stable per-service queue name; the watermill topic passed to
// Subscribe is the binding routing key. prefetch bounds concurrent in-flight
// handlers; NACKs never requeue, they dead-letter.
func (f *Factory) Subscriber(queue string, prefetch int) (message.Subscriber, error) {
	cfg := amqp.Config{
		Connection: amqp.ConnectionConfig{},
		Marshaler:  marshaler(),
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return MainExchange },
			Type:         "topic",
			Durable:      true,
		},
		Queue: amqp.QueueConfig{
			GenerateName: func(topic string) string {
				return fmt.Sprintf("%s.%s", queue, topic)
			},
			Durable: true,
			Arguments: amqp091.Table{
				"x-dead-letter-exchange": DeadLetterExchange,
			},
		},
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		Consume: amqp.ConsumeConfig{
			Qos:             amqp.QosConfig{PrefetchCount: prefetch},
			NoRequeueOnNack: true,
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
	sub, err := amqp.NewSubscriberWithConnection(cfg, f.logger, f.conn)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build subscriber %q: %w", queue, err)
	}
	return sub, nil
}

// DeadLetterSubscriber consumes the catch-all DLQ. The queue binds "#" on
// the dead-letter exchange so every dead-lettered message lands here,
// whatever routing key it died with.
func (f *Factory) DeadLetterSubscriber() (message.Subscriber, error) {
	cfg := amqp.Config{
		Connection: amqp.ConnectionConfig{},
		Marshaler:  deadLetterMarshaler{},
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return DeadLetterExchange },
			Type:         "topic",
			Durable:      true,
		},
		Queue: amqp.QueueConfig{
			GenerateName: func(string) string { return DeadLetterQueue },
			Durable:      true,
		},
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(string) string { return "#" },
		},
		Consume: amqp.ConsumeConfig{
			Qos:             amqp.QosConfig{PrefetchCount: 1},
			NoRequeueOnNack: false,
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
	sub, err := amqp.NewSubscriberWithConnection(cfg, f.logger, f.conn)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build DLQ subscriber: %w", err)
	}
	return sub, nil
}
