package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/gamenight/scheduler/internal/domain/event"
)

// DomainHandler is the shape of every announcer method.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// Bind bridges watermill to a typed handler. Returning nil ACKs; returning
// an error NACKs, and the queue's no-requeue policy dead-letters the message
// for the drain to bring back later.
//
// The split is deliberate: anything unparseable is a poison pill and gets
// ACKed with a trace, because redelivery cannot fix a malformed payload.
// Handler errors are assumed transient; handlers themselves swallow the
// permanent outcomes (missing session, deleted message, closed DMs) and
// return nil. A panic counts as a handler error, not a poison pill: the
// message itself parsed fine, so it dead-letters and the drain retries it.
func Bind[T any](h *AnnounceHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = fmt.Errorf("amqp: handler panic: %v", r)
			}
		}()

		env, err := event.Open(msg.Payload)
		if err != nil {
			h.logger.Error("ENVELOPE_DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil
		}

		payload := new(T)
		if err := json.Unmarshal(env.Data, payload); err != nil {
			h.logger.Error("PAYLOAD_DECODE_FAILED",
				"err", err, "type", env.Type, "msg_id", msg.UUID)
			return nil
		}

		return fn(msg.Context(), payload)
	}
}
