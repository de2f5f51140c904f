// Package amqp wires the announcer to the broker: one durable queue per
// event family, manual acks, and dead-lettering for anything a handler could
// not finish.
package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
	"github.com/gamenight/scheduler/internal/announce"
	"github.com/gamenight/scheduler/internal/domain/event"
)

// AnnouncerQueue prefixes every consumer queue this service owns. The queue
// names are stable across nodes: multiple instances share the queues and the
// broker load-balances, each event is handled once.
const AnnouncerQueue = "gamenight.announcer.v1"

const consumerPrefetch = 16

type AnnounceHandler struct {
	announcer *announce.Announcer
	logger    *slog.Logger
}

func NewAnnounceHandler(announcer *announce.Announcer, logger *slog.Logger) *AnnounceHandler {
	return &AnnounceHandler{announcer: announcer, logger: logger}
}

func NewWatermillRouter(wmLogger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, wmLogger)
}

// RegisterHandlers binds every event family to its announcer method.
func (h *AnnounceHandler) RegisterHandlers(router *message.Router, factory *infrapubsub.Factory) error {
	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_GAME_CREATED", event.RouteGameCreated, Bind(h, h.announcer.OnSessionCreated)},
		{"ON_GAME_UPDATED", event.RouteGameUpdated, Bind(h, h.announcer.OnSessionUpdated)},
		{"ON_GAME_DELETED", event.RouteGameDeleted, Bind(h, h.announcer.OnSessionDeleted)},
		{"ON_GAME_CANCELLED", event.RouteGameCancelled, Bind(h, h.announcer.OnSessionCancelled)},
		{"ON_PARTICIPANT_JOINED", event.RouteParticipantJoined, Bind(h, h.announcer.OnParticipantJoined)},
		{"ON_PARTICIPANT_LEFT", event.RouteParticipantLeft, Bind(h, h.announcer.OnParticipantLeft)},
		{"ON_PARTICIPANT_REMOVED", event.RouteParticipantRemoved, Bind(h, h.announcer.OnParticipantRemoved)},
		{"ON_PARTICIPANT_PROMOTED", event.RouteParticipantPromoted, Bind(h, h.announcer.OnParticipantPromoted)},
		{"ON_REMINDER_DUE", event.RouteReminderDue, Bind(h, h.announcer.OnReminderDue)},
		{"ON_STATUS_CHANGED", event.RouteStatusChanged, Bind(h, h.announcer.OnStatusChanged)},
	}

	for _, c := range configs {
		handlerQueue := fmt.Sprintf("%s.%s", AnnouncerQueue, c.name)

		sub, err := factory.Subscriber(handlerQueue, consumerPrefetch)
		if err != nil {
			return err
		}

		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			middleware.Timeout(30*time.Second),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "queue", AnnouncerQueue, "handlers", len(configs))
	return nil
}
