package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys on the main topic exchange. Session lifecycle events ride the
// game.* family; the remaining families use their type name verbatim.
const (
	RouteGameCreated   = "game.created"
	RouteGameUpdated   = "game.updated"
	RouteGameDeleted   = "game.deleted"
	RouteGameCancelled = "game.cancelled"

	RouteParticipantJoined   = "participant.joined"
	RouteParticipantLeft     = "participant.left"
	RouteParticipantRemoved  = "participant.removed"
	RouteParticipantPromoted = "participant.promoted"

	RouteReminderDue   = "reminder.due"
	RouteStatusChanged = "session.status_changed"
)

// Event is the contract for everything published on the bus.
// Type is the wire name carried in the envelope header; RoutingKey is the
// topic the broker routes on. They differ only for the session lifecycle
// family.
type Event interface {
	Type() string
	RoutingKey() string
}

// Envelope is the JSON object actually placed on the wire.
type Envelope struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Wrap marshals ev into its envelope, stamped with now (UTC).
func Wrap(ev Event, now time.Time) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:       ev.Type(),
		Data:       data,
		OccurredAt: now.UTC(),
	})
}

// Open parses the envelope and returns the header plus raw payload.
func Open(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("event: bad envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("event: envelope without type")
	}
	return env, nil
}
