package event

import (
	"time"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// All payload IDs are string-encoded UUIDs or opaque external snowflakes.

type SessionCreated struct {
	SessionID     string  `json:"session_id"`
	NotifyRoleIDs []int64 `json:"notify_role_ids"`
}

func (SessionCreated) Type() string       { return "session.created" }
func (SessionCreated) RoutingKey() string { return RouteGameCreated }

type SessionUpdated struct {
	SessionID string `json:"session_id"`
}

func (SessionUpdated) Type() string       { return "session.updated" }
func (SessionUpdated) RoutingKey() string { return RouteGameUpdated }

// SessionDeleted carries the announcement coordinates because the database
// row is already gone by the time a consumer sees this.
type SessionDeleted struct {
	SessionID             string `json:"session_id"`
	AnnouncementMessageID *int64 `json:"announcement_message_id,omitempty"`
	AnnouncementChannelID *int64 `json:"announcement_channel_id,omitempty"`
}

func (SessionDeleted) Type() string       { return "session.deleted" }
func (SessionDeleted) RoutingKey() string { return RouteGameDeleted }

type SessionCancelled struct {
	SessionID string `json:"session_id"`
}

func (SessionCancelled) Type() string       { return "session.cancelled" }
func (SessionCancelled) RoutingKey() string { return RouteGameCancelled }

type ParticipantJoined struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (ParticipantJoined) Type() string       { return RouteParticipantJoined }
func (ParticipantJoined) RoutingKey() string { return RouteParticipantJoined }

type ParticipantLeft struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (ParticipantLeft) Type() string       { return RouteParticipantLeft }
func (ParticipantLeft) RoutingKey() string { return RouteParticipantLeft }

type ParticipantRemoved struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	RemovedBy string `json:"removed_by"`
}

func (ParticipantRemoved) Type() string       { return RouteParticipantRemoved }
func (ParticipantRemoved) RoutingKey() string { return RouteParticipantRemoved }

type ParticipantPromoted struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (ParticipantPromoted) Type() string       { return RouteParticipantPromoted }
func (ParticipantPromoted) RoutingKey() string { return RouteParticipantPromoted }

// ReminderDue carries the offset that produced it plus a copy of the game
// start so consumers can run the staleness check without a DB read.
type ReminderDue struct {
	SessionID       string    `json:"session_id"`
	OffsetMinutes   int       `json:"offset_minutes"`
	GameScheduledAt time.Time `json:"game_scheduled_at"`
}

func (ReminderDue) Type() string       { return RouteReminderDue }
func (ReminderDue) RoutingKey() string { return RouteReminderDue }

type StatusChanged struct {
	SessionID    string       `json:"session_id"`
	TargetStatus model.Status `json:"target_status"`
}

func (StatusChanged) Type() string       { return RouteStatusChanged }
func (StatusChanged) RoutingKey() string { return RouteStatusChanged }
