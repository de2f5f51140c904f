package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a game session.
// The progression is monotone; CANCELLED is terminal from any state.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const DefaultDurationMinutes = 60

// Session is a scheduled play event announced in a single channel.
//
// All timestamps are naive UTC: the application layer owns the "this is UTC"
// invariant, the database stores TIMESTAMP without a zone.
type Session struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ChannelID   uuid.UUID
	HostUserID  uuid.UUID
	Title       string
	Description *string
	SignupNotes *string
	ScheduledAt time.Time
	// DurationMinutes is nil when the session uses the 60 minute default.
	DurationMinutes *int
	Status          Status
	MinPlayers      *int
	MaxPlayers      *int
	// ReminderOffsets nil means "inherit from channel, then tenant".
	ReminderOffsets []int
	NotifyRoleIDs   []int64

	// AnnouncementMessageID / AnnouncementChannelID point at the chat message
	// the announcer owns. Both nil until the created event is consumed.
	AnnouncementMessageID *int64
	AnnouncementChannelID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EndsAt is the instant the session is considered over.
func (s *Session) EndsAt() time.Time {
	d := DefaultDurationMinutes
	if s.DurationMinutes != nil {
		d = *s.DurationMinutes
	}
	return s.ScheduledAt.Add(time.Duration(d) * time.Minute)
}
