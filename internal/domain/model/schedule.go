package model

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleKind partitions the notification schedule into event families,
// each polled by its own daemon instance.
type ScheduleKind string

const (
	KindReminder         ScheduleKind = "REMINDER"
	KindStatusTransition ScheduleKind = "STATUS_TRANSITION"
)

// SchedulePayload is the free-form per-kind payload of a schedule row.
// REMINDER rows set OffsetMinutes; STATUS_TRANSITION rows set TargetStatus.
type SchedulePayload struct {
	OffsetMinutes int    `json:"offset_minutes,omitempty"`
	TargetStatus  Status `json:"target_status,omitempty"`
}

// ScheduleRow is one persisted future instant awaiting dispatch.
//
// Rows are never dispatched twice: the poller's dispatched_at IS NULL
// predicate combined with the in-transaction update is the guard. Dispatched
// rows are kept as an audit trail; the materializer only ever replaces
// future-dated, not-yet-dispatched rows.
type ScheduleRow struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Kind      ScheduleKind
	DueAt     time.Time
	// GameScheduledAt is a redundant copy of the session's scheduled_at taken
	// when the row was materialized, used for staleness checks and TTLs
	// without a join.
	GameScheduledAt time.Time
	Payload         SchedulePayload
	DispatchedAt    *time.Time
}
