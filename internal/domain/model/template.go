package model

import (
	"time"

	"github.com/google/uuid"
)

// Template holds user-authored defaults for new sessions. Sessions snapshot
// template values at creation time; later template edits do not propagate.
type Template struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string

	Title           *string
	Description     *string
	SignupNotes     *string
	DurationMinutes *int
	MinPlayers      *int
	MaxPlayers      *int
	ReminderOffsets []int

	// Ordering controls display order in pickers; IsDefault is unique per
	// tenant (enforced by a partial unique index).
	Ordering  int
	IsDefault bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
