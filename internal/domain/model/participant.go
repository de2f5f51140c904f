package model

import (
	"time"

	"github.com/google/uuid"
)

// PositionType distinguishes how a participant row came to exist.
type PositionType string

const (
	// PositionPrePopulated rows were placed by the host (real users and
	// placeholders alike) and sort ahead of self-added rows.
	PositionPrePopulated PositionType = "PRE_POPULATED"
	PositionSelfAdded    PositionType = "SELF_ADDED"
)

// Participant is one row in a session's roster.
//
// UserID nil means a placeholder added by the host; DisplayName is required
// in that case and ignored otherwise (display names of real users resolve
// live). UNIQUE(session_id, user_id) WHERE user_id IS NOT NULL is the sole
// double-join guard; callers must not pre-check.
type Participant struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	UserID      *uuid.UUID
	DisplayName *string
	JoinedAt    time.Time
	Position    PositionType
	// PreFillPosition preserves the host's stated ordering within the
	// pre-populated tier. Nil sorts after every set position.
	PreFillPosition *int
}

// IsPlaceholder reports whether the row names no real user.
func (p *Participant) IsPlaceholder() bool { return p.UserID == nil }
