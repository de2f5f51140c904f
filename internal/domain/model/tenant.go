package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a top-level isolation scope: one chat-platform guild.
// Created on first reference, never deleted while sessions exist.
type Tenant struct {
	ID         uuid.UUID
	ExternalID int64

	DefaultMaxPlayers *int
	// DefaultReminderOffsets are minutes before scheduled_at, ordered as the
	// admin entered them. Empty falls back to the built-in [60, 15].
	DefaultReminderOffsets []int

	HostRoleIDs    []int64
	ManagerRoleIDs []int64
	NotifyRoleIDs  []int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel is one announcement target inside a tenant. Nil override fields
// inherit the tenant defaults for sessions created in this channel.
type Channel struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ExternalID int64

	MaxPlayersOverride      *int
	ReminderOffsetsOverride []int
	Category                *string
	Active                  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a ledger entry bridging the platform snowflake to an internal id.
type User struct {
	ID         uuid.UUID
	ExternalID int64
	CreatedAt  time.Time
}
