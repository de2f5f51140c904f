// Package chat talks to the chat platform's REST API. The gateway (realtime
// socket) is not managed here; interactions arrive as webhooks and outbound
// traffic is plain HTTP.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Member is a tenant member as the platform reports it.
type Member struct {
	UserExternalID int64
	Username       string
	DisplayName    string
	RoleIDs        []int64
}

// Button is one interactive control attached to an announcement.
type Button struct {
	Label    string
	CustomID string
	Disabled bool
}

// EmbedField is a titled line of structured data in the announcement embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed carries the structured part of an announcement; role mentions live
// in the plain Content so platform-native pings fire.
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
	Color       int
}

// OutboundMessage is everything the announcer renders.
type OutboundMessage struct {
	Content string
	Embed   *Embed
	Buttons []Button
}

// Client is the announcer's and router's view of the platform. Every call
// respects ctx deadlines; implementations classify failures with the
// package's sentinel errors so callers can tell permanent from transient.
type Client interface {
	CreateMessage(ctx context.Context, channelExternalID int64, msg OutboundMessage) (messageID int64, err error)
	EditMessage(ctx context.Context, channelExternalID, messageID int64, msg OutboundMessage) error
	DeleteMessage(ctx context.Context, channelExternalID, messageID int64) error

	// SendDM opens (or reuses) the DM channel and delivers content.
	SendDM(ctx context.Context, userExternalID int64, content string) error

	// SearchMembers resolves a name fragment to tenant members, for
	// @mention resolution in the mutation API.
	SearchMembers(ctx context.Context, tenantExternalID int64, query string, limit int) ([]Member, error)

	// GetMember fetches one member by snowflake, for display-name
	// resolution.
	GetMember(ctx context.Context, tenantExternalID, userExternalID int64) (Member, error)

	// MembersWithAnyRole lists members holding at least one of roleIDs.
	MembersWithAnyRole(ctx context.Context, tenantExternalID int64, roleIDs []int64) ([]Member, error)

	// AckInteraction defers an interaction response within the platform's
	// 3 second budget. interactionID/token identify the click.
	AckInteraction(ctx context.Context, interactionID uuid.UUID, token string) error
}

// DefaultTimeout bounds every platform call; expiry surfaces as a
// TransientError.
const DefaultTimeout = 10 * time.Second
