package http

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/roster"
	"github.com/gamenight/scheduler/internal/store"
)

type sessionResponse struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	ChannelID       uuid.UUID `json:"channel_id"`
	HostUserID      uuid.UUID `json:"host_user_id"`
	Title           string    `json:"title"`
	Description     *string   `json:"description,omitempty"`
	SignupNotes     *string   `json:"signup_notes,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Status          string    `json:"status"`
	MinPlayers      *int      `json:"min_players,omitempty"`
	MaxPlayers      *int      `json:"max_players,omitempty"`
	ReminderOffsets []int     `json:"reminder_offsets,omitempty"`
	NotifyRoleIDs   []string  `json:"notify_role_ids,omitempty"`
	AnnouncedAt     bool      `json:"announced"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type participantResponse struct {
	ID              uuid.UUID  `json:"id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	UserExternalID  *string    `json:"user_external_id,omitempty"`
	DisplayName     *string    `json:"display_name,omitempty"`
	JoinedAt        time.Time  `json:"joined_at"`
	Position        string     `json:"position"`
	PreFillPosition *int       `json:"pre_fill_position,omitempty"`
	Seat            string     `json:"seat"` // confirmed or waitlist
}

type sessionDetailResponse struct {
	Session sessionResponse       `json:"session"`
	Roster  []participantResponse `json:"roster"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	roles := make([]string, 0, len(s.NotifyRoleIDs))
	for _, id := range s.NotifyRoleIDs {
		roles = append(roles, strconv.FormatInt(id, 10))
	}
	return sessionResponse{
		ID:              s.ID,
		TenantID:        s.TenantID,
		ChannelID:       s.ChannelID,
		HostUserID:      s.HostUserID,
		Title:           s.Title,
		Description:     s.Description,
		SignupNotes:     s.SignupNotes,
		ScheduledAt:     s.ScheduledAt,
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		MinPlayers:      s.MinPlayers,
		MaxPlayers:      s.MaxPlayers,
		ReminderOffsets: s.ReminderOffsets,
		NotifyRoleIDs:   roles,
		AnnouncedAt:     s.AnnouncementMessageID != nil,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// toDetailResponse runs the arbiter so clients see the same confirmed and
// waitlist split the announcement shows. nameFor fills display names for
// real users; nil leaves them unset.
func toDetailResponse(sess *model.Session, entries []store.RosterEntry, nameFor func(userExternalID int64) string) sessionDetailResponse {
	participants := make([]model.Participant, len(entries))
	for i := range entries {
		participants[i] = entries[i].Participant
	}
	part := roster.Arbiter(participants, sess.MaxPlayers)

	confirmed := make(map[uuid.UUID]bool, len(part.Confirmed))
	for _, p := range part.Confirmed {
		confirmed[p.ID] = true
	}

	out := sessionDetailResponse{Session: toSessionResponse(sess)}
	for i := range entries {
		e := &entries[i]
		seat := "waitlist"
		if confirmed[e.ID] {
			seat = "confirmed"
		}
		var ext *string
		displayName := e.DisplayName
		if e.UserExternalID != nil {
			s := strconv.FormatInt(*e.UserExternalID, 10)
			ext = &s
			if displayName == nil && nameFor != nil {
				n := nameFor(*e.UserExternalID)
				displayName = &n
			}
		}
		out.Roster = append(out.Roster, participantResponse{
			ID:              e.ID,
			UserID:          e.UserID,
			UserExternalID:  ext,
			DisplayName:     displayName,
			JoinedAt:        e.JoinedAt,
			Position:        string(e.Position),
			PreFillPosition: e.PreFillPosition,
			Seat:            seat,
		})
	}
	return out
}

type tenantResponse struct {
	ExternalID             string   `json:"tenant_id"`
	DefaultMaxPlayers      *int     `json:"default_max_players,omitempty"`
	DefaultReminderOffsets []int    `json:"default_reminder_offsets,omitempty"`
	HostRoleIDs            []string `json:"host_role_ids"`
	ManagerRoleIDs         []string `json:"manager_role_ids"`
	NotifyRoleIDs          []string `json:"notify_role_ids"`
}

func toTenantResponse(t *model.Tenant) tenantResponse {
	return tenantResponse{
		ExternalID:             strconv.FormatInt(t.ExternalID, 10),
		DefaultMaxPlayers:      t.DefaultMaxPlayers,
		DefaultReminderOffsets: t.DefaultReminderOffsets,
		HostRoleIDs:            formatRoles(t.HostRoleIDs),
		ManagerRoleIDs:         formatRoles(t.ManagerRoleIDs),
		NotifyRoleIDs:          formatRoles(t.NotifyRoleIDs),
	}
}

func formatRoles(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out
}

type channelResponse struct {
	ID                      uuid.UUID `json:"id"`
	ExternalID              string    `json:"channel_id"`
	MaxPlayersOverride      *int      `json:"max_players_override,omitempty"`
	ReminderOffsetsOverride []int     `json:"reminder_offsets_override,omitempty"`
	Category                *string   `json:"category,omitempty"`
	Active                  bool      `json:"active"`
}

func toChannelResponse(c *model.Channel) channelResponse {
	return channelResponse{
		ID:                      c.ID,
		ExternalID:              strconv.FormatInt(c.ExternalID, 10),
		MaxPlayersOverride:      c.MaxPlayersOverride,
		ReminderOffsetsOverride: c.ReminderOffsetsOverride,
		Category:                c.Category,
		Active:                  c.Active,
	}
}

type templateResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Title           *string   `json:"title,omitempty"`
	Description     *string   `json:"description,omitempty"`
	SignupNotes     *string   `json:"signup_notes,omitempty"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	MinPlayers      *int      `json:"min_players,omitempty"`
	MaxPlayers      *int      `json:"max_players,omitempty"`
	ReminderOffsets []int     `json:"reminder_offsets,omitempty"`
	Ordering        int       `json:"ordering"`
	IsDefault       bool      `json:"is_default"`
}

func toTemplateResponse(t *model.Template) templateResponse {
	return templateResponse{
		ID:              t.ID,
		Name:            t.Name,
		Title:           t.Title,
		Description:     t.Description,
		SignupNotes:     t.SignupNotes,
		DurationMinutes: t.DurationMinutes,
		MinPlayers:      t.MinPlayers,
		MaxPlayers:      t.MaxPlayers,
		ReminderOffsets: t.ReminderOffsets,
		Ordering:        t.Ordering,
		IsDefault:       t.IsDefault,
	}
}
