// Package service validates caller input, enforces authorization, and
// drives the store, materializer, and event bus from one transaction per
// mutation. Events publish only after the transaction commits; a rollback
// must never leave ghosts on the bus.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/infra/postgres"
	adapter "github.com/gamenight/scheduler/internal/adapter/pubsub"
	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/roster"
	"github.com/gamenight/scheduler/internal/scheduler"
	"github.com/gamenight/scheduler/internal/store"
)

type SessionService struct {
	store      *store.Store
	mat        *scheduler.Materializer
	dispatcher adapter.EventDispatcher
	chat       chat.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewSessionService(st *store.Store, mat *scheduler.Materializer, dispatcher adapter.EventDispatcher, client chat.Client, logger *slog.Logger) *SessionService {
	return &SessionService{
		store:      st,
		mat:        mat,
		dispatcher: dispatcher,
		chat:       client,
		logger:     logger.With("component", "sessions"),
		now:        time.Now,
	}
}

type CreateSessionInput struct {
	TenantExternalID  int64      `json:"tenant_id,string"`
	ChannelExternalID int64      `json:"channel_id,string"`
	TemplateID        *uuid.UUID `json:"template_id,omitempty"`

	Title           string    `json:"title"`
	Description     *string   `json:"description,omitempty"`
	SignupNotes     *string   `json:"signup_notes,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	MinPlayers      *int      `json:"min_players,omitempty"`
	MaxPlayers      *int      `json:"max_players,omitempty"`
	ReminderOffsets []int     `json:"reminder_offsets,omitempty"`
	NotifyRoleIDs   []int64   `json:"notify_role_ids,omitempty"`

	PrePopulated []RosterInput `json:"pre_populated,omitempty"`
}

// Create opens a session, seeds its pre-populated roster in the caller's
// order, and materializes its schedule, all in one transaction. The created
// event goes out after commit.
func (s *SessionService) Create(ctx context.Context, p *Principal, in CreateSessionInput) (*model.Session, error) {
	if !p.memberOf(in.TenantExternalID) {
		return nil, NotFound("tenant")
	}
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	tenant, err := s.store.GetTenantByExternalID(ctx, s.store.Q(), in.TenantExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("tenant")
	}
	if err != nil {
		return nil, Internal(err)
	}
	if !p.CanHost(tenant) {
		return nil, Denied("host role required")
	}

	seats, err := resolveRoster(ctx, s.chat, tenant, in.PrePopulated)
	if err != nil {
		return nil, err
	}

	var sess *model.Session
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		channel, err := s.store.GetChannelByExternalID(ctx, q, tenant.ID, in.ChannelExternalID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("channel")
		}
		if err != nil {
			return Internal(err)
		}
		if !channel.Active {
			return Invalid("channel does not accept announcements", nil)
		}

		if in.TemplateID != nil {
			tpl, err := s.store.GetTemplate(ctx, q, *in.TemplateID)
			if errors.Is(err, store.ErrNotFound) {
				return NotFound("template")
			}
			if err != nil {
				return Internal(err)
			}
			applyTemplate(&in, tpl)
		}

		sess = s.newSession(p, tenant, channel, in)
		if err := validateSession(sess, s.now()); err != nil {
			return err
		}

		if err := s.store.InsertSession(ctx, q, sess); err != nil {
			return Internal(err)
		}
		if err := s.seedRoster(ctx, q, sess, seats); err != nil {
			return err
		}

		offsets := scheduler.EffectiveOffsets(sess, channel, tenant)
		if _, err := s.mat.Materialize(ctx, s.store.ScheduleWriter(q), sess, offsets); err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.SessionCreated{
		SessionID:     sess.ID.String(),
		NotifyRoleIDs: s.notifyRoles(sess, tenant),
	})
	return sess, nil
}

type UpdateSessionInput struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	SignupNotes     *string    `json:"signup_notes,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	MinPlayers      *int       `json:"min_players,omitempty"`
	MaxPlayers      *int       `json:"max_players,omitempty"`
	ReminderOffsets []int      `json:"reminder_offsets,omitempty"`
	NotifyRoleIDs   []int64    `json:"notify_role_ids,omitempty"`

	// PrePopulated nil leaves the roster alone; a non-nil (possibly empty)
	// list is reconciled against the existing pre-populated tier.
	PrePopulated *[]RosterInput `json:"pre_populated,omitempty"`
}

// Update mutates the session under its row lock, reconciles the
// pre-populated roster, refreshes the schedule, and detects promotions.
func (s *SessionService) Update(ctx context.Context, p *Principal, sessionID uuid.UUID, in UpdateSessionInput) (*model.Session, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	// Resolution hits the chat platform; do it before taking the row lock.
	var seats []seat
	var tenant *model.Tenant
	preflight, err := s.store.GetSession(ctx, s.store.Q(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("session")
	}
	if err != nil {
		return nil, Internal(err)
	}
	tenant, err = s.store.GetTenant(ctx, s.store.Q(), preflight.TenantID)
	if err != nil {
		return nil, Internal(err)
	}
	if in.PrePopulated != nil {
		if seats, err = resolveRoster(ctx, s.chat, tenant, *in.PrePopulated); err != nil {
			return nil, err
		}
	}

	var sess *model.Session
	var promoted []uuid.UUID
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		sess, err = s.store.GetSessionForUpdate(ctx, q, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("session")
		}
		if err != nil {
			return Internal(err)
		}
		if !p.CanManage(tenant, sess) {
			// Same outcome as a missing row, so callers cannot probe.
			return NotFound("session")
		}
		if sess.Status.Terminal() {
			return Conflict("session is finished")
		}

		before, err := s.store.ListParticipants(ctx, q, sess.ID)
		if err != nil {
			return Internal(err)
		}

		applyUpdate(sess, in)
		if err := validateSession(sess, s.now()); err != nil {
			return err
		}
		if err := s.store.UpdateSession(ctx, q, sess); err != nil {
			return Internal(err)
		}

		if in.PrePopulated != nil {
			if err := s.reconcileRoster(ctx, q, sess, before, seats); err != nil {
				return err
			}
		}

		channel, err := s.store.GetChannel(ctx, q, sess.ChannelID)
		if err != nil {
			return Internal(err)
		}
		offsets := scheduler.EffectiveOffsets(sess, channel, tenant)
		if _, err := s.mat.Materialize(ctx, s.store.ScheduleWriter(q), sess, offsets); err != nil {
			return Internal(err)
		}

		after, err := s.store.ListParticipants(ctx, q, sess.ID)
		if err != nil {
			return Internal(err)
		}
		promoted = roster.DetectPromotions(
			roster.Arbiter(before, sess.MaxPlayers),
			roster.Arbiter(after, sess.MaxPlayers),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.SessionUpdated{SessionID: sess.ID.String()})
	s.publishPromotions(ctx, sess.ID, promoted)
	return sess, nil
}

// Cancel is terminal and idempotent: cancelling a cancelled session is a
// quiet success, resurrecting a completed one is not possible here.
func (s *SessionService) Cancel(ctx context.Context, p *Principal, sessionID uuid.UUID) error {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	already := false
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		sess, err := s.store.GetSessionForUpdate(ctx, q, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("session")
		}
		if err != nil {
			return Internal(err)
		}
		tenant, err := s.store.GetTenant(ctx, q, sess.TenantID)
		if err != nil {
			return Internal(err)
		}
		if !p.CanManage(tenant, sess) {
			return NotFound("session")
		}
		if sess.Status == model.StatusCancelled {
			already = true
			return nil
		}
		if sess.Status == model.StatusCompleted {
			return Conflict("session already completed")
		}

		sess.Status = model.StatusCancelled
		if err := s.store.UpdateSession(ctx, q, sess); err != nil {
			return Internal(err)
		}
		// Non-SCHEDULED status purges every pending schedule row.
		if _, err := s.mat.Materialize(ctx, s.store.ScheduleWriter(q), sess, nil); err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil || already {
		return err
	}

	s.publish(ctx, event.SessionCancelled{SessionID: sessionID.String()})
	return nil
}

// Delete removes the session and its roster; dispatched schedule rows stay
// behind as audit. The deleted event carries the announcement coordinates,
// the consumer cannot look them up afterwards.
func (s *SessionService) Delete(ctx context.Context, p *Principal, sessionID uuid.UUID) error {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	var deleted event.SessionDeleted
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		sess, err := s.store.GetSessionForUpdate(ctx, q, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("session")
		}
		if err != nil {
			return Internal(err)
		}
		tenant, err := s.store.GetTenant(ctx, q, sess.TenantID)
		if err != nil {
			return Internal(err)
		}
		if !p.CanManage(tenant, sess) {
			return NotFound("session")
		}

		deleted = event.SessionDeleted{
			SessionID:             sess.ID.String(),
			AnnouncementMessageID: sess.AnnouncementMessageID,
			AnnouncementChannelID: sess.AnnouncementChannelID,
		}

		if err := s.mat.Purge(ctx, s.store.ScheduleWriter(q), sess.ID); err != nil {
			return Internal(err)
		}
		if err := s.store.DeleteSession(ctx, q, sess.ID); err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, deleted)
	return nil
}

func (s *SessionService) Get(ctx context.Context, p *Principal, sessionID uuid.UUID) (*model.Session, *model.Tenant, []store.RosterEntry, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	sess, err := s.store.GetSession(ctx, s.store.Q(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, nil, NotFound("session")
	}
	if err != nil {
		return nil, nil, nil, Internal(err)
	}
	tenant, err := s.store.GetTenant(ctx, s.store.Q(), sess.TenantID)
	if err != nil {
		return nil, nil, nil, Internal(err)
	}
	if !p.memberOf(tenant.ExternalID) {
		// Same outcome as a missing row, so callers cannot probe.
		return nil, nil, nil, NotFound("session")
	}
	entries, err := s.store.ListRoster(ctx, s.store.Q(), sessionID)
	if err != nil {
		return nil, nil, nil, Internal(err)
	}
	return sess, tenant, entries, nil
}

func (s *SessionService) List(ctx context.Context, p *Principal, tenantExternalID int64, includeFinished bool) ([]model.Session, error) {
	if !p.memberOf(tenantExternalID) {
		return nil, NotFound("tenant")
	}
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	tenant, err := s.store.GetTenantByExternalID(ctx, s.store.Q(), tenantExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("tenant")
	}
	if err != nil {
		return nil, Internal(err)
	}
	sessions, err := s.store.ListSessionsByTenant(ctx, s.store.Q(), tenant.ID, includeFinished)
	if err != nil {
		return nil, Internal(err)
	}
	return sessions, nil
}

// RemoveParticipant kicks a user from the roster on the host's or a
// manager's behalf, promoting from the waitlist when a confirmed seat
// frees up.
func (s *SessionService) RemoveParticipant(ctx context.Context, p *Principal, sessionID, userID uuid.UUID) error {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)

	var promoted []uuid.UUID
	removed := false
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		sess, err := s.store.GetSessionForUpdate(ctx, q, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("session")
		}
		if err != nil {
			return Internal(err)
		}
		tenant, err := s.store.GetTenant(ctx, q, sess.TenantID)
		if err != nil {
			return Internal(err)
		}
		if !p.CanManage(tenant, sess) {
			return NotFound("session")
		}

		before, err := s.store.ListParticipants(ctx, q, sess.ID)
		if err != nil {
			return Internal(err)
		}
		removed, err = s.store.DeleteParticipantByUser(ctx, q, sess.ID, userID)
		if err != nil {
			return Internal(err)
		}
		if !removed {
			return nil
		}
		after, err := s.store.ListParticipants(ctx, q, sess.ID)
		if err != nil {
			return Internal(err)
		}
		promoted = roster.DetectPromotions(
			roster.Arbiter(before, sess.MaxPlayers),
			roster.Arbiter(after, sess.MaxPlayers),
		)
		return nil
	})
	if err != nil || !removed {
		return err
	}

	s.publish(ctx, event.ParticipantRemoved{
		SessionID: sessionID.String(),
		UserID:    userID.String(),
		RemovedBy: p.UserID.String(),
	})
	s.publishPromotions(ctx, sessionID, promoted)
	return nil
}

// ---- helpers ----

func (s *SessionService) newSession(p *Principal, tenant *model.Tenant, channel *model.Channel, in CreateSessionInput) *model.Session {
	maxPlayers := in.MaxPlayers
	if maxPlayers == nil {
		if channel.MaxPlayersOverride != nil {
			maxPlayers = channel.MaxPlayersOverride
		} else {
			maxPlayers = tenant.DefaultMaxPlayers
		}
	}
	return &model.Session{
		ID:              uuid.New(),
		TenantID:        tenant.ID,
		ChannelID:       channel.ID,
		HostUserID:      p.UserID,
		Title:           in.Title,
		Description:     in.Description,
		SignupNotes:     in.SignupNotes,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		Status:          model.StatusScheduled,
		MinPlayers:      in.MinPlayers,
		MaxPlayers:      maxPlayers,
		ReminderOffsets: in.ReminderOffsets,
		NotifyRoleIDs:   in.NotifyRoleIDs,
	}
}

// applyTemplate fills unset input fields from the template. Values are
// copied, not referenced: later template edits must not leak into sessions.
func applyTemplate(in *CreateSessionInput, tpl *model.Template) {
	if in.Title == "" && tpl.Title != nil {
		in.Title = *tpl.Title
	}
	if in.Description == nil && tpl.Description != nil {
		d := *tpl.Description
		in.Description = &d
	}
	if in.SignupNotes == nil && tpl.SignupNotes != nil {
		n := *tpl.SignupNotes
		in.SignupNotes = &n
	}
	if in.DurationMinutes == nil && tpl.DurationMinutes != nil {
		d := *tpl.DurationMinutes
		in.DurationMinutes = &d
	}
	if in.MinPlayers == nil && tpl.MinPlayers != nil {
		m := *tpl.MinPlayers
		in.MinPlayers = &m
	}
	if in.MaxPlayers == nil && tpl.MaxPlayers != nil {
		m := *tpl.MaxPlayers
		in.MaxPlayers = &m
	}
	if in.ReminderOffsets == nil && tpl.ReminderOffsets != nil {
		in.ReminderOffsets = append([]int(nil), tpl.ReminderOffsets...)
	}
}

func applyUpdate(sess *model.Session, in UpdateSessionInput) {
	if in.Title != nil {
		sess.Title = *in.Title
	}
	if in.Description != nil {
		sess.Description = in.Description
	}
	if in.SignupNotes != nil {
		sess.SignupNotes = in.SignupNotes
	}
	if in.ScheduledAt != nil {
		sess.ScheduledAt = in.ScheduledAt.UTC()
	}
	if in.DurationMinutes != nil {
		sess.DurationMinutes = in.DurationMinutes
	}
	if in.MinPlayers != nil {
		sess.MinPlayers = in.MinPlayers
	}
	if in.MaxPlayers != nil {
		sess.MaxPlayers = in.MaxPlayers
	}
	if in.ReminderOffsets != nil {
		sess.ReminderOffsets = in.ReminderOffsets
	}
	if in.NotifyRoleIDs != nil {
		sess.NotifyRoleIDs = in.NotifyRoleIDs
	}
}

func validateSession(sess *model.Session, now time.Time) error {
	if sess.Title == "" {
		return Invalid("title is required", nil)
	}
	if sess.Status == model.StatusScheduled && !sess.ScheduledAt.After(now.UTC()) {
		return Invalid("scheduled_at must be in the future", nil)
	}
	if sess.DurationMinutes != nil && *sess.DurationMinutes <= 0 {
		return Invalid("duration_minutes must be positive", nil)
	}
	if sess.MinPlayers != nil && sess.MaxPlayers != nil && *sess.MinPlayers > *sess.MaxPlayers {
		return Invalid("min_players exceeds max_players", nil)
	}
	for _, off := range sess.ReminderOffsets {
		if off <= 0 {
			return Invalid("reminder offsets must be positive minutes", nil)
		}
	}
	return nil
}

// seedRoster inserts the pre-populated tier in the caller's order.
func (s *SessionService) seedRoster(ctx context.Context, q store.Querier, sess *model.Session, seats []seat) error {
	now := s.now().UTC()
	for i, st := range seats {
		pos := i + 1
		p := &model.Participant{
			ID:              uuid.New(),
			SessionID:       sess.ID,
			JoinedAt:        now,
			Position:        model.PositionPrePopulated,
			PreFillPosition: &pos,
		}
		if st.externalID != nil {
			user, err := s.store.EnsureUser(ctx, q, *st.externalID)
			if err != nil {
				return Internal(err)
			}
			p.UserID = &user.ID
		} else {
			p.DisplayName = st.placeholder
		}
		if err := s.store.InsertParticipant(ctx, q, p); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return Conflict("participant listed twice")
			}
			return Internal(err)
		}
	}
	return nil
}

// reconcileRoster aligns the existing pre-populated tier with the desired
// seats: delete rows that fell off the list, insert new ones, renumber the
// survivors to the caller's order. Self-added rows are never touched.
func (s *SessionService) reconcileRoster(ctx context.Context, q store.Querier, sess *model.Session, existing []model.Participant, seats []seat) error {
	type current struct {
		row     *model.Participant
		matched bool
	}
	var pre []*current
	for i := range existing {
		if existing[i].Position == model.PositionPrePopulated {
			pre = append(pre, &current{row: &existing[i]})
		}
	}

	match := func(st seat, userID *uuid.UUID) *current {
		for _, c := range pre {
			if c.matched {
				continue
			}
			switch {
			case userID != nil && c.row.UserID != nil && *c.row.UserID == *userID:
				return c
			case userID == nil && c.row.IsPlaceholder() &&
				c.row.DisplayName != nil && st.placeholder != nil &&
				*c.row.DisplayName == *st.placeholder:
				return c
			}
		}
		return nil
	}

	now := s.now().UTC()
	for i, st := range seats {
		pos := i + 1

		var userID *uuid.UUID
		if st.externalID != nil {
			user, err := s.store.EnsureUser(ctx, q, *st.externalID)
			if err != nil {
				return Internal(err)
			}
			userID = &user.ID
		}

		if c := match(st, userID); c != nil {
			c.matched = true
			if c.row.PreFillPosition == nil || *c.row.PreFillPosition != pos {
				if err := s.store.SetPreFillPosition(ctx, q, c.row.ID, pos); err != nil {
					return Internal(err)
				}
			}
			continue
		}

		p := &model.Participant{
			ID:              uuid.New(),
			SessionID:       sess.ID,
			UserID:          userID,
			DisplayName:     st.placeholder,
			JoinedAt:        now,
			Position:        model.PositionPrePopulated,
			PreFillPosition: &pos,
		}
		if err := s.store.InsertParticipant(ctx, q, p); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// The user already sits in the self-added tier; the host's
				// listing is redundant, not an error.
				continue
			}
			return Internal(err)
		}
	}

	for _, c := range pre {
		if !c.matched {
			if err := s.store.DeleteParticipant(ctx, q, c.row.ID); err != nil {
				return Internal(err)
			}
		}
	}
	return nil
}

func (s *SessionService) notifyRoles(sess *model.Session, tenant *model.Tenant) []int64 {
	if len(sess.NotifyRoleIDs) > 0 {
		return sess.NotifyRoleIDs
	}
	return tenant.NotifyRoleIDs
}

func (s *SessionService) publish(ctx context.Context, ev event.Event) {
	if err := s.dispatcher.Publish(ctx, ev); err != nil {
		// The mutation committed; the bus missed it. Announcements catch up
		// on the next event for this session.
		s.logger.Error("EVENT_PUBLISH_FAILED", "type", ev.Type(), "err", err)
	}
}

func (s *SessionService) publishPromotions(ctx context.Context, sessionID uuid.UUID, promoted []uuid.UUID) {
	for _, userID := range promoted {
		s.publish(ctx, event.ParticipantPromoted{
			SessionID: sessionID.String(),
			UserID:    userID.String(),
		})
	}
}
