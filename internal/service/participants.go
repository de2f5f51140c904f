package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/infra/postgres"
	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/roster"
	"github.com/gamenight/scheduler/internal/store"
)

// Join seats a platform user in the session. The partial unique index is
// the only double-join guard; a conflict means the click already landed and
// finishes quietly. Returns the session when the join took effect, nil when
// there was nothing to do.
func (s *SessionService) Join(ctx context.Context, sessionID uuid.UUID, userExternalID int64) (*model.Session, error) {
	sess, tenant, err := s.sessionTenant(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	ctx = postgres.BindTenants(ctx, []int64{tenant.ExternalID})

	joined := false
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		sess, err = s.store.GetSessionForUpdate(ctx, q, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return Internal(err)
		}
		if sess.Status != model.StatusScheduled {
			return nil
		}

		user, err := s.store.EnsureUser(ctx, q, userExternalID)
		if err != nil {
			return Internal(err)
		}
		err = s.store.InsertParticipant(ctx, q, &model.Participant{
			ID:        uuid.New(),
			SessionID: sess.ID,
			UserID:    &user.ID,
			JoinedAt:  s.now().UTC(),
			Position:  model.PositionSelfAdded,
		})
		if errors.Is(err, store.ErrConflict) {
			return nil // Double click; the first one won.
		}
		if err != nil {
			return Internal(err)
		}
		joined = true
		return nil
	})
	if err != nil || !joined {
		return nil, err
	}

	user, err := s.store.GetUserByExternalID(ctx, s.store.Q(), userExternalID)
	if err != nil {
		return nil, Internal(err)
	}
	s.publish(ctx, event.ParticipantJoined{
		SessionID: sess.ID.String(),
		UserID:    user.ID.String(),
	})
	return sess, nil
}

// Leave removes the user's row and promotes from the waitlist when that
// frees a confirmed seat. The arbiter runs before and after inside the same
// transaction; promotion events publish only after commit.
func (s *SessionService) Leave(ctx context.Context, sessionID uuid.UUID, userExternalID int64) (*model.Session, error) {
	sess, tenant, err := s.sessionTenant(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	ctx = postgres.BindTenants(ctx, []int64{tenant.ExternalID})

	var left *uuid.UUID
	var promoted []uuid.UUID
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		sess, err = s.store.GetSessionForUpdate(ctx, q, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return Internal(err)
		}
		if sess.Status != model.StatusScheduled {
			return nil
		}

		user, err := s.store.GetUserByExternalID(ctx, q, userExternalID)
		if errors.Is(err, store.ErrNotFound) {
			return nil // Never interacted, so certainly not seated.
		}
		if err != nil {
			return Internal(err)
		}

		before, err := s.store.ListParticipants(ctx, q, sess.ID)
		if err != nil {
			return Internal(err)
		}
		removed, err := s.store.DeleteParticipantByUser(ctx, q, sess.ID, user.ID)
		if err != nil {
			return Internal(err)
		}
		if !removed {
			return nil
		}
		left = &user.ID

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
	if err != nil || left == nil {
		return nil, err
	}

	s.publish(ctx, event.ParticipantLeft{
		SessionID: sess.ID.String(),
		UserID:    left.String(),
	})
	s.publishPromotions(ctx, sess.ID, promoted)
	return sess, nil
}

// sessionTenant pre-reads the session and its tenant outside any binding,
// so the interaction path can bind the right tenant before mutating. A
// missing or finished session returns (nil, nil, nil): clicks on dead
// announcements finish quietly.
func (s *SessionService) sessionTenant(ctx context.Context, sessionID uuid.UUID) (*model.Session, *model.Tenant, error) {
	sess, err := s.store.GetSession(ctx, s.store.Q(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, Internal(err)
	}
	if sess.Status != model.StatusScheduled {
		return nil, nil, nil
	}
	tenant, err := s.store.GetTenant(ctx, s.store.Q(), sess.TenantID)
	if err != nil {
		return nil, nil, Internal(err)
	}
	return sess, tenant, nil
}
