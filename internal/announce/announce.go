// Package announce owns the chat side of a session: the announcement
// message, its throttled refresh, and the reminder DM fan-out. It consumes
// the bus events; nothing here mutates sessions except the poller-driven
// status transition.
package announce

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/store"
)

// refreshTimeout bounds a trailing refresh that runs off any request
// context.
const refreshTimeout = 30 * time.Second

// Storage is the announcer's slice of the store.
type Storage interface {
	Q() store.Querier
	GetSession(ctx context.Context, q store.Querier, id uuid.UUID) (*model.Session, error)
	ListRoster(ctx context.Context, q store.Querier, sessionID uuid.UUID) ([]store.RosterEntry, error)
	SetAnnouncement(ctx context.Context, q store.Querier, id uuid.UUID, messageID, channelID *int64) error
	SetSessionStatus(ctx context.Context, q store.Querier, id uuid.UUID, status model.Status) (bool, error)
	GetUser(ctx context.Context, q store.Querier, id uuid.UUID) (*model.User, error)
	GetTenant(ctx context.Context, q store.Querier, id uuid.UUID) (*model.Tenant, error)
	GetChannel(ctx context.Context, q store.Querier, id uuid.UUID) (*model.Channel, error)
}

// Cache is the announcer's slice of the redis wrapper.
type Cache interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type Announcer struct {
	store  Storage
	chat   chat.Client
	cache  Cache
	logger *slog.Logger
	now    func() time.Time

	// trailing holds at most one armed follow-up refresh per session.
	mu        sync.Mutex
	trailing  map[uuid.UUID]*time.Timer
	afterFunc func(time.Duration, func()) *time.Timer

	dmConcurrency int
}

func New(st Storage, client chat.Client, cache Cache, logger *slog.Logger) *Announcer {
	return &Announcer{
		store:         st,
		chat:          client,
		cache:         cache,
		logger:        logger.With("component", "announcer"),
		now:           time.Now,
		trailing:      make(map[uuid.UUID]*time.Timer),
		afterFunc:     time.AfterFunc,
		dmConcurrency: 8,
	}
}

// OnSessionCreated posts the initial announcement and records its
// coordinates. Redeliveries are detected by the already-set message id.
func (a *Announcer) OnSessionCreated(ctx context.Context, ev *event.SessionCreated) error {
	sess, err := a.loadSession(ctx, ev.SessionID)
	if err != nil || sess == nil {
		return err
	}
	if sess.AnnouncementMessageID != nil {
		return nil // Already announced; a redelivered create is a no-op.
	}
	if sess.Status != model.StatusScheduled {
		return nil // Cancelled before we got here; nothing to post.
	}

	channel, err := a.store.GetChannel(ctx, a.store.Q(), sess.ChannelID)
	if err != nil {
		return err
	}
	view, err := a.buildView(ctx, sess)
	if err != nil {
		return err
	}
	view.NotifyRoleIDs = ev.NotifyRoleIDs

	msgID, err := a.chat.CreateMessage(ctx, channel.ExternalID, Render(view))
	if err != nil {
		return err
	}
	if err := a.store.SetAnnouncement(ctx, a.store.Q(), sess.ID, &msgID, &channel.ExternalID); err != nil {
		// The message exists but we failed to remember it; a NACK replays the
		// create and the duplicate check above cannot save us, so log loudly
		// and give the redelivery a chance to reconcile.
		a.logger.Error("ANNOUNCEMENT_RECORD_FAILED",
			"session_id", sess.ID, "message_id", msgID, "err", err)
		return err
	}
	return nil
}

// OnSessionUpdated and the participant events all collapse into a throttled
// refresh of the announcement.
func (a *Announcer) OnSessionUpdated(ctx context.Context, ev *event.SessionUpdated) error {
	return a.requestRefresh(ctx, ev.SessionID)
}

func (a *Announcer) OnParticipantJoined(ctx context.Context, ev *event.ParticipantJoined) error {
	return a.requestRefresh(ctx, ev.SessionID)
}

func (a *Announcer) OnParticipantLeft(ctx context.Context, ev *event.ParticipantLeft) error {
	return a.requestRefresh(ctx, ev.SessionID)
}

func (a *Announcer) OnParticipantRemoved(ctx context.Context, ev *event.ParticipantRemoved) error {
	return a.requestRefresh(ctx, ev.SessionID)
}

// OnParticipantPromoted DMs the promoted user, then refreshes. A user with
// DMs disabled still gets their seat; the DM is best effort.
func (a *Announcer) OnParticipantPromoted(ctx context.Context, ev *event.ParticipantPromoted) error {
	sess, err := a.loadSession(ctx, ev.SessionID)
	if err != nil || sess == nil {
		return err
	}
	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		a.logger.Warn("PROMOTION_BAD_USER_ID", "user_id", ev.UserID)
		return nil
	}
	user, err := a.store.GetUser(ctx, a.store.Q(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	dm := promotionDM(sess)
	if err := a.chat.SendDM(ctx, user.ExternalID, dm); err != nil && !errors.Is(err, chat.ErrDMForbidden) {
		return err
	}
	return a.requestRefresh(ctx, sess.ID.String())
}

// OnSessionCancelled renders the terminal state immediately, bypassing the
// throttle: the last edit a session ever gets must not be coalesced away.
func (a *Announcer) OnSessionCancelled(ctx context.Context, ev *event.SessionCancelled) error {
	id, err := uuid.Parse(ev.SessionID)
	if err != nil {
		a.logger.Warn("BAD_SESSION_ID", "session_id", ev.SessionID)
		return nil
	}
	a.disarmTrailing(id)
	return a.refresh(ctx, id)
}

// OnSessionDeleted removes the announcement. The event carries the message
// coordinates because the session row is already gone.
func (a *Announcer) OnSessionDeleted(ctx context.Context, ev *event.SessionDeleted) error {
	if id, err := uuid.Parse(ev.SessionID); err == nil {
		a.disarmTrailing(id)
	}
	if ev.AnnouncementMessageID == nil || ev.AnnouncementChannelID == nil {
		return nil // Never announced.
	}
	err := a.chat.DeleteMessage(ctx, *ev.AnnouncementChannelID, *ev.AnnouncementMessageID)
	if errors.Is(err, chat.ErrMessageGone) {
		return nil
	}
	return err
}

// OnStatusChanged applies a poller-driven transition. The guarded update
// refuses terminal sessions, so a late transition row cannot resurrect a
// cancelled game.
func (a *Announcer) OnStatusChanged(ctx context.Context, ev *event.StatusChanged) error {
	id, err := uuid.Parse(ev.SessionID)
	if err != nil {
		a.logger.Warn("BAD_SESSION_ID", "session_id", ev.SessionID)
		return nil
	}
	changed, err := a.store.SetSessionStatus(ctx, a.store.Q(), id, ev.TargetStatus)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return a.refresh(ctx, id)
}

func (a *Announcer) loadSession(ctx context.Context, raw string) (*model.Session, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		a.logger.Warn("BAD_SESSION_ID", "session_id", raw)
		return nil, nil
	}
	sess, err := a.store.GetSession(ctx, a.store.Q(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil // Deleted since the event was published.
	}
	return sess, err
}

func (a *Announcer) buildView(ctx context.Context, sess *model.Session) (View, error) {
	host, err := a.store.GetUser(ctx, a.store.Q(), sess.HostUserID)
	if err != nil {
		return View{}, err
	}
	entries, err := a.store.ListRoster(ctx, a.store.Q(), sess.ID)
	if err != nil {
		return View{}, err
	}
	return View{Session: sess, HostExternalID: host.ExternalID, Roster: entries}, nil
}
