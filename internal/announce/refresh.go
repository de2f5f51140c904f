package announce

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/infra/redis"
	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/store"
)

// requestRefresh edits the announcement at most once per throttle window.
// The first caller in a window refreshes immediately; later callers arm a
// single trailing refresh that fires when the window closes, so a burst of
// joins produces exactly two edits and the final one always sees the final
// roster.
func (a *Announcer) requestRefresh(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		a.logger.Warn("BAD_SESSION_ID", "session_id", rawID)
		return nil
	}

	acquired, err := a.cache.SetNX(ctx, redis.KeyRefreshThrottle(id), "1", redis.TTLRefreshThrottle)
	if err != nil {
		return fmt.Errorf("announce: throttle check: %w", err)
	}
	if acquired {
		return a.refresh(ctx, id)
	}
	a.armTrailing(id)
	return nil
}

// armTrailing schedules the follow-up refresh unless one is already armed
// for this session.
func (a *Announcer) armTrailing(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, armed := a.trailing[id]; armed {
		return
	}
	a.trailing[id] = a.afterFunc(redis.TTLRefreshThrottle, func() {
		// Disarm before reading, so an event landing mid-refresh arms a new
		// trailing edit instead of being swallowed.
		a.mu.Lock()
		delete(a.trailing, id)
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		// The trailing edit opens its own throttle window. Without this, an
		// event right after the window expires would edit immediately and a
		// two-event burst could cost three edits.
		if _, err := a.cache.SetNX(ctx, redis.KeyRefreshThrottle(id), "1", redis.TTLRefreshThrottle); err != nil {
			a.logger.Warn("THROTTLE_REARM_FAILED", "session_id", id, "err", err)
		}
		if err := a.refresh(ctx, id); err != nil {
			a.logger.Error("TRAILING_REFRESH_FAILED", "session_id", id, "err", err)
		}
	})
}

// disarmTrailing stops a pending trailing refresh. Terminal transitions call
// it so a timer armed by a pre-cancel burst cannot fire afterwards and
// repaint the announcement as live.
func (a *Announcer) disarmTrailing(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if timer, armed := a.trailing[id]; armed {
		timer.Stop()
		delete(a.trailing, id)
	}
}

// refresh re-renders the announcement from the current database state and
// edits it in place. A vanished chat message clears the stored coordinates
// and is never recreated.
func (a *Announcer) refresh(ctx context.Context, id uuid.UUID) error {
	sess, err := a.store.GetSession(ctx, a.store.Q(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sess.AnnouncementMessageID == nil || sess.AnnouncementChannelID == nil {
		return nil // Creation still in flight, or the message was lost earlier.
	}

	view, err := a.buildView(ctx, sess)
	if err != nil {
		return err
	}

	err = a.chat.EditMessage(ctx, *sess.AnnouncementChannelID, *sess.AnnouncementMessageID, Render(view))
	if errors.Is(err, chat.ErrMessageGone) {
		a.logger.Warn("ANNOUNCEMENT_GONE", "session_id", id)
		return a.store.SetAnnouncement(ctx, a.store.Q(), id, nil, nil)
	}
	return err
}
