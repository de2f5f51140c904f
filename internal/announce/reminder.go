package announce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gamenight/scheduler/infra/redis"
	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/roster"
)

// reminderLateGrace is how far past the game start a reminder may still go
// out. Anything later is dropped; the game already began.
const reminderLateGrace = time.Minute

// OnReminderDue fans a reminder out to everyone who cares: the host, the
// confirmed roster, and every member holding a notify role. Each recipient
// is deduped with a first-writer-wins cache key, so a redelivered event or a
// second process never double-DMs anyone.
func (a *Announcer) OnReminderDue(ctx context.Context, ev *event.ReminderDue) error {
	sess, err := a.loadSession(ctx, ev.SessionID)
	if err != nil || sess == nil {
		return err
	}

	// Staleness guard: the row (and the event built from it) snapshots the
	// game start. A reschedule materializes fresh rows, so a mismatch means
	// this reminder belongs to a start time that no longer exists.
	if !ev.GameScheduledAt.Equal(sess.ScheduledAt) {
		a.logger.Info("REMINDER_STALE",
			"session_id", sess.ID,
			"event_start", ev.GameScheduledAt,
			"current_start", sess.ScheduledAt)
		return nil
	}
	if sess.Status != model.StatusScheduled {
		return nil
	}

	// A reminder landing at or after the game start is a lie no matter how it
	// got here (broker backlog, a long DLQ round trip). The grace only covers
	// dispatch latency.
	if !a.now().Before(sess.ScheduledAt.Add(reminderLateGrace)) {
		a.logger.Info("REMINDER_PAST_START",
			"session_id", sess.ID,
			"scheduled_at", sess.ScheduledAt)
		return nil
	}

	recipients, err := a.recipients(ctx, sess)
	if err != nil {
		return err
	}

	content := reminderDM(sess, ev.OffsetMinutes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.dmConcurrency)
	for _, externalID := range recipients {
		g.Go(func() error {
			return a.sendReminderDM(gctx, sess, externalID, ev.OffsetMinutes, content)
		})
	}
	return g.Wait()
}

// recipients collects platform user ids: host, confirmed seats, and notify
// role holders, deduplicated.
func (a *Announcer) recipients(ctx context.Context, sess *model.Session) ([]int64, error) {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id int64) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	host, err := a.store.GetUser(ctx, a.store.Q(), sess.HostUserID)
	if err != nil {
		return nil, err
	}
	add(host.ExternalID)

	entries, err := a.store.ListRoster(ctx, a.store.Q(), sess.ID)
	if err != nil {
		return nil, err
	}
	byRow := make(map[string]*int64, len(entries))
	for _, e := range entries {
		byRow[e.ID.String()] = e.UserExternalID
	}
	part := roster.Arbiter(participants(entries), sess.MaxPlayers)
	for _, p := range part.Confirmed {
		if ext := byRow[p.ID.String()]; ext != nil {
			add(*ext)
		}
	}

	tenant, err := a.store.GetTenant(ctx, a.store.Q(), sess.TenantID)
	if err != nil {
		return nil, err
	}
	notifyRoles := sess.NotifyRoleIDs
	if len(notifyRoles) == 0 {
		notifyRoles = tenant.NotifyRoleIDs
	}
	if len(notifyRoles) > 0 {
		members, err := a.chat.MembersWithAnyRole(ctx, tenant.ExternalID, notifyRoles)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			add(m.UserExternalID)
		}
	}
	return out, nil
}

// sendReminderDM delivers to one recipient behind the dedup key. Closed DMs
// count as delivered; a transient failure releases the key so the retry can
// reach this recipient again.
func (a *Announcer) sendReminderDM(ctx context.Context, sess *model.Session, externalID int64, offset int, content string) error {
	key := redis.KeyReminderSent(sess.ID, externalID, offset)
	first, err := a.cache.SetNX(ctx, key, "1", redis.TTLReminderSent)
	if err != nil {
		return fmt.Errorf("announce: reminder dedup: %w", err)
	}
	if !first {
		return nil
	}

	err = a.chat.SendDM(ctx, externalID, content)
	if errors.Is(err, chat.ErrDMForbidden) {
		return nil
	}
	if err != nil {
		if delErr := a.cache.Del(ctx, key); delErr != nil {
			a.logger.Error("REMINDER_DEDUP_RELEASE_FAILED",
				"session_id", sess.ID, "recipient", externalID, "err", delErr)
		}
		return err
	}
	return nil
}

func reminderDM(sess *model.Session, offsetMinutes int) string {
	return fmt.Sprintf("Reminder: **%s** starts <t:%d:R> (in about %d minutes).",
		sess.Title, sess.ScheduledAt.Unix(), offsetMinutes)
}

func promotionDM(sess *model.Session) string {
	return fmt.Sprintf("A seat opened up! You are now confirmed for **%s**, starting <t:%d:F>.",
		sess.Title, sess.ScheduledAt.Unix())
}
