package announce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/infra/redis"
	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
)

func reminderEvent(f *fixture, offset int) *event.ReminderDue {
	return &event.ReminderDue{
		SessionID:       f.session.ID.String(),
		OffsetMinutes:   offset,
		GameScheduledAt: f.session.ScheduledAt,
	}
}

func dmRecipients(f *fixture) []int64 {
	out := make([]int64, 0, len(f.ch.dms))
	for _, dm := range f.ch.dms {
		out = append(out, dm.user)
	}
	return out
}

func TestReminderFansOutToHostAndConfirmed(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	f.addConfirmed(t, 2003)

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	assert.ElementsMatch(t, []int64{f.hostExt, 2002, 2003}, dmRecipients(f))
}

func TestReminderIncludesNotifyRoleHolders(t *testing.T) {
	f := newFixture(t)
	f.session.NotifyRoleIDs = []int64{42}
	f.ch.members = []chat.Member{
		{UserExternalID: 3001, RoleIDs: []int64{42}},
		{UserExternalID: f.hostExt, RoleIDs: []int64{42}}, // already the host, no double DM
	}

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	assert.ElementsMatch(t, []int64{f.hostExt, 3001}, dmRecipients(f))
}

func TestReminderRedeliveryIsDeduped(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	ev := reminderEvent(f, 60)

	require.NoError(t, f.a.OnReminderDue(context.Background(), ev))
	require.NoError(t, f.a.OnReminderDue(context.Background(), ev))
	assert.Len(t, f.ch.dms, 2, "second delivery must DM nobody")
}

func TestReminderOffsetsDedupIndependently(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 15)))
	assert.Len(t, f.ch.dms, 2, "the 15 minute reminder is not the 60 minute one")
}

func TestReminderDropsStaleStartTime(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	ev := reminderEvent(f, 60)
	ev.GameScheduledAt = f.session.ScheduledAt.Add(-2 * time.Hour)

	require.NoError(t, f.a.OnReminderDue(context.Background(), ev))
	assert.Empty(t, f.ch.dms)
}

func TestReminderDropsAfterGameStart(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	f.a.now = func() time.Time { return f.session.ScheduledAt.Add(time.Hour) }

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	assert.Empty(t, f.ch.dms, "the game already began, a reminder now is a lie")
}

func TestReminderWithinGraceStillSends(t *testing.T) {
	f := newFixture(t)
	f.a.now = func() time.Time { return f.session.ScheduledAt.Add(reminderLateGrace / 2) }

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 5)))
	assert.ElementsMatch(t, []int64{f.hostExt}, dmRecipients(f))
}

func TestReminderSkipsNonScheduledSession(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	f.session.Status = model.StatusCancelled

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	assert.Empty(t, f.ch.dms)
}

func TestReminderSkipsWaitlist(t *testing.T) {
	f := newFixture(t)
	one := 1
	f.session.MaxPlayers = &one
	f.addConfirmed(t, 2002)
	f.addConfirmed(t, 2003) // over capacity, waitlisted

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	assert.ElementsMatch(t, []int64{f.hostExt, 2002}, dmRecipients(f))
}

func TestReminderClosedDMCountsDelivered(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	f.ch.dmErr[2002] = chat.ErrDMForbidden

	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))

	key := redis.KeyReminderSent(f.session.ID, 2002, 60)
	_, kept := f.cache.keys[key]
	assert.True(t, kept, "closed DMs are permanent, the dedup key stays")
}

func TestReminderTransientFailureReleasesDedup(t *testing.T) {
	f := newFixture(t)
	f.addConfirmed(t, 2002)
	f.ch.dmErr[2002] = chat.Transient(errors.New("platform 503"))

	err := f.a.OnReminderDue(context.Background(), reminderEvent(f, 60))
	require.Error(t, err)

	key := redis.KeyReminderSent(f.session.ID, 2002, 60)
	_, kept := f.cache.keys[key]
	assert.False(t, kept, "the retry must be able to reach this recipient")

	// The retry after the transient failure reaches the missed recipient and
	// only that one.
	delete(f.ch.dmErr, 2002)
	before := len(f.ch.dms)
	require.NoError(t, f.a.OnReminderDue(context.Background(), reminderEvent(f, 60)))
	assert.Equal(t, before+1, len(f.ch.dms))
	assert.EqualValues(t, 2002, f.ch.dms[len(f.ch.dms)-1].user)
}
