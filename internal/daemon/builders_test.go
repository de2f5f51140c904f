package daemon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
)

func reminderRow(dueAt, startAt time.Time, offset int) model.ScheduleRow {
	return model.ScheduleRow{
		ID:              uuid.New(),
		SessionID:       uuid.New(),
		Kind:            model.KindReminder,
		DueAt:           dueAt,
		GameScheduledAt: startAt,
		Payload:         model.SchedulePayload{OffsetMinutes: offset},
	}
}

func TestBuildReminderTTLRunsOutAtGameStart(t *testing.T) {
	now := time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC)
	start := now.Add(30 * time.Minute)

	ev, ttl, err := BuildReminder(now, reminderRow(now, start, 60))
	require.NoError(t, err)
	require.NotNil(t, ttl)
	assert.Equal(t, 30*time.Minute, *ttl)

	due, ok := ev.(event.ReminderDue)
	require.True(t, ok)
	assert.Equal(t, 60, due.OffsetMinutes)
	assert.Equal(t, start, due.GameScheduledAt)
}

func TestBuildReminderClampsPastStart(t *testing.T) {
	now := time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC)
	start := now.Add(-5 * time.Minute)

	_, ttl, err := BuildReminder(now, reminderRow(now, start, 15))
	require.NoError(t, err)
	require.NotNil(t, ttl)
	assert.Equal(t, time.Duration(0), *ttl)
}

func TestBuildReminderRejectsWrongKind(t *testing.T) {
	row := reminderRow(time.Now(), time.Now(), 15)
	row.Kind = model.KindStatusTransition

	_, _, err := BuildReminder(time.Now(), row)
	assert.Error(t, err)
}

func TestBuildStatusTransition(t *testing.T) {
	row := model.ScheduleRow{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Kind:      model.KindStatusTransition,
		Payload:   model.SchedulePayload{TargetStatus: model.StatusInProgress},
	}

	ev, ttl, err := BuildStatusTransition(time.Now(), row)
	require.NoError(t, err)
	assert.Nil(t, ttl, "status flips must never expire")

	changed, ok := ev.(event.StatusChanged)
	require.True(t, ok)
	assert.Equal(t, model.StatusInProgress, changed.TargetStatus)
	assert.Equal(t, row.SessionID.String(), changed.SessionID)
}

func TestBuildStatusTransitionRejectsBadTarget(t *testing.T) {
	row := model.ScheduleRow{
		ID:      uuid.New(),
		Kind:    model.KindStatusTransition,
		Payload: model.SchedulePayload{TargetStatus: model.Status("PAUSED")},
	}

	_, _, err := BuildStatusTransition(time.Now(), row)
	assert.Error(t, err)
}
