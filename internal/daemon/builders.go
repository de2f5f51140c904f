package daemon

import (
	"fmt"
	"time"

	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
)

// Builder turns a claimed schedule row into the event to publish. A non-nil
// ttl bounds the message's life on the broker; nil means no expiration.
type Builder func(now time.Time, row model.ScheduleRow) (ev event.Event, ttl *time.Duration, err error)

// BuildReminder emits reminder.due with a TTL that runs out at game start: a
// reminder nobody consumed before the game began is worthless, the broker
// expires it into the DLQ instead of delivering it late.
func BuildReminder(now time.Time, row model.ScheduleRow) (event.Event, *time.Duration, error) {
	if row.Kind != model.KindReminder {
		return nil, nil, fmt.Errorf("daemon: reminder builder got %s row %s", row.Kind, row.ID)
	}
	ttl := row.GameScheduledAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return event.ReminderDue{
		SessionID:       row.SessionID.String(),
		OffsetMinutes:   row.Payload.OffsetMinutes,
		GameScheduledAt: row.GameScheduledAt,
	}, &ttl, nil
}

// BuildStatusTransition emits session.status_changed with no TTL: a status
// flip stays correct no matter how late it lands.
func BuildStatusTransition(now time.Time, row model.ScheduleRow) (event.Event, *time.Duration, error) {
	if row.Kind != model.KindStatusTransition {
		return nil, nil, fmt.Errorf("daemon: status builder got %s row %s", row.Kind, row.ID)
	}
	if !row.Payload.TargetStatus.Valid() {
		return nil, nil, fmt.Errorf("daemon: row %s has invalid target status %q", row.ID, row.Payload.TargetStatus)
	}
	return event.StatusChanged{
		SessionID:    row.SessionID.String(),
		TargetStatus: row.Payload.TargetStatus,
	}, nil, nil
}
