// Package scheduler maintains the notification schedule: for every
// SCHEDULED session, exactly one pending row per future reminder offset and
// per status transition, and nothing else. It runs inline inside whatever
// transaction mutated the session, so schedule and session commit or roll
// back together.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// DefaultReminderOffsets applies when neither session, channel, nor tenant
// sets its own sequence.
var DefaultReminderOffsets = []int{60, 15}

// ScheduleWriter is the slice of the store the materializer needs. The
// implementation executes against the caller's open transaction.
type ScheduleWriter interface {
	ListPending(ctx context.Context, sessionID uuid.UUID) ([]model.ScheduleRow, error)
	Insert(ctx context.Context, row model.ScheduleRow) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllPending(ctx context.Context, sessionID uuid.UUID) error
}

// ChangeSet reports what a materialization run did; a re-run with unchanged
// inputs yields the zero value.
type ChangeSet struct {
	Inserted int
	Deleted  int
}

// Materializer reconciles desired vs. actual schedule rows.
type Materializer struct {
	now func() time.Time
}

func New() *Materializer {
	return &Materializer{now: time.Now}
}

// NewAt pins the clock; tests only.
func NewAt(now func() time.Time) *Materializer {
	return &Materializer{now: now}
}

// EffectiveOffsets resolves the reminder offset inheritance chain:
// session, then channel override, then tenant default, then the built-in
// [60, 15]. The first non-nil sequence wins, even when empty.
func EffectiveOffsets(session *model.Session, channel *model.Channel, tenant *model.Tenant) []int {
	if session.ReminderOffsets != nil {
		return session.ReminderOffsets
	}
	if channel != nil && channel.ReminderOffsetsOverride != nil {
		return channel.ReminderOffsetsOverride
	}
	if tenant != nil && tenant.DefaultReminderOffsets != nil {
		return tenant.DefaultReminderOffsets
	}
	return DefaultReminderOffsets
}

// rowKey is the canonical identity of an expected schedule row.
type rowKey struct {
	kind    model.ScheduleKind
	dueAt   int64
	schedAt int64
	offset  int
	target  model.Status
}

func keyOf(r *model.ScheduleRow) rowKey {
	return rowKey{
		kind:    r.Kind,
		dueAt:   r.DueAt.Unix(),
		schedAt: r.GameScheduledAt.Unix(),
		offset:  r.Payload.OffsetMinutes,
		target:  r.Payload.TargetStatus,
	}
}

// Materialize brings the pending schedule rows for session in line with its
// current state. Dispatched rows are never touched. Idempotent: a second run
// with identical inputs changes nothing.
func (m *Materializer) Materialize(ctx context.Context, w ScheduleWriter, session *model.Session, offsets []int) (ChangeSet, error) {
	if session.Status != model.StatusScheduled {
		// Cancelled, completed, or already running: nothing should fire.
		if err := w.DeleteAllPending(ctx, session.ID); err != nil {
			return ChangeSet{}, fmt.Errorf("scheduler: purge pending rows: %w", err)
		}
		return ChangeSet{}, nil
	}

	expected := m.expectedRows(session, offsets)

	existing, err := w.ListPending(ctx, session.ID)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("scheduler: list pending rows: %w", err)
	}

	var cs ChangeSet
	seen := make(map[rowKey]bool, len(existing))
	for i := range existing {
		k := keyOf(&existing[i])
		if _, want := expected[k]; want && !seen[k] {
			seen[k] = true
			continue
		}
		// Superfluous, stale, or a duplicate of a row we already kept.
		if err := w.Delete(ctx, existing[i].ID); err != nil {
			return cs, fmt.Errorf("scheduler: delete row: %w", err)
		}
		cs.Deleted++
	}

	for k, row := range expected {
		if seen[k] {
			continue
		}
		if err := w.Insert(ctx, row); err != nil {
			return cs, fmt.Errorf("scheduler: insert row: %w", err)
		}
		cs.Inserted++
	}
	return cs, nil
}

// Purge removes every pending row for a session. Used on deletion, where the
// session row itself is going away.
func (m *Materializer) Purge(ctx context.Context, w ScheduleWriter, sessionID uuid.UUID) error {
	if err := w.DeleteAllPending(ctx, sessionID); err != nil {
		return fmt.Errorf("scheduler: purge pending rows: %w", err)
	}
	return nil
}

func (m *Materializer) expectedRows(session *model.Session, offsets []int) map[rowKey]model.ScheduleRow {
	now := m.now().UTC()
	expected := make(map[rowKey]model.ScheduleRow)

	add := func(kind model.ScheduleKind, due time.Time, payload model.SchedulePayload) {
		row := model.ScheduleRow{
			ID:              uuid.New(),
			SessionID:       session.ID,
			Kind:            kind,
			DueAt:           due.UTC(),
			GameScheduledAt: session.ScheduledAt.UTC(),
			Payload:         payload,
		}
		expected[keyOf(&row)] = row
	}

	// Reminders for distinct positive offsets still in the future. Past-due
	// reminders are dropped here; a reminder for a started game is a lie.
	distinct := make(map[int]bool, len(offsets))
	for _, off := range offsets {
		if off <= 0 || distinct[off] {
			continue
		}
		distinct[off] = true
		due := session.ScheduledAt.Add(-time.Duration(off) * time.Minute)
		if !due.After(now) {
			continue
		}
		add(model.KindReminder, due, model.SchedulePayload{OffsetMinutes: off})
	}

	// Status transitions are materialized even when past due: a session
	// created late must still be walked through IN_PROGRESS and COMPLETED
	// by the normal poller loop.
	add(model.KindStatusTransition, session.ScheduledAt,
		model.SchedulePayload{TargetStatus: model.StatusInProgress})
	add(model.KindStatusTransition, session.EndsAt(),
		model.SchedulePayload{TargetStatus: model.StatusCompleted})

	return expected
}
