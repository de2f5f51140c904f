package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/domain/model"
)

const scheduleColumns = `id, session_id, kind, due_at, game_scheduled_at, payload, dispatched_at`

func (s *Store) insertScheduleRow(ctx context.Context, q Querier, row model.ScheduleRow) error {
	payload, err := json.Marshal(row.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal schedule payload: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO notification_schedule (id, session_id, kind, due_at, game_scheduled_at, payload)
		 VALUES ($1,$2,$3,$4,$5,$6::jsonb)`,
		row.ID, row.SessionID, row.Kind, row.DueAt, row.GameScheduledAt, payload,
	)
	if err != nil {
		return fmt.Errorf("store: insert schedule row: %w", err)
	}
	return nil
}

func scanScheduleRows(ctx context.Context, q Querier, sql string, args ...any) ([]model.ScheduleRow, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query schedule: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduleRow
	for rows.Next() {
		var r model.ScheduleRow
		var payload []byte
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Kind, &r.DueAt,
			&r.GameScheduledAt, &payload, &r.DispatchedAt); err != nil {
			return nil, fmt.Errorf("store: scan schedule row: %w", err)
		}
		if err := json.Unmarshal(payload, &r.Payload); err != nil {
			return nil, fmt.Errorf("store: decode schedule payload: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClaimDue locks and returns up to limit due, undispatched rows of one kind.
// SKIP LOCKED lets a second poller of the same kind run concurrently without
// ever visiting the same row; ties on due_at break by id so the order is
// total.
func (s *Store) ClaimDue(ctx context.Context, q Querier, kind model.ScheduleKind, now time.Time, limit int) ([]model.ScheduleRow, error) {
	return scanScheduleRows(ctx, q,
		`SELECT `+scheduleColumns+` FROM notification_schedule
		 WHERE kind = $1 AND dispatched_at IS NULL AND due_at <= $2
		 ORDER BY due_at, id
		 FOR UPDATE SKIP LOCKED
		 LIMIT $3`,
		kind, now, limit,
	)
}

// MarkDispatched stamps a claimed row. The dispatched_at IS NULL predicate
// plus the row lock held by ClaimDue make the transition exactly-once.
func (s *Store) MarkDispatched(ctx context.Context, q Querier, id uuid.UUID, at time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE notification_schedule SET dispatched_at = $2
		 WHERE id = $1 AND dispatched_at IS NULL`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("store: mark dispatched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: schedule row %s already dispatched", id)
	}
	return nil
}

// ScheduleTx adapts one transaction to the materializer's writer interface.
type ScheduleTx struct {
	store *Store
	q     Querier
}

func (s *Store) ScheduleWriter(q Querier) *ScheduleTx {
	return &ScheduleTx{store: s, q: q}
}

func (t *ScheduleTx) ListPending(ctx context.Context, sessionID uuid.UUID) ([]model.ScheduleRow, error) {
	return scanScheduleRows(ctx, t.q,
		`SELECT `+scheduleColumns+` FROM notification_schedule
		 WHERE session_id = $1 AND dispatched_at IS NULL
		 ORDER BY due_at, id`,
		sessionID,
	)
}

func (t *ScheduleTx) Insert(ctx context.Context, row model.ScheduleRow) error {
	return t.store.insertScheduleRow(ctx, t.q, row)
}

func (t *ScheduleTx) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := t.q.Exec(ctx,
		`DELETE FROM notification_schedule WHERE id = $1 AND dispatched_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("store: delete schedule row: %w", err)
	}
	return nil
}

func (t *ScheduleTx) DeleteAllPending(ctx context.Context, sessionID uuid.UUID) error {
	_, err := t.q.Exec(ctx,
		`DELETE FROM notification_schedule WHERE session_id = $1 AND dispatched_at IS NULL`,
		sessionID)
	if err != nil {
		return fmt.Errorf("store: purge schedule rows: %w", err)
	}
	return nil
}
