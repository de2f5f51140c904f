package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gamenight/scheduler/internal/domain/model"
)

const templateColumns = `id, tenant_id, name, title, description, signup_notes,
	duration_minutes, min_players, max_players, reminder_offsets, ordering, is_default,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (*model.Template, error) {
	var t model.Template
	var offsets []int32
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Title, &t.Description,
		&t.SignupNotes, &t.DurationMinutes, &t.MinPlayers, &t.MaxPlayers,
		&offsets, &t.Ordering, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan template: %w", err)
	}
	t.ReminderOffsets = ints(offsets)
	return &t, nil
}

func (s *Store) GetTemplate(ctx context.Context, q Querier, id uuid.UUID) (*model.Template, error) {
	return scanTemplate(q.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
}

func (s *Store) ListTemplates(ctx context.Context, q Querier, tenantID uuid.UUID) ([]model.Template, error) {
	rows, err := q.Query(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = $1
		 ORDER BY ordering, name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) InsertTemplate(ctx context.Context, q Querier, t *model.Template) error {
	// Claiming is_default steals it from the previous holder; the partial
	// unique index enforces at most one per tenant.
	if t.IsDefault {
		if err := s.clearDefaultTemplate(ctx, q, t.TenantID); err != nil {
			return err
		}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO templates (id, tenant_id, name, title, description, signup_notes,
			duration_minutes, min_players, max_players, reminder_offsets, ordering, is_default)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.TenantID, t.Name, t.Title, t.Description, t.SignupNotes,
		t.DurationMinutes, t.MinPlayers, t.MaxPlayers, int32s(t.ReminderOffsets),
		t.Ordering, t.IsDefault,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert template: %w", err)
	}
	return nil
}

func (s *Store) UpdateTemplate(ctx context.Context, q Querier, t *model.Template) error {
	if t.IsDefault {
		if err := s.clearDefaultTemplate(ctx, q, t.TenantID); err != nil {
			return err
		}
	}
	tag, err := q.Exec(ctx,
		`UPDATE templates SET name=$2, title=$3, description=$4, signup_notes=$5,
			duration_minutes=$6, min_players=$7, max_players=$8, reminder_offsets=$9,
			ordering=$10, is_default=$11, updated_at=now() AT TIME ZONE 'utc'
		 WHERE id = $1`,
		t.ID, t.Name, t.Title, t.Description, t.SignupNotes, t.DurationMinutes,
		t.MinPlayers, t.MaxPlayers, int32s(t.ReminderOffsets), t.Ordering, t.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("store: update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, q Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) clearDefaultTemplate(ctx context.Context, q Querier, tenantID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`UPDATE templates SET is_default = false WHERE tenant_id = $1 AND is_default`, tenantID)
	if err != nil {
		return fmt.Errorf("store: clear default template: %w", err)
	}
	return nil
}
