package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// EnsureUser upserts the ledger row for a platform user on first
// interaction. Users are never deleted.
func (s *Store) EnsureUser(ctx context.Context, q Querier, externalID int64) (*model.User, error) {
	var u model.User
	err := q.QueryRow(ctx,
		`INSERT INTO users (id, external_id) VALUES ($1, $2)
		 ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		 RETURNING id, external_id, created_at`,
		uuid.New(), externalID,
	).Scan(&u.ID, &u.ExternalID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: ensure user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, q Querier, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := q.QueryRow(ctx,
		`SELECT id, external_id, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.ExternalID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, q Querier, externalID int64) (*model.User, error) {
	var u model.User
	err := q.QueryRow(ctx,
		`SELECT id, external_id, created_at FROM users WHERE external_id = $1`, externalID,
	).Scan(&u.ID, &u.ExternalID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user by external id: %w", err)
	}
	return &u, nil
}
