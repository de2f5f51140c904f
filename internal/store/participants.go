package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// ErrConflict maps the partial unique index on (session_id, user_id) to the
// domain. Double clicks land here; callers finish quietly.
var ErrConflict = errors.New("store: conflict")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const participantColumns = `id, session_id, user_id, display_name, joined_at,
	position_type, pre_fill_position`

// InsertParticipant adds a row. The database unique index is the only
// double-join guard; no existence pre-check is allowed here or in any
// caller, because a pre-check reintroduces the race the index closes.
func (s *Store) InsertParticipant(ctx context.Context, q Querier, p *model.Participant) error {
	_, err := q.Exec(ctx,
		`INSERT INTO participants (id, session_id, user_id, display_name, joined_at,
			position_type, pre_fill_position)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.SessionID, p.UserID, p.DisplayName, p.JoinedAt, p.Position, p.PreFillPosition,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert participant: %w", err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, q Querier, sessionID uuid.UUID) ([]model.Participant, error) {
	rows, err := q.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1
		 ORDER BY joined_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName,
			&p.JoinedAt, &p.Position, &p.PreFillPosition); err != nil {
			return nil, fmt.Errorf("store: scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RosterEntry is a participant joined with its ledger row, so renderers and
// reminder fan-out get the platform snowflake without a second round trip.
// UserExternalID is nil exactly for placeholders.
type RosterEntry struct {
	model.Participant
	UserExternalID *int64
}

func (s *Store) ListRoster(ctx context.Context, q Querier, sessionID uuid.UUID) ([]RosterEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT p.id, p.session_id, p.user_id, p.display_name, p.joined_at,
			p.position_type, p.pre_fill_position, u.external_id
		 FROM participants p LEFT JOIN users u ON u.id = p.user_id
		 WHERE p.session_id = $1
		 ORDER BY p.joined_at, p.id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list roster: %w", err)
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &e.DisplayName,
			&e.JoinedAt, &e.Position, &e.PreFillPosition, &e.UserExternalID); err != nil {
			return nil, fmt.Errorf("store: scan roster entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteParticipantByUser removes a user's row from a session; reports
// whether a row existed.
func (s *Store) DeleteParticipantByUser(ctx context.Context, q Querier, sessionID, userID uuid.UUID) (bool, error) {
	tag, err := q.Exec(ctx,
		`DELETE FROM participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("store: delete participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteParticipant(ctx context.Context, q Querier, id uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete participant: %w", err)
	}
	return nil
}

// SetPreFillPosition renumbers one pre-populated row after reconciliation.
func (s *Store) SetPreFillPosition(ctx context.Context, q Querier, id uuid.UUID, pos int) error {
	_, err := q.Exec(ctx,
		`UPDATE participants SET pre_fill_position = $2 WHERE id = $1`, id, pos)
	if err != nil {
		return fmt.Errorf("store: set pre-fill position: %w", err)
	}
	return nil
}
