package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// ErrNotFound is returned for absent rows. Row-level security makes a
// foreign tenant's row indistinguishable from a missing one, which is the
// point.
var ErrNotFound = errors.New("store: not found")

const sessionColumns = `id, tenant_id, channel_id, host_user_id, title, description,
	signup_notes, scheduled_at, duration_minutes, status, min_players, max_players,
	reminder_offsets, notify_role_ids, announcement_message_id, announcement_channel_id,
	created_at, updated_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	var offsets []int32
	err := row.Scan(
		&s.ID, &s.TenantID, &s.ChannelID, &s.HostUserID, &s.Title, &s.Description,
		&s.SignupNotes, &s.ScheduledAt, &s.DurationMinutes, &s.Status, &s.MinPlayers,
		&s.MaxPlayers, &offsets, &s.NotifyRoleIDs, &s.AnnouncementMessageID,
		&s.AnnouncementChannelID, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan session: %w", err)
	}
	s.ReminderOffsets = ints(offsets)
	return &s, nil
}

func (s *Store) GetSession(ctx context.Context, q Querier, id uuid.UUID) (*model.Session, error) {
	return scanSession(q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// GetSessionForUpdate locks the session row for the duration of the
// transaction; every mutation path takes this lock first so per-session
// writes serialize.
func (s *Store) GetSessionForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*model.Session, error) {
	return scanSession(q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) InsertSession(ctx context.Context, q Querier, sess *model.Session) error {
	_, err := q.Exec(ctx,
		`INSERT INTO sessions (id, tenant_id, channel_id, host_user_id, title, description,
			signup_notes, scheduled_at, duration_minutes, status, min_players, max_players,
			reminder_offsets, notify_role_ids)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sess.ID, sess.TenantID, sess.ChannelID, sess.HostUserID, sess.Title,
		sess.Description, sess.SignupNotes, sess.ScheduledAt, sess.DurationMinutes,
		sess.Status, sess.MinPlayers, sess.MaxPlayers, int32s(sess.ReminderOffsets),
		sess.NotifyRoleIDs,
	)
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, q Querier, sess *model.Session) error {
	tag, err := q.Exec(ctx,
		`UPDATE sessions SET channel_id=$2, title=$3, description=$4, signup_notes=$5,
			scheduled_at=$6, duration_minutes=$7, status=$8, min_players=$9, max_players=$10,
			reminder_offsets=$11, notify_role_ids=$12, updated_at=now() AT TIME ZONE 'utc'
		 WHERE id = $1`,
		sess.ID, sess.ChannelID, sess.Title, sess.Description, sess.SignupNotes,
		sess.ScheduledAt, sess.DurationMinutes, sess.Status, sess.MinPlayers,
		sess.MaxPlayers, int32s(sess.ReminderOffsets), sess.NotifyRoleIDs,
	)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, q Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAnnouncement records the chat message the announcer owns for this
// session; both nil clears it (message was deleted out from under us).
func (s *Store) SetAnnouncement(ctx context.Context, q Querier, id uuid.UUID, messageID, channelID *int64) error {
	_, err := q.Exec(ctx,
		`UPDATE sessions SET announcement_message_id=$2, announcement_channel_id=$3,
			updated_at=now() AT TIME ZONE 'utc'
		 WHERE id = $1`,
		id, messageID, channelID,
	)
	if err != nil {
		return fmt.Errorf("store: set announcement: %w", err)
	}
	return nil
}

// SetSessionStatus applies a poller-driven transition. It refuses to move a
// terminal session, so a late STATUS_TRANSITION row cannot resurrect a
// cancelled game.
func (s *Store) SetSessionStatus(ctx context.Context, q Querier, id uuid.UUID, status model.Status) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE sessions SET status=$2, updated_at=now() AT TIME ZONE 'utc'
		 WHERE id = $1 AND status NOT IN ('COMPLETED','CANCELLED')`,
		id, status,
	)
	if err != nil {
		return false, fmt.Errorf("store: set status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListSessionsByTenant returns sessions visible to the bound tenants,
// newest scheduled first. RLS does the tenant filtering; the tenant_id
// predicate only narrows within an already-authorized set.
func (s *Store) ListSessionsByTenant(ctx context.Context, q Querier, tenantID uuid.UUID, includeFinished bool) ([]model.Session, error) {
	sql := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id = $1`
	if !includeFinished {
		sql += ` AND status IN ('SCHEDULED','IN_PROGRESS')`
	}
	sql += ` ORDER BY scheduled_at`

	rows, err := q.Query(ctx, sql, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}
