package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gamenight/scheduler/internal/domain/model"
)

const tenantColumns = `id, external_id, default_max_players, default_reminder_offsets,
	host_role_ids, manager_role_ids, notify_role_ids, created_at, updated_at`

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var t model.Tenant
	var offsets []int32
	err := row.Scan(&t.ID, &t.ExternalID, &t.DefaultMaxPlayers, &offsets,
		&t.HostRoleIDs, &t.ManagerRoleIDs, &t.NotifyRoleIDs, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan tenant: %w", err)
	}
	t.DefaultReminderOffsets = ints(offsets)
	return &t, nil
}

func (s *Store) GetTenant(ctx context.Context, q Querier, id uuid.UUID) (*model.Tenant, error) {
	return scanTenant(q.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (s *Store) GetTenantByExternalID(ctx context.Context, q Querier, externalID int64) (*model.Tenant, error) {
	return scanTenant(q.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE external_id = $1`, externalID))
}

// EnsureTenant creates the tenant ledger row on first reference.
func (s *Store) EnsureTenant(ctx context.Context, q Querier, externalID int64) (*model.Tenant, error) {
	return scanTenant(q.QueryRow(ctx,
		`INSERT INTO tenants (id, external_id) VALUES ($1, $2)
		 ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		 RETURNING `+tenantColumns,
		uuid.New(), externalID))
}

func (s *Store) UpdateTenantConfig(ctx context.Context, q Querier, t *model.Tenant) error {
	tag, err := q.Exec(ctx,
		`UPDATE tenants SET default_max_players=$2, default_reminder_offsets=$3,
			host_role_ids=$4, manager_role_ids=$5, notify_role_ids=$6,
			updated_at=now() AT TIME ZONE 'utc'
		 WHERE id = $1`,
		t.ID, t.DefaultMaxPlayers, int32s(t.DefaultReminderOffsets),
		t.HostRoleIDs, t.ManagerRoleIDs, t.NotifyRoleIDs,
	)
	if err != nil {
		return fmt.Errorf("store: update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const channelColumns = `id, tenant_id, external_id, max_players_override,
	reminder_offsets_override, category, active, created_at, updated_at`

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var c model.Channel
	var offsets []int32
	err := row.Scan(&c.ID, &c.TenantID, &c.ExternalID, &c.MaxPlayersOverride,
		&offsets, &c.Category, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan channel: %w", err)
	}
	c.ReminderOffsetsOverride = ints(offsets)
	return &c, nil
}

func (s *Store) GetChannel(ctx context.Context, q Querier, id uuid.UUID) (*model.Channel, error) {
	return scanChannel(q.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
}

func (s *Store) GetChannelByExternalID(ctx context.Context, q Querier, tenantID uuid.UUID, externalID int64) (*model.Channel, error) {
	return scanChannel(q.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID))
}

func (s *Store) InsertChannel(ctx context.Context, q Querier, c *model.Channel) error {
	_, err := q.Exec(ctx,
		`INSERT INTO channels (id, tenant_id, external_id, max_players_override,
			reminder_offsets_override, category, active)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.TenantID, c.ExternalID, c.MaxPlayersOverride,
		int32s(c.ReminderOffsetsOverride), c.Category, c.Active,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert channel: %w", err)
	}
	return nil
}

func (s *Store) UpdateChannel(ctx context.Context, q Querier, c *model.Channel) error {
	tag, err := q.Exec(ctx,
		`UPDATE channels SET max_players_override=$2, reminder_offsets_override=$3,
			category=$4, active=$5, updated_at=now() AT TIME ZONE 'utc'
		 WHERE id = $1`,
		c.ID, c.MaxPlayersOverride, int32s(c.ReminderOffsetsOverride), c.Category, c.Active,
	)
	if err != nil {
		return fmt.Errorf("store: update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
