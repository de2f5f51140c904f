package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/infra/postgres"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/store"
)

// AdminService covers tenant configuration, channels, and templates: the
// administrative surface behind the mutation API.
type AdminService struct {
	store  *store.Store
	logger *slog.Logger
}

func NewAdminService(st *store.Store, logger *slog.Logger) *AdminService {
	return &AdminService{store: st, logger: logger.With("component", "admin")}
}

// canAdminister: manager-role holders and admins configure the tenant.
func (a *AdminService) canAdminister(p *Principal, tenant *model.Tenant) bool {
	if p.Admin {
		return true
	}
	return p.memberOf(tenant.ExternalID) && p.holdsAny(tenant.ExternalID, tenant.ManagerRoleIDs)
}

func (a *AdminService) tenantFor(ctx context.Context, p *Principal, tenantExternalID int64) (*model.Tenant, error) {
	if !p.memberOf(tenantExternalID) && !p.Admin {
		return nil, NotFound("tenant")
	}
	// First reference creates the ledger row; tenants are never pre-registered.
	tenant, err := a.store.EnsureTenant(ctx, a.store.Q(), tenantExternalID)
	if err != nil {
		return nil, Internal(err)
	}
	return tenant, nil
}

func (a *AdminService) GetTenantConfig(ctx context.Context, p *Principal, tenantExternalID int64) (*model.Tenant, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	return a.tenantFor(ctx, p, tenantExternalID)
}

type TenantConfigInput struct {
	DefaultMaxPlayers      *int    `json:"default_max_players,omitempty"`
	DefaultReminderOffsets []int   `json:"default_reminder_offsets,omitempty"`
	HostRoleIDs            []int64 `json:"host_role_ids,omitempty"`
	ManagerRoleIDs         []int64 `json:"manager_role_ids,omitempty"`
	NotifyRoleIDs          []int64 `json:"notify_role_ids,omitempty"`
}

func (a *AdminService) UpdateTenantConfig(ctx context.Context, p *Principal, tenantExternalID int64, in TenantConfigInput) (*model.Tenant, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	tenant, err := a.tenantFor(ctx, p, tenantExternalID)
	if err != nil {
		return nil, err
	}
	if !a.canAdminister(p, tenant) {
		return nil, NotFound("tenant")
	}
	for _, off := range in.DefaultReminderOffsets {
		if off <= 0 {
			return nil, Invalid("reminder offsets must be positive minutes", nil)
		}
	}

	if in.DefaultMaxPlayers != nil {
		tenant.DefaultMaxPlayers = in.DefaultMaxPlayers
	}
	if in.DefaultReminderOffsets != nil {
		tenant.DefaultReminderOffsets = in.DefaultReminderOffsets
	}
	if in.HostRoleIDs != nil {
		tenant.HostRoleIDs = in.HostRoleIDs
	}
	if in.ManagerRoleIDs != nil {
		tenant.ManagerRoleIDs = in.ManagerRoleIDs
	}
	if in.NotifyRoleIDs != nil {
		tenant.NotifyRoleIDs = in.NotifyRoleIDs
	}

	if err := a.store.UpdateTenantConfig(ctx, a.store.Q(), tenant); err != nil {
		return nil, Internal(err)
	}
	return tenant, nil
}

type ChannelInput struct {
	ExternalID              int64   `json:"channel_id,string"`
	MaxPlayersOverride      *int    `json:"max_players_override,omitempty"`
	ReminderOffsetsOverride []int   `json:"reminder_offsets_override,omitempty"`
	Category                *string `json:"category,omitempty"`
	Active                  *bool   `json:"active,omitempty"`
}

// UpsertChannel registers or reconfigures an announcement channel.
func (a *AdminService) UpsertChannel(ctx context.Context, p *Principal, tenantExternalID int64, in ChannelInput) (*model.Channel, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	tenant, err := a.tenantFor(ctx, p, tenantExternalID)
	if err != nil {
		return nil, err
	}
	if !a.canAdminister(p, tenant) {
		return nil, NotFound("tenant")
	}

	channel, err := a.store.GetChannelByExternalID(ctx, a.store.Q(), tenant.ID, in.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		channel = &model.Channel{
			ID:         uuid.New(),
			TenantID:   tenant.ID,
			ExternalID: in.ExternalID,
			Active:     true,
		}
		applyChannelInput(channel, in)
		if err := a.store.InsertChannel(ctx, a.store.Q(), channel); err != nil {
			return nil, Internal(err)
		}
		return channel, nil
	}
	if err != nil {
		return nil, Internal(err)
	}

	applyChannelInput(channel, in)
	if err := a.store.UpdateChannel(ctx, a.store.Q(), channel); err != nil {
		return nil, Internal(err)
	}
	return channel, nil
}

func applyChannelInput(c *model.Channel, in ChannelInput) {
	if in.MaxPlayersOverride != nil {
		c.MaxPlayersOverride = in.MaxPlayersOverride
	}
	if in.ReminderOffsetsOverride != nil {
		c.ReminderOffsetsOverride = in.ReminderOffsetsOverride
	}
	if in.Category != nil {
		c.Category = in.Category
	}
	if in.Active != nil {
		c.Active = *in.Active
	}
}

type TemplateInput struct {
	Name            string  `json:"name"`
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	SignupNotes     *string `json:"signup_notes,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	MinPlayers      *int    `json:"min_players,omitempty"`
	MaxPlayers      *int    `json:"max_players,omitempty"`
	ReminderOffsets []int   `json:"reminder_offsets,omitempty"`
	Ordering        int     `json:"ordering"`
	IsDefault       bool    `json:"is_default"`
}

func (a *AdminService) ListTemplates(ctx context.Context, p *Principal, tenantExternalID int64) ([]model.Template, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	tenant, err := a.tenantFor(ctx, p, tenantExternalID)
	if err != nil {
		return nil, err
	}
	templates, err := a.store.ListTemplates(ctx, a.store.Q(), tenant.ID)
	if err != nil {
		return nil, Internal(err)
	}
	return templates, nil
}

func (a *AdminService) CreateTemplate(ctx context.Context, p *Principal, tenantExternalID int64, in TemplateInput) (*model.Template, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	tenant, err := a.tenantFor(ctx, p, tenantExternalID)
	if err != nil {
		return nil, err
	}
	if !a.canAdminister(p, tenant) {
		return nil, NotFound("tenant")
	}
	if in.Name == "" {
		return nil, Invalid("template name is required", nil)
	}

	tpl := &model.Template{ID: uuid.New(), TenantID: tenant.ID}
	applyTemplateInput(tpl, in)

	// The default flag handoff and the insert must move together.
	err = a.store.WithTx(ctx, func(q store.Querier) error {
		if err := a.store.InsertTemplate(ctx, q, tpl); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return Conflict("template name already in use")
			}
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func (a *AdminService) UpdateTemplate(ctx context.Context, p *Principal, tenantExternalID int64, id uuid.UUID, in TemplateInput) (*model.Template, error) {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	tenant, err := a.tenantFor(ctx, p, tenantExternalID)
	if err != nil {
		return nil, err
	}
	if !a.canAdminister(p, tenant) {
		return nil, NotFound("tenant")
	}

	var tpl *model.Template
	err = a.store.WithTx(ctx, func(q store.Querier) error {
		tpl, err = a.store.GetTemplate(ctx, q, id)
		if errors.Is(err, store.ErrNotFound) || (tpl != nil && tpl.TenantID != tenant.ID) {
			return NotFound("template")
		}
		if err != nil {
			return Internal(err)
		}
		applyTemplateInput(tpl, in)
		if err := a.store.UpdateTemplate(ctx, q, tpl); err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func (a *AdminService) DeleteTemplate(ctx context.Context, p *Principal, tenantExternalID int64, id uuid.UUID) error {
	ctx = postgres.BindTenants(ctx, p.TenantExternalIDs)
	tenant, err := a.tenantFor(ctx, p, tenantExternalID)
	if err != nil {
		return err
	}
	if !a.canAdminister(p, tenant) {
		return NotFound("tenant")
	}

	tpl, err := a.store.GetTemplate(ctx, a.store.Q(), id)
	if errors.Is(err, store.ErrNotFound) || (tpl != nil && tpl.TenantID != tenant.ID) {
		return NotFound("template")
	}
	if err != nil {
		return Internal(err)
	}
	if err := a.store.DeleteTemplate(ctx, a.store.Q(), id); err != nil {
		return Internal(err)
	}
	return nil
}

func applyTemplateInput(tpl *model.Template, in TemplateInput) {
	if in.Name != "" {
		tpl.Name = in.Name
	}
	tpl.Title = in.Title
	tpl.Description = in.Description
	tpl.SignupNotes = in.SignupNotes
	tpl.DurationMinutes = in.DurationMinutes
	tpl.MinPlayers = in.MinPlayers
	tpl.MaxPlayers = in.MaxPlayers
	tpl.ReminderOffsets = in.ReminderOffsets
	tpl.Ordering = in.Ordering
	tpl.IsDefault = in.IsDefault
}
