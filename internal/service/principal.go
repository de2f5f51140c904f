package service

import (
	"slices"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// Principal is the authenticated caller of a mutation. Tenant membership and
// role holdings are snapshotted when the session token is minted.
type Principal struct {
	UserID         uuid.UUID
	UserExternalID int64
	// TenantExternalIDs the caller belongs to; every transaction binds these
	// for row-level security.
	TenantExternalIDs []int64
	// RoleIDs held per tenant, keyed by tenant external id.
	RoleIDs map[int64][]int64
	Admin   bool
}

func (p *Principal) memberOf(tenantExternalID int64) bool {
	return slices.Contains(p.TenantExternalIDs, tenantExternalID)
}

func (p *Principal) holdsAny(tenantExternalID int64, roles []int64) bool {
	held := p.RoleIDs[tenantExternalID]
	for _, r := range roles {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// CanHost reports whether the principal may create sessions in the tenant.
// A tenant with no host roles configured lets any member host.
func (p *Principal) CanHost(tenant *model.Tenant) bool {
	if p.Admin {
		return true
	}
	if !p.memberOf(tenant.ExternalID) {
		return false
	}
	if len(tenant.HostRoleIDs) == 0 {
		return true
	}
	return p.holdsAny(tenant.ExternalID, tenant.HostRoleIDs) ||
		p.holdsAny(tenant.ExternalID, tenant.ManagerRoleIDs)
}

// CanManage reports whether the principal may mutate the session: its host,
// a manager-role holder, or an admin.
func (p *Principal) CanManage(tenant *model.Tenant, session *model.Session) bool {
	if p.Admin {
		return true
	}
	if !p.memberOf(tenant.ExternalID) {
		return false
	}
	if session.HostUserID == p.UserID {
		return true
	}
	return p.holdsAny(tenant.ExternalID, tenant.ManagerRoleIDs)
}
