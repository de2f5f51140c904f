package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type ctxKey int

const tenantBindingKey ctxKey = iota

// BindTenants returns a context carrying the set of tenant external IDs the
// current principal may see. Call it once per request, as soon as the
// caller's tenant membership is known. Concurrent requests carry independent
// bindings; the binding dies with the context.
func BindTenants(ctx context.Context, externalIDs []int64) context.Context {
	ids := make([]int64, len(externalIDs))
	copy(ids, externalIDs)
	return context.WithValue(ctx, tenantBindingKey, ids)
}

// TenantsBound reports whether ctx carries a tenant binding.
func TenantsBound(ctx context.Context) bool {
	_, ok := ctx.Value(tenantBindingKey).([]int64)
	return ok
}

// BoundTenants returns the bound external IDs, or nil when unbound.
func BoundTenants(ctx context.Context) []int64 {
	ids, _ := ctx.Value(tenantBindingKey).([]int64)
	return ids
}

// applyTenantBinding runs SET LOCAL app.tenant_ids inside tx when the
// context is bound. set_config with is_local=true scopes the parameter to
// the transaction, so nothing leaks back into the pooled connection.
func applyTenantBinding(ctx context.Context, tx pgx.Tx) error {
	ids, ok := ctx.Value(tenantBindingKey).([]int64)
	if !ok {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`SELECT set_config('app.tenant_ids', $1, true)`, joinIDs(ids),
	); err != nil {
		return fmt.Errorf("postgres: bind tenants: %w", err)
	}
	return nil
}

// execer is the slice of a pgx connection the binding statements need.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// applySessionBinding is the acquire-time counterpart of applyTenantBinding:
// queries that run straight off the pool, outside any transaction, must see
// the same row-level security scope as transactional ones. The parameter is
// set session-wide here and reset by clearSessionBinding on release.
func applySessionBinding(ctx context.Context, conn execer) error {
	ids, ok := ctx.Value(tenantBindingKey).([]int64)
	if !ok {
		return nil
	}
	if _, err := conn.Exec(ctx,
		`SELECT set_config('app.tenant_ids', $1, false)`, joinIDs(ids),
	); err != nil {
		return fmt.Errorf("postgres: bind tenants: %w", err)
	}
	return nil
}

// clearSessionBinding resets the parameter before the connection goes back
// into the pool. A binding left on a reused connection would scope the next
// caller's queries to the wrong tenants.
func clearSessionBinding(conn execer) error {
	if _, err := conn.Exec(context.Background(), `RESET app.tenant_ids`); err != nil {
		return fmt.Errorf("postgres: reset tenant binding: %w", err)
	}
	return nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
