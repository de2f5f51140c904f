package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gamenight/scheduler/infra/redis"
	"github.com/gamenight/scheduler/internal/chat"
)

const (
	nameLRUSize = 4096
	// In-process entries expire well before the redis layer so a rename
	// propagates across replicas within the cache TTL.
	nameLRUTTL = 30 * time.Second
)

// NameResolver answers "what do we call snowflake X in tenant Y" with a
// two-level cache-aside chain: process LRU, then redis, then the platform.
// A platform failure degrades to the numeric id rather than failing the
// caller.
type NameResolver struct {
	chat   chat.Client
	cache  *redis.Cache
	lru    *expirable.LRU[string, string]
	logger *slog.Logger
}

func NewNameResolver(client chat.Client, cache *redis.Cache, logger *slog.Logger) *NameResolver {
	return &NameResolver{
		chat:   client,
		cache:  cache,
		lru:    expirable.NewLRU[string, string](nameLRUSize, nil, nameLRUTTL),
		logger: logger.With("component", "names"),
	}
}

// Resolve returns the member's display name, falling back to username, then
// to the bare snowflake.
func (r *NameResolver) Resolve(ctx context.Context, tenantExternalID, userExternalID int64) string {
	key := redis.KeyDisplayName(tenantExternalID, userExternalID)

	if name, ok := r.lru.Get(key); ok {
		return name
	}
	if name, err := r.cache.Get(ctx, key); err == nil {
		r.lru.Add(key, name)
		return name
	}

	member, err := r.chat.GetMember(ctx, tenantExternalID, userExternalID)
	if err != nil {
		r.logger.DebugContext(ctx, "NAME_LOOKUP_FAILED",
			slog.Int64("tenant_id", tenantExternalID),
			slog.Int64("user_id", userExternalID),
			slog.Any("error", err))
		return strconv.FormatInt(userExternalID, 10)
	}

	name := member.DisplayName
	if name == "" {
		name = member.Username
	}
	if name == "" {
		name = strconv.FormatInt(userExternalID, 10)
	}

	r.lru.Add(key, name)
	if err := r.cache.Set(ctx, key, name, redis.TTLDisplayName); err != nil {
		r.logger.DebugContext(ctx, "NAME_CACHE_WRITE_FAILED", slog.Any("error", err))
	}
	return name
}
