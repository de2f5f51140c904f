package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/infra/redis"
)

// AuthService bridges opaque session tokens to principals. The principal is
// snapshotted into the cache when the token is minted; membership and role
// changes on the platform surface only after the snapshot expires or the
// token is re-minted.
type AuthService struct {
	cache  *redis.Cache
	logger *slog.Logger
}

func NewAuthService(cache *redis.Cache, logger *slog.Logger) *AuthService {
	return &AuthService{cache: cache, logger: logger.With("component", "auth")}
}

// Mint stores the principal snapshot under a fresh random token.
func (a *AuthService) Mint(ctx context.Context, p *Principal) (uuid.UUID, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal principal: %w", err)
	}
	token := uuid.New()
	if err := a.cache.Set(ctx, redis.KeyUserSession(token), string(raw), redis.TTLUserSession); err != nil {
		return uuid.Nil, fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Authenticate resolves a token to its principal. Unknown, expired, and
// corrupt snapshots all answer the same way.
func (a *AuthService) Authenticate(ctx context.Context, token uuid.UUID) (*Principal, error) {
	raw, err := a.cache.Get(ctx, redis.KeyUserSession(token))
	if errors.Is(err, redis.ErrMiss) {
		return nil, Denied("invalid or expired session")
	}
	if err != nil {
		return nil, Internal(err)
	}

	var p Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		a.logger.WarnContext(ctx, "SESSION_SNAPSHOT_CORRUPT", slog.Any("error", err))
		return nil, Denied("invalid or expired session")
	}
	return &p, nil
}

// Revoke deletes the token. Revoking an unknown token succeeds.
func (a *AuthService) Revoke(ctx context.Context, token uuid.UUID) error {
	if err := a.cache.Del(ctx, redis.KeyUserSession(token)); err != nil {
		return Internal(err)
	}
	return nil
}
