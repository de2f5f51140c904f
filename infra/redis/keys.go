package redis

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The full cache key surface lives here so every TTL decision is visible in
// one place.
const (
	TTLRefreshThrottle = time.Second
	TTLReminderSent    = 7 * 24 * time.Hour
	TTLUserTenants     = 5 * time.Minute
	TTLDisplayName     = 5 * time.Minute
	TTLUserSession     = 24 * time.Hour
)

// KeyRefreshThrottle arms the 1s cooldown between chat edits of a session's
// announcement.
func KeyRefreshThrottle(sessionID uuid.UUID) string {
	return "chat_refresh_throttle:" + sessionID.String()
}

// KeyReminderSent dedups reminder DMs per (session, recipient, offset). The
// recipient is the platform snowflake: role-based recipients may have no
// ledger row yet.
func KeyReminderSent(sessionID uuid.UUID, userExternalID int64, offsetMinutes int) string {
	return fmt.Sprintf("reminder_sent:%s:%d:%d", sessionID, userExternalID, offsetMinutes)
}

// KeyUserTenants caches a user's tenant membership list.
func KeyUserTenants(userExternalID int64) string {
	return fmt.Sprintf("user_tenants:%d", userExternalID)
}

// KeyDisplayName caches a resolved display name inside one tenant.
func KeyDisplayName(tenantExternalID, userExternalID int64) string {
	return fmt.Sprintf("display_name:%d:%d", tenantExternalID, userExternalID)
}

// KeyUserSession bridges an opaque, unpredictable session token to a user
// id. The token is a random UUID, never a derivable value.
func KeyUserSession(token uuid.UUID) string {
	return "user_session:" + token.String()
}
