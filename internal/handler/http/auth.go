package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/service"
)

// sessionCookie is the opaque token cookie; its value is a random UUID the
// auth service minted.
const sessionCookie = "user_session"

type principalKey struct{}

// Authenticator resolves a session token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token uuid.UUID) (*service.Principal, error)
}

// withAuth rejects requests without a valid session cookie and stashes the
// principal in the request context.
func withAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookie)
			if err != nil {
				writeError(w, logger, service.Denied("missing session"))
				return
			}
			token, err := uuid.Parse(cookie.Value)
			if err != nil {
				writeError(w, logger, service.Denied("invalid or expired session"))
				return
			}
			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

func principalFrom(r *http.Request) *service.Principal {
	p, _ := r.Context().Value(principalKey{}).(*service.Principal)
	return p
}
