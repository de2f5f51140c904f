// Package interactions terminates the platform's button-click webhooks.
// The platform gives three seconds to acknowledge; the handler defers the
// response first and runs the roster mutation after.
package interactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/model"
)

const (
	// Platform interaction types.
	interactionPing      = 1
	interactionComponent = 3

	// mutationTimeout bounds the post-ack work; the webhook response has
	// already gone out by then.
	mutationTimeout = 25 * time.Second
)

// RosterService is the slice of the session service the webhook needs.
// Both calls finish quietly (nil, nil) on stale or duplicate clicks.
type RosterService interface {
	Join(ctx context.Context, sessionID uuid.UUID, userExternalID int64) (*model.Session, error)
	Leave(ctx context.Context, sessionID uuid.UUID, userExternalID int64) (*model.Session, error)
}

type Handler struct {
	sessions RosterService
	chat     chat.Client
	logger   *slog.Logger
}

func NewHandler(sessions RosterService, client chat.Client, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		chat:     client,
		logger:   logger.With("component", "interactions"),
	}
}

type payload struct {
	ID    uuid.UUID `json:"id"`
	Token string    `json:"token"`
	Type  int       `json:"type"`
	Data  struct {
		CustomID string `json:"custom_id"`
	} `json:"data"`
	Member struct {
		User struct {
			ID int64 `json:"id,string"`
		} `json:"user"`
	} `json:"member"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var in payload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "malformed interaction", http.StatusBadRequest)
		return
	}

	switch in.Type {
	case interactionPing:
		writeJSON(w, map[string]int{"type": interactionPing})
		return

	case interactionComponent:
		h.handleClick(r.Context(), w, in)

	default:
		// Unknown interaction kinds are acknowledged and ignored; the
		// platform retries unanswered webhooks.
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleClick(ctx context.Context, w http.ResponseWriter, in payload) {
	action, sessionID, err := parseCustomID(in.Data.CustomID)
	if err != nil {
		h.logger.WarnContext(ctx, "UNKNOWN_CUSTOM_ID", slog.String("custom_id", in.Data.CustomID))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Deferred ack inside the 3s budget. A duplicate ack means a concurrent
	// delivery of the same click already answered; the work still runs, the
	// unique index makes it harmless.
	if err := h.chat.AckInteraction(ctx, in.ID, in.Token); err != nil && !errors.Is(err, chat.ErrAlreadyAcked) {
		h.logger.ErrorContext(ctx, "INTERACTION_ACK_FAILED", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)

	// The webhook is answered; finish the mutation on our own clock, off the
	// request goroutine so the platform never waits on the database.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), mutationTimeout)
	go func() {
		defer cancel()
		h.mutate(bg, action, sessionID, in.Member.User.ID)
	}()
}

func (h *Handler) mutate(ctx context.Context, action string, sessionID uuid.UUID, userExternalID int64) {
	log := h.logger.With(
		slog.String("session_id", sessionID.String()),
		slog.Int64("user_id", userExternalID),
		slog.String("action", action),
	)

	switch action {
	case "join":
		sess, err := h.sessions.Join(ctx, sessionID, userExternalID)
		if err != nil {
			log.ErrorContext(ctx, "JOIN_FAILED", slog.Any("error", err))
			return
		}
		if sess == nil {
			return // Stale announcement or double click.
		}
		dm := fmt.Sprintf("✅ You're signed up for %q on <t:%d:F>.", sess.Title, sess.ScheduledAt.Unix())
		if err := h.chat.SendDM(ctx, userExternalID, dm); err != nil && !errors.Is(err, chat.ErrDMForbidden) {
			log.WarnContext(ctx, "JOIN_DM_FAILED", slog.Any("error", err))
		}

	case "leave":
		if _, err := h.sessions.Leave(ctx, sessionID, userExternalID); err != nil {
			log.ErrorContext(ctx, "LEAVE_FAILED", slog.Any("error", err))
		}
	}
}

// parseCustomID splits "join_{uuid}" / "leave_{uuid}".
func parseCustomID(customID string) (action string, sessionID uuid.UUID, err error) {
	action, rest, ok := strings.Cut(customID, "_")
	if !ok || (action != "join" && action != "leave") {
		return "", uuid.Nil, fmt.Errorf("unrecognized custom_id %q", customID)
	}
	sessionID, err = uuid.Parse(rest)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("custom_id %q: %w", customID, err)
	}
	return action, sessionID, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
