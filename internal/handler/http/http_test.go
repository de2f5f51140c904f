package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/service"
	"github.com/gamenight/scheduler/internal/store"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(service.KindInvalid))
	assert.Equal(t, http.StatusForbidden, statusFor(service.KindDenied))
	assert.Equal(t, http.StatusNotFound, statusFor(service.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(service.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, statusFor(service.KindInternal))
}

func TestWriteErrorShapes(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("structured details pass through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, logger, service.Invalid("ambiguous mention", service.MentionIssue{
			Input:       "@sam",
			Reason:      "multiple members match",
			Suggestions: []string{"sam", "samwise"},
		}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "invalid", body["error"]["kind"])
		assert.Equal(t, "ambiguous mention", body["error"]["message"])
		details := body["error"]["details"].(map[string]any)
		assert.Equal(t, "@sam", details["input"])
	})

	t.Run("internal errors stay opaque", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, logger, service.Internal(errors.New("pq: connection refused")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.Contains(t, rec.Body.String(), "internal error")
	})

	t.Run("unknown errors classified internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, logger, errors.New("surprise"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type fakeAuth struct {
	principal *service.Principal
	err       error
	token     uuid.UUID
}

func (f *fakeAuth) Authenticate(_ context.Context, token uuid.UUID) (*service.Principal, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return f.principal, nil
}

func TestWithAuth(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	principal := &service.Principal{UserID: uuid.New()}

	var seen *service.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = principalFrom(r)
	})

	t.Run("valid cookie passes the principal along", func(t *testing.T) {
		auth := &fakeAuth{principal: principal}
		token := uuid.New()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token.String()})

		rec := httptest.NewRecorder()
		withAuth(auth, logger)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Same(t, principal, seen)
		assert.Equal(t, token, auth.token)
	})

	t.Run("missing cookie rejected", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		withAuth(&fakeAuth{}, logger)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("garbage token rejected without a lookup", func(t *testing.T) {
		auth := &fakeAuth{}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "not-a-uuid"})

		rec := httptest.NewRecorder()
		withAuth(auth, logger)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, uuid.Nil, auth.token)
	})

	t.Run("expired session surfaces the service error", func(t *testing.T) {
		auth := &fakeAuth{err: service.Denied("invalid or expired session")}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: uuid.New().String()})

		rec := httptest.NewRecorder()
		withAuth(auth, logger)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestToDetailResponseSeatsMatchArbiter(t *testing.T) {
	max := 2
	sess := &model.Session{ID: uuid.New(), MaxPlayers: &max, Status: model.StatusScheduled}

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	name := "guest of honor"
	one := 1
	ext := int64(77)

	entries := []store.RosterEntry{
		{Participant: model.Participant{
			ID: uuid.New(), SessionID: sess.ID, DisplayName: &name,
			JoinedAt: base, Position: model.PositionPrePopulated, PreFillPosition: &one,
		}},
		{Participant: model.Participant{
			ID: uuid.New(), SessionID: sess.ID, UserID: ptr(uuid.New()),
			JoinedAt: base.Add(time.Minute), Position: model.PositionSelfAdded,
		}, UserExternalID: &ext},
		{Participant: model.Participant{
			ID: uuid.New(), SessionID: sess.ID, UserID: ptr(uuid.New()),
			JoinedAt: base.Add(2 * time.Minute), Position: model.PositionSelfAdded,
		}},
	}

	names := map[int64]string{77: "Samwise"}
	out := toDetailResponse(sess, entries, func(id int64) string { return names[id] })
	require.Len(t, out.Roster, 3)

	assert.Equal(t, "confirmed", out.Roster[0].Seat, "placeholder holds a confirmed seat")
	assert.Equal(t, "confirmed", out.Roster[1].Seat)
	assert.Equal(t, "waitlist", out.Roster[2].Seat, "third joiner waits behind max_players=2")

	require.NotNil(t, out.Roster[1].UserExternalID)
	assert.Equal(t, "77", *out.Roster[1].UserExternalID)
	require.NotNil(t, out.Roster[1].DisplayName)
	assert.Equal(t, "Samwise", *out.Roster[1].DisplayName)
	assert.Equal(t, "guest of honor", *out.Roster[0].DisplayName, "placeholder label preserved")
}

func ptr[T any](v T) *T { return &v }
