package interactions

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/model"
)

type fakeRoster struct {
	mu      sync.Mutex
	joins   []uuid.UUID
	leaves  []uuid.UUID
	joinRes *model.Session
	done    chan struct{}
}

func (f *fakeRoster) Join(_ context.Context, sessionID uuid.UUID, _ int64) (*model.Session, error) {
	f.mu.Lock()
	f.joins = append(f.joins, sessionID)
	f.mu.Unlock()
	defer close(f.done)
	return f.joinRes, nil
}

func (f *fakeRoster) Leave(_ context.Context, sessionID uuid.UUID, _ int64) (*model.Session, error) {
	f.mu.Lock()
	f.leaves = append(f.leaves, sessionID)
	f.mu.Unlock()
	close(f.done)
	return nil, nil
}

type fakeClickChat struct {
	chat.Client

	mu     sync.Mutex
	acks   int
	ackErr error
	dms    []string
	dmDone chan struct{}
}

func (f *fakeClickChat) AckInteraction(context.Context, uuid.UUID, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return f.ackErr
}

func (f *fakeClickChat) SendDM(_ context.Context, _ int64, content string) error {
	f.mu.Lock()
	f.dms = append(f.dms, content)
	f.mu.Unlock()
	if f.dmDone != nil {
		close(f.dmDone)
	}
	return nil
}

func clickBody(t *testing.T, customID string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":     uuid.New().String(),
		"token":  "tok",
		"type":   interactionComponent,
		"data":   map[string]string{"custom_id": customID},
		"member": map[string]any{"user": map[string]string{"id": "555"}},
	})
	require.NoError(t, err)
	return raw
}

func await(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never reached the roster service")
	}
}

func TestPingAnswered(t *testing.T) {
	h := NewHandler(&fakeRoster{}, &fakeClickChat{}, slog.New(slog.DiscardHandler))

	body, _ := json.Marshal(map[string]any{"type": interactionPing})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":1}`, rec.Body.String())
}

func TestJoinClickAcksMutatesAndDMs(t *testing.T) {
	sessionID := uuid.New()
	roster := &fakeRoster{
		done: make(chan struct{}),
		joinRes: &model.Session{
			ID:          sessionID,
			Title:       "Friday one-shot",
			ScheduledAt: time.Date(2026, 9, 4, 19, 0, 0, 0, time.UTC),
		},
	}
	client := &fakeClickChat{dmDone: make(chan struct{})}
	h := NewHandler(roster, client, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions",
		bytes.NewReader(clickBody(t, fmt.Sprintf("join_%s", sessionID)))))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	await(t, roster.done)
	await(t, client.dmDone)

	assert.Equal(t, []uuid.UUID{sessionID}, roster.joins)
	assert.Equal(t, 1, client.acks)
	require.Len(t, client.dms, 1)
	assert.Contains(t, client.dms[0], "Friday one-shot")
}

func TestJoinWithNothingToDoSkipsDM(t *testing.T) {
	sessionID := uuid.New()
	roster := &fakeRoster{done: make(chan struct{})} // joinRes nil: stale or duplicate
	client := &fakeClickChat{}
	h := NewHandler(roster, client, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions",
		bytes.NewReader(clickBody(t, fmt.Sprintf("join_%s", sessionID)))))

	await(t, roster.done)
	assert.Empty(t, client.dms)
}

func TestLeaveClick(t *testing.T) {
	sessionID := uuid.New()
	roster := &fakeRoster{done: make(chan struct{})}
	h := NewHandler(roster, &fakeClickChat{}, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions",
		bytes.NewReader(clickBody(t, fmt.Sprintf("leave_%s", sessionID)))))

	await(t, roster.done)
	assert.Equal(t, []uuid.UUID{sessionID}, roster.leaves)
}

func TestDuplicateAckStillProcessesClick(t *testing.T) {
	sessionID := uuid.New()
	roster := &fakeRoster{done: make(chan struct{})}
	client := &fakeClickChat{ackErr: chat.ErrAlreadyAcked}
	h := NewHandler(roster, client, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions",
		bytes.NewReader(clickBody(t, fmt.Sprintf("join_%s", sessionID)))))

	await(t, roster.done)
	assert.Len(t, roster.joins, 1)
}

func TestUnknownCustomIDIgnored(t *testing.T) {
	roster := &fakeRoster{done: make(chan struct{})}
	h := NewHandler(roster, &fakeClickChat{}, slog.New(slog.DiscardHandler))

	for _, customID := range []string{"nuke_all", "join_not-a-uuid", ""} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions",
			bytes.NewReader(clickBody(t, customID))))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Empty(t, roster.joins)
	assert.Empty(t, roster.leaves)
}

func TestParseCustomID(t *testing.T) {
	id := uuid.New()

	action, got, err := parseCustomID("join_" + id.String())
	require.NoError(t, err)
	assert.Equal(t, "join", action)
	assert.Equal(t, id, got)

	action, got, err = parseCustomID("leave_" + id.String())
	require.NoError(t, err)
	assert.Equal(t, "leave", action)
	assert.Equal(t, id, got)

	_, _, err = parseCustomID("promote_" + id.String())
	assert.Error(t, err)
}

func TestVerifyMiddleware(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })
	wrapped := Verify(pub)(next)

	body := []byte(`{"type":1}`)
	ts := "1693000000"

	t.Run("valid signature passes with body intact", func(t *testing.T) {
		sig := ed25519.Sign(priv, append([]byte(ts), body...))
		req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
		req.Header.Set(headerSignature, hex.EncodeToString(sig))
		req.Header.Set(headerTimestamp, ts)

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		assert.True(t, reached)
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		reached = false
		sig := ed25519.Sign(priv, []byte("something else"))
		req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
		req.Header.Set(headerSignature, hex.EncodeToString(sig))
		req.Header.Set(headerTimestamp, ts)

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reached)
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
