package announce

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/event"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/store"
)

// ---- fakes ----

type fakeStorage struct {
	sessions map[uuid.UUID]*model.Session
	rosters  map[uuid.UUID][]store.RosterEntry
	users    map[uuid.UUID]*model.User
	tenants  map[uuid.UUID]*model.Tenant
	channels map[uuid.UUID]*model.Channel
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		sessions: map[uuid.UUID]*model.Session{},
		rosters:  map[uuid.UUID][]store.RosterEntry{},
		users:    map[uuid.UUID]*model.User{},
		tenants:  map[uuid.UUID]*model.Tenant{},
		channels: map[uuid.UUID]*model.Channel{},
	}
}

func (f *fakeStorage) Q() store.Querier { return nil }

func (f *fakeStorage) GetSession(_ context.Context, _ store.Querier, id uuid.UUID) (*model.Session, error) {
	if s, ok := f.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStorage) ListRoster(_ context.Context, _ store.Querier, id uuid.UUID) ([]store.RosterEntry, error) {
	return f.rosters[id], nil
}

func (f *fakeStorage) SetAnnouncement(_ context.Context, _ store.Querier, id uuid.UUID, messageID, channelID *int64) error {
	s := f.sessions[id]
	s.AnnouncementMessageID = messageID
	s.AnnouncementChannelID = channelID
	return nil
}

func (f *fakeStorage) SetSessionStatus(_ context.Context, _ store.Querier, id uuid.UUID, status model.Status) (bool, error) {
	s, ok := f.sessions[id]
	if !ok || s.Status.Terminal() {
		return false, nil
	}
	s.Status = status
	return true, nil
}

func (f *fakeStorage) GetUser(_ context.Context, _ store.Querier, id uuid.UUID) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStorage) GetTenant(_ context.Context, _ store.Querier, id uuid.UUID) (*model.Tenant, error) {
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStorage) GetChannel(_ context.Context, _ store.Querier, id uuid.UUID) (*model.Channel, error) {
	if c, ok := f.channels[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

type sentDM struct {
	user    int64
	content string
}

type fakeChat struct {
	nextMsgID int64
	created   []chat.OutboundMessage
	edits     []chat.OutboundMessage
	deleted   []int64
	dms       []sentDM
	dmErr     map[int64]error
	editErr   error
	members   []chat.Member
}

func (f *fakeChat) CreateMessage(_ context.Context, _ int64, msg chat.OutboundMessage) (int64, error) {
	f.created = append(f.created, msg)
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeChat) EditMessage(_ context.Context, _, _ int64, msg chat.OutboundMessage) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, msg)
	return nil
}

func (f *fakeChat) DeleteMessage(_ context.Context, _, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeChat) SendDM(_ context.Context, userExternalID int64, content string) error {
	if err := f.dmErr[userExternalID]; err != nil {
		return err
	}
	f.dms = append(f.dms, sentDM{user: userExternalID, content: content})
	return nil
}

func (f *fakeChat) SearchMembers(context.Context, int64, string, int) ([]chat.Member, error) {
	return nil, nil
}

func (f *fakeChat) GetMember(context.Context, int64, int64) (chat.Member, error) {
	return chat.Member{}, chat.ErrMessageGone
}

func (f *fakeChat) MembersWithAnyRole(context.Context, int64, []int64) ([]chat.Member, error) {
	return f.members, nil
}

func (f *fakeChat) AckInteraction(context.Context, uuid.UUID, string) error { return nil }

type fakeCache struct {
	keys map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{keys: map[string]string{}} }

func (f *fakeCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if _, exists := f.keys[key]; exists {
		return false, nil
	}
	f.keys[key] = value
	return true, nil
}

func (f *fakeCache) Del(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

// ---- fixtures ----

type fixture struct {
	a       *Announcer
	st      *fakeStorage
	ch      *fakeChat
	cache   *fakeCache
	trailed []func()

	session *model.Session
	hostExt int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStorage()
	ch := &fakeChat{dmErr: map[int64]error{}}
	cache := newFakeCache()

	f := &fixture{st: st, ch: ch, cache: cache, hostExt: 1001}
	f.a = New(st, ch, cache, slog.New(slog.DiscardHandler))
	f.a.afterFunc = func(_ time.Duration, fn func()) *time.Timer {
		f.trailed = append(f.trailed, fn)
		return time.NewTimer(time.Hour)
	}

	tenantID, channelID, hostID := uuid.New(), uuid.New(), uuid.New()
	st.tenants[tenantID] = &model.Tenant{ID: tenantID, ExternalID: 77}
	st.channels[channelID] = &model.Channel{ID: channelID, TenantID: tenantID, ExternalID: 555, Active: true}
	st.users[hostID] = &model.User{ID: hostID, ExternalID: f.hostExt}

	msgID, chanExt := int64(9000), int64(555)
	f.session = &model.Session{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		ChannelID:             channelID,
		HostUserID:            hostID,
		Title:                 "Thursday one-shot",
		ScheduledAt:           time.Date(2030, 1, 1, 19, 0, 0, 0, time.UTC),
		Status:                model.StatusScheduled,
		AnnouncementMessageID: &msgID,
		AnnouncementChannelID: &chanExt,
	}
	st.sessions[f.session.ID] = f.session
	return f
}

func (f *fixture) addConfirmed(t *testing.T, externalID int64) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	f.st.users[userID] = &model.User{ID: userID, ExternalID: externalID}
	f.st.rosters[f.session.ID] = append(f.st.rosters[f.session.ID], store.RosterEntry{
		Participant: model.Participant{
			ID:        uuid.New(),
			SessionID: f.session.ID,
			UserID:    &userID,
			JoinedAt:  time.Now(),
			Position:  model.PositionSelfAdded,
		},
		UserExternalID: &externalID,
	})
	return userID
}

// ---- refresh throttle ----

func TestRefreshThrottleCoalescesBurst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := &event.ParticipantJoined{SessionID: f.session.ID.String()}

	// First event in the window edits immediately.
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	assert.Len(t, f.ch.edits, 1)

	// Four more inside the window arm exactly one trailing refresh.
	for range 4 {
		require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	}
	assert.Len(t, f.ch.edits, 1)
	require.Len(t, f.trailed, 1)

	// Window closes; the trailing refresh lands the final state.
	delete(f.cache.keys, "chat_refresh_throttle:"+f.session.ID.String())
	f.trailed[0]()
	assert.Len(t, f.ch.edits, 2)
}

func TestTrailingRefreshRearmsAfterFiring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := &event.ParticipantJoined{SessionID: f.session.ID.String()}

	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	require.Len(t, f.trailed, 1)
	f.trailed[0]()

	// A new burst after the trailing edit must arm a fresh timer.
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	assert.Len(t, f.trailed, 2)
}

func TestTrailingRefreshReopensThrottleWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := &event.ParticipantJoined{SessionID: f.session.ID.String()}

	require.NoError(t, f.a.OnParticipantJoined(ctx, ev)) // immediate edit
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev)) // arms the trailing one
	require.Len(t, f.trailed, 1)

	// Window expires; the trailing edit fires and must open a fresh window.
	key := "chat_refresh_throttle:" + f.session.ID.String()
	delete(f.cache.keys, key)
	f.trailed[0]()
	require.Len(t, f.ch.edits, 2)
	_, set := f.cache.keys[key]
	assert.True(t, set, "the trailing edit opens its own throttle window")

	// An event right after coalesces instead of editing a third time.
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	assert.Len(t, f.ch.edits, 2)
	assert.Len(t, f.trailed, 2)
}

func TestCancelDisarmsTrailingRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := &event.ParticipantJoined{SessionID: f.session.ID.String()}

	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	require.Len(t, f.trailed, 1)

	require.NoError(t, f.a.OnSessionCancelled(ctx,
		&event.SessionCancelled{SessionID: f.session.ID.String()}))
	assert.Empty(t, f.a.trailing, "an armed timer must not outlive the session")
}

func TestDeleteDisarmsTrailingRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := &event.ParticipantJoined{SessionID: f.session.ID.String()}

	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	require.NoError(t, f.a.OnParticipantJoined(ctx, ev))
	require.Len(t, f.trailed, 1)

	msgID, chanID := int64(9000), int64(555)
	require.NoError(t, f.a.OnSessionDeleted(ctx, &event.SessionDeleted{
		SessionID:             f.session.ID.String(),
		AnnouncementMessageID: &msgID,
		AnnouncementChannelID: &chanID,
	}))
	assert.Empty(t, f.a.trailing)
}

func TestRefreshClearsGoneAnnouncement(t *testing.T) {
	f := newFixture(t)
	f.ch.editErr = chat.ErrMessageGone

	require.NoError(t, f.a.refresh(context.Background(), f.session.ID))
	assert.Nil(t, f.session.AnnouncementMessageID)
	assert.Nil(t, f.session.AnnouncementChannelID)
}

func TestRefreshSkipsUnannouncedSession(t *testing.T) {
	f := newFixture(t)
	f.session.AnnouncementMessageID = nil
	f.session.AnnouncementChannelID = nil

	require.NoError(t, f.a.refresh(context.Background(), f.session.ID))
	assert.Empty(t, f.ch.edits)
	assert.Empty(t, f.ch.created, "refresh must never recreate a lost announcement")
}

// ---- lifecycle handlers ----

func TestOnSessionCreatedPostsOnce(t *testing.T) {
	f := newFixture(t)
	f.session.AnnouncementMessageID = nil
	f.session.AnnouncementChannelID = nil
	ev := &event.SessionCreated{
		SessionID:     f.session.ID.String(),
		NotifyRoleIDs: []int64{42},
	}

	require.NoError(t, f.a.OnSessionCreated(context.Background(), ev))
	require.Len(t, f.ch.created, 1)
	assert.Contains(t, f.ch.created[0].Content, "<@&42>")
	require.NotNil(t, f.session.AnnouncementMessageID)
	assert.EqualValues(t, 555, *f.session.AnnouncementChannelID)

	// Redelivery is detected by the stored message id.
	require.NoError(t, f.a.OnSessionCreated(context.Background(), ev))
	assert.Len(t, f.ch.created, 1)
}

func TestOnSessionDeletedRemovesMessage(t *testing.T) {
	f := newFixture(t)
	msgID, chanID := int64(9000), int64(555)
	ev := &event.SessionDeleted{
		SessionID:             uuid.NewString(),
		AnnouncementMessageID: &msgID,
		AnnouncementChannelID: &chanID,
	}

	require.NoError(t, f.a.OnSessionDeleted(context.Background(), ev))
	assert.Equal(t, []int64{9000}, f.ch.deleted)

	// A session that was never announced has nothing to delete.
	require.NoError(t, f.a.OnSessionDeleted(context.Background(), &event.SessionDeleted{SessionID: uuid.NewString()}))
	assert.Len(t, f.ch.deleted, 1)
}

func TestOnStatusChangedAppliesAndRefreshes(t *testing.T) {
	f := newFixture(t)
	ev := &event.StatusChanged{SessionID: f.session.ID.String(), TargetStatus: model.StatusInProgress}

	require.NoError(t, f.a.OnStatusChanged(context.Background(), ev))
	assert.Equal(t, model.StatusInProgress, f.session.Status)
	assert.Len(t, f.ch.edits, 1)
}

func TestOnStatusChangedNeverResurrectsTerminal(t *testing.T) {
	f := newFixture(t)
	f.session.Status = model.StatusCancelled
	ev := &event.StatusChanged{SessionID: f.session.ID.String(), TargetStatus: model.StatusInProgress}

	require.NoError(t, f.a.OnStatusChanged(context.Background(), ev))
	assert.Equal(t, model.StatusCancelled, f.session.Status)
	assert.Empty(t, f.ch.edits)
}

func TestOnParticipantPromotedSendsDM(t *testing.T) {
	f := newFixture(t)
	userID := f.addConfirmed(t, 2002)
	ev := &event.ParticipantPromoted{SessionID: f.session.ID.String(), UserID: userID.String()}

	require.NoError(t, f.a.OnParticipantPromoted(context.Background(), ev))
	require.Len(t, f.ch.dms, 1)
	assert.EqualValues(t, 2002, f.ch.dms[0].user)
	assert.Contains(t, f.ch.dms[0].content, f.session.Title)
}

func TestOnParticipantPromotedToleratesClosedDMs(t *testing.T) {
	f := newFixture(t)
	userID := f.addConfirmed(t, 2002)
	f.ch.dmErr[2002] = chat.ErrDMForbidden
	ev := &event.ParticipantPromoted{SessionID: f.session.ID.String(), UserID: userID.String()}

	require.NoError(t, f.a.OnParticipantPromoted(context.Background(), ev))
	assert.Empty(t, f.ch.dms)
	assert.Len(t, f.ch.edits, 1, "the roster edit still happens")
}
