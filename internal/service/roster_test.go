package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/model"
)

type fakeSearchClient struct {
	chat.Client // panics on anything not overridden

	members   []chat.Member
	lastQuery string
}

func (f *fakeSearchClient) SearchMembers(_ context.Context, _ int64, query string, limit int) ([]chat.Member, error) {
	f.lastQuery = query
	if limit < len(f.members) {
		return f.members[:limit], nil
	}
	return f.members, nil
}

func testTenant() *model.Tenant {
	return &model.Tenant{ID: uuid.New(), ExternalID: 900}
}

func TestResolveMentionTagAndSnowflake(t *testing.T) {
	client := &fakeSearchClient{}

	id, err := resolveMention(context.Background(), client, 900, "<@123456789>")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), id)

	id, err = resolveMention(context.Background(), client, 900, "<@!42>")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = resolveMention(context.Background(), client, 900, "987654")
	require.NoError(t, err)
	assert.Equal(t, int64(987654), id)

	// None of these forms should reach the platform.
	assert.Empty(t, client.lastQuery)
}

func TestResolveMentionSingleMatch(t *testing.T) {
	client := &fakeSearchClient{members: []chat.Member{
		{UserExternalID: 7, Username: "frodo"},
	}}

	id, err := resolveMention(context.Background(), client, 900, "@frodo")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "frodo", client.lastQuery)
}

func TestResolveMentionExactMatchBeatsPrefixes(t *testing.T) {
	client := &fakeSearchClient{members: []chat.Member{
		{UserExternalID: 1, Username: "samwise"},
		{UserExternalID: 2, Username: "sam"},
		{UserExternalID: 3, Username: "samantha"},
	}}

	id, err := resolveMention(context.Background(), client, 900, "@sam")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestResolveMentionAmbiguousListsSuggestions(t *testing.T) {
	client := &fakeSearchClient{members: []chat.Member{
		{UserExternalID: 1, Username: "gim"},
		{UserExternalID: 2, Username: "gimli"},
		{UserExternalID: 3, Username: "gimbal"},
	}}

	_, err := resolveMention(context.Background(), client, 900, "@gi")
	require.Error(t, err)

	se, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalid, se.Kind)

	issue, ok := se.Details.(MentionIssue)
	require.True(t, ok)
	assert.Equal(t, "@gi", issue.Input)
	assert.Equal(t, []string{"gim", "gimli", "gimbal"}, issue.Suggestions)
}

func TestResolveMentionSuggestionsCapped(t *testing.T) {
	var members []chat.Member
	for i := 0; i < maxMentionSuggestions+3; i++ {
		members = append(members, chat.Member{
			UserExternalID: int64(i + 1),
			Username:       "player" + string(rune('a'+i)),
		})
	}
	client := &fakeSearchClient{members: members}

	_, err := resolveMention(context.Background(), client, 900, "@player")
	require.Error(t, err)

	se, _ := AsError(err)
	issue := se.Details.(MentionIssue)
	assert.Len(t, issue.Suggestions, maxMentionSuggestions)
}

func TestResolveMentionUnknownMember(t *testing.T) {
	client := &fakeSearchClient{}

	_, err := resolveMention(context.Background(), client, 900, "@nobody")
	require.Error(t, err)

	se, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalid, se.Kind)

	issue := se.Details.(MentionIssue)
	assert.Equal(t, "@nobody", issue.Input)
	assert.NotNil(t, issue.Suggestions)
	assert.Empty(t, issue.Suggestions)
}

func TestResolveRosterMixedSeats(t *testing.T) {
	client := &fakeSearchClient{members: []chat.Member{
		{UserExternalID: 11, Username: "merry"},
	}}

	seats, err := resolveRoster(context.Background(), client, testTenant(), []RosterInput{
		{Mention: "@merry"},
		{Placeholder: "friend of the host"},
		{Mention: "<@55>"},
	})
	require.NoError(t, err)
	require.Len(t, seats, 3)

	require.NotNil(t, seats[0].externalID)
	assert.Equal(t, int64(11), *seats[0].externalID)
	assert.Nil(t, seats[0].placeholder)

	require.NotNil(t, seats[1].placeholder)
	assert.Equal(t, "friend of the host", *seats[1].placeholder)

	require.NotNil(t, seats[2].externalID)
	assert.Equal(t, int64(55), *seats[2].externalID)
}

func TestResolveRosterRejectsEmptyEntry(t *testing.T) {
	_, err := resolveRoster(context.Background(), &fakeSearchClient{}, testTenant(), []RosterInput{{}})
	require.Error(t, err)
	assert.Equal(t, KindInvalid, KindOf(err))
}
