package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/model"
)

// maxMentionSuggestions caps the candidate list in ambiguity errors.
const maxMentionSuggestions = 5

// RosterInput is one desired pre-populated seat, either a reference to a
// real member or a placeholder label. Exactly one field is set.
type RosterInput struct {
	// Mention references a member: "@handle", a platform mention tag
	// "<@123>", or a raw snowflake.
	Mention string `json:"mention,omitempty"`
	// Placeholder reserves a seat under a free-form label.
	Placeholder string `json:"placeholder,omitempty"`
}

// MentionIssue is the structured detail of a failed @mention resolution.
type MentionIssue struct {
	Input       string   `json:"input"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions"`
}

// seat is a resolved roster input. Exactly one of externalID/placeholder is
// set, mirroring the participant row shape.
type seat struct {
	externalID  *int64
	placeholder *string
}

var mentionTag = regexp.MustCompile(`^<@!?(\d+)>$`)

// resolveRoster turns the caller's desired list into concrete seats,
// querying the platform for name fragments. Resolution happens before the
// transaction opens: member search is an external call and must not extend
// a row lock.
func resolveRoster(ctx context.Context, client chat.Client, tenant *model.Tenant, inputs []RosterInput) ([]seat, error) {
	seats := make([]seat, 0, len(inputs))
	for _, in := range inputs {
		switch {
		case in.Placeholder != "":
			name := in.Placeholder
			seats = append(seats, seat{placeholder: &name})

		case in.Mention != "":
			id, err := resolveMention(ctx, client, tenant.ExternalID, in.Mention)
			if err != nil {
				return nil, err
			}
			seats = append(seats, seat{externalID: &id})

		default:
			return nil, Invalid("roster entry needs a mention or a placeholder", nil)
		}
	}
	return seats, nil
}

func resolveMention(ctx context.Context, client chat.Client, tenantExternalID int64, mention string) (int64, error) {
	if m := mentionTag.FindStringSubmatch(mention); m != nil {
		return strconv.ParseInt(m[1], 10, 64)
	}
	if id, err := strconv.ParseInt(mention, 10, 64); err == nil {
		return id, nil
	}

	query := strings.TrimPrefix(mention, "@")
	if query == "" {
		return 0, Invalid("empty mention", MentionIssue{Input: mention, Reason: "empty", Suggestions: []string{}})
	}

	members, err := client.SearchMembers(ctx, tenantExternalID, query, maxMentionSuggestions+1)
	if err != nil {
		return 0, Internal(err)
	}

	// An exact handle match wins even when the fragment search returns
	// neighbours like "sam" and "samwise".
	var exact []chat.Member
	for _, m := range members {
		if strings.EqualFold(m.Username, query) || strings.EqualFold(m.DisplayName, query) {
			exact = append(exact, m)
		}
	}
	if len(exact) == 1 {
		return exact[0].UserExternalID, nil
	}
	if len(exact) > 1 {
		members = exact
	}

	switch len(members) {
	case 0:
		return 0, Invalid("unknown member", MentionIssue{
			Input: mention, Reason: "no member matches", Suggestions: []string{},
		})
	case 1:
		return members[0].UserExternalID, nil
	default:
		suggestions := make([]string, 0, maxMentionSuggestions)
		for _, m := range members {
			if len(suggestions) == maxMentionSuggestions {
				break
			}
			suggestions = append(suggestions, m.Username)
		}
		return 0, Invalid("ambiguous mention", MentionIssue{
			Input: mention, Reason: "multiple members match", Suggestions: suggestions,
		})
	}
}
