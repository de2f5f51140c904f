package announce

import (
	"fmt"
	"strings"

	"github.com/gamenight/scheduler/internal/chat"
	"github.com/gamenight/scheduler/internal/domain/model"
	"github.com/gamenight/scheduler/internal/roster"
	"github.com/gamenight/scheduler/internal/store"
)

const (
	colorScheduled  = 0x57F287
	colorInProgress = 0xFEE75C
	colorFinished   = 0x95A5A6
	colorCancelled  = 0xED4245
)

// View is everything the renderer needs; it holds no live handles so the
// output is a pure function of its fields.
type View struct {
	Session        *model.Session
	HostExternalID int64
	Roster         []store.RosterEntry
	// NotifyRoleIDs go into the plain content so platform pings fire. Only
	// the initial announcement mentions them; refreshes must not re-ping.
	NotifyRoleIDs []int64
}

// Render builds the full announcement message for the session's current
// state. The roster section is recomputed from the raw rows on every call,
// so the message can never drift from the database.
func Render(v View) chat.OutboundMessage {
	sess := v.Session

	part := roster.Arbiter(participants(v.Roster), sess.MaxPlayers)
	names := displayNames(v.Roster)

	embed := &chat.Embed{
		Title:       title(sess),
		Description: description(sess),
		Color:       color(sess.Status),
		Fields: []chat.EmbedField{
			{Name: "When", Value: fmt.Sprintf("<t:%d:F>", sess.ScheduledAt.Unix()), Inline: true},
			{Name: "Host", Value: mention(v.HostExternalID), Inline: true},
			{Name: "Players", Value: playerCount(sess, part), Inline: true},
			{Name: "Confirmed", Value: rosterList(part.Confirmed, names)},
		},
	}
	if len(part.Waitlist) > 0 {
		embed.Fields = append(embed.Fields,
			chat.EmbedField{Name: "Waitlist", Value: rosterList(part.Waitlist, names)})
	}
	if sess.SignupNotes != nil && *sess.SignupNotes != "" {
		embed.Fields = append(embed.Fields,
			chat.EmbedField{Name: "Signup notes", Value: *sess.SignupNotes})
	}

	return chat.OutboundMessage{
		Content: content(sess, v.NotifyRoleIDs),
		Embed:   embed,
		Buttons: buttons(sess),
	}
}

func title(sess *model.Session) string {
	switch sess.Status {
	case model.StatusCancelled:
		return "[CANCELLED] " + sess.Title
	case model.StatusInProgress:
		return "[LIVE] " + sess.Title
	default:
		return sess.Title
	}
}

func description(sess *model.Session) string {
	if sess.Description != nil {
		return *sess.Description
	}
	return ""
}

func color(status model.Status) int {
	switch status {
	case model.StatusInProgress:
		return colorInProgress
	case model.StatusCompleted:
		return colorFinished
	case model.StatusCancelled:
		return colorCancelled
	default:
		return colorScheduled
	}
}

func content(sess *model.Session, notifyRoles []int64) string {
	var b strings.Builder
	for _, r := range notifyRoles {
		fmt.Fprintf(&b, "<@&%d> ", r)
	}
	switch sess.Status {
	case model.StatusScheduled:
		fmt.Fprintf(&b, "A game session is looking for players, starting <t:%d:R>.",
			sess.ScheduledAt.Unix())
	case model.StatusInProgress:
		b.WriteString("The session is underway.")
	case model.StatusCompleted:
		b.WriteString("This session has finished.")
	case model.StatusCancelled:
		b.WriteString("This session was cancelled.")
	}
	return b.String()
}

func playerCount(sess *model.Session, part roster.Partition) string {
	if sess.MaxPlayers == nil {
		return fmt.Sprintf("%d", len(part.Confirmed))
	}
	return fmt.Sprintf("%d/%d", len(part.Confirmed), *sess.MaxPlayers)
}

// buttons stay attached in terminal states but disabled, so the dead
// announcement still looks like itself.
func buttons(sess *model.Session) []chat.Button {
	disabled := sess.Status != model.StatusScheduled
	return []chat.Button{
		{Label: "Join", CustomID: "join_" + sess.ID.String(), Disabled: disabled},
		{Label: "Leave", CustomID: "leave_" + sess.ID.String(), Disabled: disabled},
	}
}

func mention(externalID int64) string {
	return fmt.Sprintf("<@%d>", externalID)
}

func participants(entries []store.RosterEntry) []model.Participant {
	out := make([]model.Participant, len(entries))
	for i, e := range entries {
		out[i] = e.Participant
	}
	return out
}

// displayNames maps participant row id to the rendered name: a mention for
// real users, the stored display name for placeholders.
func displayNames(entries []store.RosterEntry) map[string]string {
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		switch {
		case e.UserExternalID != nil:
			names[e.ID.String()] = mention(*e.UserExternalID)
		case e.DisplayName != nil:
			names[e.ID.String()] = *e.DisplayName
		default:
			names[e.ID.String()] = "reserved"
		}
	}
	return names
}

func rosterList(ps []model.Participant, names map[string]string) string {
	if len(ps) == 0 {
		return "Nobody yet. Be the first!"
	}
	var b strings.Builder
	for i, p := range ps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, names[p.ID.String()])
	}
	return strings.TrimRight(b.String(), "\n")
}
