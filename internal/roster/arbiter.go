// Package roster derives confirmed seats and the waitlist from the raw
// participant rows of a session. Nothing here is persisted: the partition is
// recomputed on every read and every mutation, so the announcement can never
// disagree with the rows.
package roster

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/domain/model"
)

// Partition holds the arbiter output. Confirmed ∪ Waitlist equals the input
// set; the two never overlap.
type Partition struct {
	Confirmed []model.Participant
	Waitlist  []model.Participant
}

// Partition orders participants by the total sort key and cuts at
// maxPlayers. A nil maxPlayers confirms everyone.
//
// Sort key: pre-populated rows (host pre-fills and placeholders alike) come
// first, ordered by pre_fill_position (nulls last), then joined_at, then id;
// self-added rows follow, ordered by joined_at, then id. Placeholders count
// against max_players exactly like real users.
func Arbiter(participants []model.Participant, maxPlayers *int) Partition {
	ordered := make([]model.Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return less(&ordered[i], &ordered[j])
	})

	if maxPlayers == nil || len(ordered) <= *maxPlayers {
		return Partition{Confirmed: ordered, Waitlist: []model.Participant{}}
	}
	cut := *maxPlayers
	if cut < 0 {
		cut = 0
	}
	return Partition{Confirmed: ordered[:cut], Waitlist: ordered[cut:]}
}

func less(a, b *model.Participant) bool {
	at, bt := tier(a), tier(b)
	if at != bt {
		return at < bt
	}
	if at == 0 {
		ap, bp := prefill(a), prefill(b)
		if ap != bp {
			return ap < bp
		}
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func tier(p *model.Participant) int {
	if p.Position == model.PositionPrePopulated {
		return 0
	}
	return 1
}

// prefill maps nil to a sentinel larger than any real position (NULLS LAST).
func prefill(p *model.Participant) int {
	if p.PreFillPosition == nil {
		return int(^uint(0) >> 1)
	}
	return *p.PreFillPosition
}

// DetectPromotions returns the user ids that moved from before's waitlist
// into after's confirmed set. Users who joined straight into a seat are not
// promotions, and placeholders never promote: with no user to DM there is
// nothing to announce.
func DetectPromotions(before, after Partition) []uuid.UUID {
	prevConfirmed := userSet(before.Confirmed)
	prevWaitlist := userSet(before.Waitlist)

	var promoted []uuid.UUID
	for _, p := range after.Confirmed {
		if p.UserID == nil {
			continue
		}
		if _, was := prevConfirmed[*p.UserID]; was {
			continue
		}
		if _, waited := prevWaitlist[*p.UserID]; waited {
			promoted = append(promoted, *p.UserID)
		}
	}
	return promoted
}

func userSet(ps []model.Participant) map[uuid.UUID]struct{} {
	s := make(map[uuid.UUID]struct{}, len(ps))
	for _, p := range ps {
		if p.UserID != nil {
			s[*p.UserID] = struct{}{}
		}
	}
	return s
}
