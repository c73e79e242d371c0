package activity

import (
	"sort"
	"time"
)

// ParticipationEntry builds the scored entry of an event participation.
func ParticipationEntry(rules ScoringRules, p Participation) CategoryEntry {
	return CategoryEntry{
		Category: CategoryParticipation,
		SourceID: p.EventID,
		Label:    p.EventName,
		Date:     copyTime(p.Date),
		Score:    rules.Participation(p.ParticipantCount, p.Position),
		Participation: &ParticipationDetail{
			ParticipantCount: p.ParticipantCount,
			Position:         p.Position,
		},
	}
}

// OrganizerEntry builds the scored entry of an organizer role.
func OrganizerEntry(rules ScoringRules, r OrganizerRole) CategoryEntry {
	return CategoryEntry{
		Category: CategoryOrganization,
		SourceID: r.EventID,
		Label:    r.EventName,
		Date:     copyTime(r.Date),
		Score:    rules.Organizer(r.Role, r.ParticipantCount),
		Organizer: &OrganizerDetail{
			Role:             NormalizeRole(r.Role),
			ParticipantCount: r.ParticipantCount,
		},
	}
}

// MembershipEntry builds the scored entry of a membership.
func MembershipEntry(rules ScoringRules, m Membership) CategoryEntry {
	id := m.OrgID
	if m.TeamName != "" {
		id += "/" + m.TeamName
	}
	label := m.OrgName
	if m.TeamName != "" {
		label += " / " + m.TeamName
	}
	return CategoryEntry{
		Category: CategoryMembership,
		SourceID: id,
		Label:    label,
		Date:     copyTime(m.JoinedAt),
		Score:    rules.Membership(),
		Membership: &MembershipDetail{
			OrgID:    m.OrgID,
			Role:     m.Role,
			TeamName: m.TeamName,
		},
	}
}

// ReviewEntry builds the scored entry of an approved review.
func ReviewEntry(rules ScoringRules, r Review) CategoryEntry {
	return CategoryEntry{
		Category: CategoryReview,
		SourceID: r.ReviewID,
		Label:    "review " + r.ReviewID,
		Date:     copyTime(r.Date),
		Score:    rules.Review(r.Rating),
		Review:   &ReviewDetail{Rating: r.Rating},
	}
}

// sortEntries orders entries by date (undated last), then source ID.
func sortEntries(entries []CategoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.Date == nil && b.Date == nil:
			return a.SourceID < b.SourceID
		case a.Date == nil:
			return false
		case b.Date == nil:
			return true
		case !a.Date.Equal(*b.Date):
			return a.Date.Before(*b.Date)
		}
		return a.SourceID < b.SourceID
	})
}

// dedupe drops repeated category/source pairs, keeping the first.
func dedupe(entries []CategoryEntry) []CategoryEntry {
	type key struct {
		c  Category
		id string
	}
	seen := make(map[key]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		k := key{e.Category, e.SourceID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	c := *t
	return &c
}
