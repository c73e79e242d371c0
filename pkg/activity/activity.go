package activity

import (
	"time"
)

// EntityKind identifies which kind of entity owns a record.
type EntityKind string

const (
	KindUser         EntityKind = "user"
	KindOrganization EntityKind = "organization"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	return k == KindUser || k == KindOrganization
}

// EntityRef identifies a user or organization.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

func (r EntityRef) String() string { return string(r.Kind) + ":" + r.ID }

// Category tags the payload carried by a CategoryEntry.
type Category string

const (
	CategoryParticipation Category = "participation"
	CategoryOrganization  Category = "organization"
	CategoryMembership    Category = "membership"
	CategoryReview        Category = "review"
	CategoryExternal      Category = "external"
)

// CategoryEntry is one scored fact attributed to an entity. Exactly one payload
// pointer is set, matching Category.
type CategoryEntry struct {
	Category Category   `json:"category"`
	SourceID string     `json:"source_id"`
	Label    string     `json:"label"`
	Date     *time.Time `json:"date,omitempty"`
	Score    int        `json:"score"`

	Participation *ParticipationDetail `json:"participation,omitempty"`
	Organizer     *OrganizerDetail     `json:"organizer,omitempty"`
	Membership    *MembershipDetail    `json:"membership,omitempty"`
	Review        *ReviewDetail        `json:"review,omitempty"`
	External      *ExternalDetail      `json:"external,omitempty"`
}

// ParticipationDetail describes an event the entity took part in.
type ParticipationDetail struct {
	ParticipantCount int `json:"participant_count"`
	Position         int `json:"position,omitempty"`
}

// OrganizerDetail describes an event the entity helped organize.
type OrganizerDetail struct {
	Role             string `json:"role"`
	ParticipantCount int    `json:"participant_count"`
}

// MembershipDetail describes an organization or team membership.
type MembershipDetail struct {
	OrgID    string `json:"org_id"`
	Role     string `json:"role,omitempty"`
	TeamName string `json:"team_name,omitempty"`
}

// ReviewDetail describes an approved review.
type ReviewDetail struct {
	Rating int `json:"rating"`
}

// ExternalDetail describes a public event from the contribution feed.
type ExternalDetail struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
}

// Bucket is a score total over one calendar period starting at Start.
type Bucket struct {
	Start time.Time `json:"start"`
	Score int       `json:"score"`
}

// CurrentScores holds the totals of the periods containing "now".
type CurrentScores struct {
	Today     int `json:"today"`
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`
	LastMonth int `json:"last_month"`
}

// Streak tracks consecutive days with at least one activity.
type Streak struct {
	Current      int        `json:"current"`
	Longest      int        `json:"longest"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Repository is a public repository reported by the contribution feed.
type Repository struct {
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Language string    `json:"language,omitempty"`
	Stars    int       `json:"stars"`
	Forks    int       `json:"forks"`
	Fork     bool      `json:"fork"`
	PushedAt time.Time `json:"pushed_at"`
}

// CalendarDay is one day of the contribution calendar.
type CalendarDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ExternalProfile is the public profile behind a linked username.
type ExternalProfile struct {
	Login       string    `json:"login"`
	Name        string    `json:"name,omitempty"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExternalContribution is the cached external sub-record of a user.
type ExternalContribution struct {
	Username      string          `json:"username"`
	LastFetched   time.Time       `json:"last_fetched"`
	Score         int             `json:"score"`
	Profile       ExternalProfile `json:"profile"`
	Repositories  []Repository    `json:"repositories,omitempty"`
	Calendar      []CalendarDay   `json:"calendar,omitempty"`
	CalendarTotal int             `json:"calendar_total"`
	Recent        []CategoryEntry `json:"-"`
}

// Record is the persisted activity snapshot of one entity.
type Record struct {
	Entity      EntityRef             `json:"entity"`
	TotalScore  int                   `json:"total_score"`
	Entries     []CategoryEntry       `json:"entries"`
	Daily       []Bucket              `json:"daily"`
	Weekly      []Bucket              `json:"weekly"`
	Monthly     []Bucket              `json:"monthly"`
	Current     CurrentScores         `json:"current"`
	Streak      Streak                `json:"streak"`
	Grid        Heatmap               `json:"grid"`
	External    *ExternalContribution `json:"external,omitempty"`
	LastUpdated time.Time             `json:"last_updated"`
	Version     int64                 `json:"version"`
}

// EntriesScore sums the scores of all category entries.
func (r *Record) EntriesScore() int {
	total := 0
	for _, e := range r.Entries {
		total += e.Score
	}
	return total
}

// ExternalScore returns the external sub-record score, or 0 when absent.
func (r *Record) ExternalScore() int {
	if r.External == nil {
		return 0
	}
	return r.External.Score
}

// HasEntry reports whether an entry for the category/source pair exists.
func (r *Record) HasEntry(c Category, sourceID string) bool {
	for _, e := range r.Entries {
		if e.Category == c && e.SourceID == sourceID {
			return true
		}
	}
	return false
}

// derive rebuilds buckets, streak and grid from the entry list. TotalScore is
// owned by the caller.
func (r *Record) derive(now time.Time) {
	dates := make([]time.Time, 0, len(r.Entries))
	dated := make([]Dated, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Date == nil {
			continue
		}
		dates = append(dates, *e.Date)
		dated = append(dated, Dated{Date: *e.Date, Score: e.Score})
	}

	b := Bucketize(dated, now)
	r.Daily, r.Weekly, r.Monthly, r.Current = b.Daily, b.Weekly, b.Monthly, b.Current
	r.Streak = ComputeStreak(dates, r.Streak.Longest, now)
	r.Grid = BuildHeatmap(dates, now)
}
