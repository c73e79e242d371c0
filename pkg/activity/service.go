package activity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Period filters leaderboards by recency of the last activity.
type Period string

const (
	PeriodAll   Period = ""
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod accepts the period names and their short forms.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return PeriodAll, nil
	case "day", "d", "1d", "today":
		return PeriodDay, nil
	case "week", "w", "7d":
		return PeriodWeek, nil
	case "month", "m", "30d":
		return PeriodMonth, nil
	case "year", "y", "365d":
		return PeriodYear, nil
	}
	return PeriodAll, fmt.Errorf("unknown period %q", s)
}

// Since returns the earliest last-activity date included by the period, or
// the zero time for PeriodAll.
func (p Period) Since(now time.Time) time.Time {
	day := DayStart(now, now.Location())
	switch p {
	case PeriodDay:
		return day
	case PeriodWeek:
		return day.AddDate(0, 0, -6)
	case PeriodMonth:
		return day.AddDate(0, -1, 0)
	case PeriodYear:
		return day.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

// Standing is one leaderboard row.
type Standing struct {
	Entity      EntityRef `json:"entity"`
	TotalScore  int       `json:"total_score"`
	Streak      Streak    `json:"streak"`
	LastUpdated time.Time `json:"last_updated"`
}

// Service is the API exposed to collaborators: write-path hooks plus the read
// and leaderboard queries.
type Service struct {
	manager *Manager
	store   RecordStore
	rules   ScoringRules
	now     func() time.Time
}

// NewService wires a Service over a Manager.
func NewService(manager *Manager) *Service {
	return &Service{
		manager: manager,
		store:   manager.store,
		rules:   manager.agg.Rules(),
		now:     manager.now,
	}
}

// Manager exposes the underlying cache manager.
func (s *Service) Manager() *Manager { return s.manager }

// OnEventCreated credits the organizing organization with the new event.
func (s *Service) OnEventCreated(ctx context.Context, orgID string, event OrganizerRole) (*Record, error) {
	ref := EntityRef{Kind: KindOrganization, ID: orgID}
	if event.Role == "" {
		event.Role = RoleHead
	}
	return s.manager.ApplyIncrementalActivity(ctx, ref, OrganizerEntry(s.rules, event))
}

// OnReviewApproved credits the reviewed entity. Reviews in any other status
// are ignored and yield a nil record.
func (s *Service) OnReviewApproved(ctx context.Context, ref EntityRef, review Review) (*Record, error) {
	if !strings.EqualFold(review.Status, ReviewApproved) {
		return nil, nil
	}
	return s.manager.ApplyIncrementalActivity(ctx, ref, ReviewEntry(s.rules, review))
}

// OnParticipationRegistered recomputes the user from source.
func (s *Service) OnParticipationRegistered(ctx context.Context, userID string) (*Record, error) {
	return s.manager.Recompute(ctx, EntityRef{Kind: KindUser, ID: userID}, false)
}

// OnTeamMembershipChanged recomputes the user from source.
func (s *Service) OnTeamMembershipChanged(ctx context.Context, userID string) (*Record, error) {
	return s.manager.Recompute(ctx, EntityRef{Kind: KindUser, ID: userID}, false)
}

// GetActivity returns the entity's record, refreshing it when stale.
func (s *Service) GetActivity(ctx context.Context, ref EntityRef, forceUpdate bool) (*Record, error) {
	return s.manager.GetOrRefresh(ctx, ref, forceUpdate)
}

// GetTopEntities lists entities of a kind by descending total score,
// optionally limited to those active within the period.
func (s *Service) GetTopEntities(ctx context.Context, kind EntityKind, limit int, period Period) ([]Standing, error) {
	if limit <= 0 {
		limit = 10
	}
	recs, err := s.store.TopRecords(ctx, kind, period.Since(s.now()), limit)
	if err != nil {
		return nil, fmt.Errorf("top %s records: %w", kind, err)
	}
	out := make([]Standing, 0, len(recs))
	for _, r := range recs {
		out = append(out, Standing{
			Entity:      r.Entity,
			TotalScore:  r.TotalScore,
			Streak:      r.Streak,
			LastUpdated: r.LastUpdated,
		})
	}
	return out, nil
}
