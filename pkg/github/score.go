package github

import (
	"context"
	"errors"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Weights converts fetched contribution data into a native score.
type Weights struct {
	CalendarMultiplier float64 `yaml:"calendar_multiplier"`
	CalendarCap        float64 `yaml:"calendar_cap"`
	StarMultiplier     float64 `yaml:"star_multiplier"`
	StarCap            float64 `yaml:"star_cap"`
	RepoCap            float64 `yaml:"repo_cap"`
	RecentMultiplier   float64 `yaml:"recent_multiplier"`
}

// DefaultWeights returns the stock conversion weights.
func DefaultWeights() Weights {
	return Weights{
		CalendarMultiplier: 0.1,
		CalendarCap:        100,
		StarMultiplier:     0.5,
		StarCap:            50,
		RepoCap:            20,
		RecentMultiplier:   0.5,
	}
}

// Score combines the calendar total, stars and count of non-fork repos, and
// recent public events. Each capped term is clamped before summing.
func (w Weights) Score(calendarTotal int, repos []Repo, recent int) int {
	stars, owned := 0, 0
	for _, r := range repos {
		if r.Fork {
			continue
		}
		stars += r.Stars
		owned++
	}

	v := capped(decimal.NewFromInt(int64(calendarTotal)).Mul(decimal.NewFromFloat(w.CalendarMultiplier)), w.CalendarCap).
		Add(capped(decimal.NewFromInt(int64(stars)).Mul(decimal.NewFromFloat(w.StarMultiplier)), w.StarCap)).
		Add(capped(decimal.NewFromInt(int64(owned)), w.RepoCap)).
		Add(decimal.NewFromInt(int64(recent)).Mul(decimal.NewFromFloat(w.RecentMultiplier)))
	return int(v.Round(0).IntPart())
}

func capped(v decimal.Decimal, limit float64) decimal.Decimal {
	if limit <= 0 {
		return v
	}
	return decimal.Min(v, decimal.NewFromFloat(limit))
}

// Adapter turns a Client into an activity.ExternalAdapter.
type Adapter struct {
	client  *Client
	weights Weights
	log     logrus.FieldLogger
}

// NewAdapter creates an Adapter. A zero Weights value picks DefaultWeights.
func NewAdapter(client *Client, weights Weights, log logrus.FieldLogger) *Adapter {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{client: client, weights: weights, log: log}
}

// Contribution fetches the four feeds concurrently and scores them. The
// profile is mandatory; repositories, calendar and recent events degrade to
// empty when their fetch fails.
func (a *Adapter) Contribution(ctx context.Context, username string) (*activity.ExternalContribution, error) {
	var (
		profile  *Profile
		repos    []Repo
		calendar *Calendar
		recent   []Contribution
		repoErr  error
		calErr   error
		feedErr  error
	)
	// Only a profile failure fails the group, which cancels the others.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = a.client.FetchProfile(gctx, username)
		return err
	})
	g.Go(func() error {
		repos, repoErr = a.client.FetchRepositories(gctx, username)
		return nil
	})
	g.Go(func() error {
		calendar, calErr = a.client.FetchContributionCalendar(gctx, username)
		return nil
	})
	g.Go(func() error {
		recent, feedErr = a.client.FetchRecentContributions(gctx, username, 0)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := a.log.WithField("username", username)
	if repoErr != nil {
		log.WithError(repoErr).Warn("github repositories unavailable")
	}
	if calErr != nil && !errors.Is(calErr, ErrNoToken) {
		log.WithError(calErr).Warn("github calendar unavailable")
	}
	if feedErr != nil {
		log.WithError(feedErr).Warn("github activity feed unavailable")
	}
	if calendar == nil {
		calendar = &Calendar{}
	}

	ext := &activity.ExternalContribution{
		Username: username,
		Score:    a.weights.Score(calendar.Total, repos, len(recent)),
		Profile: activity.ExternalProfile{
			Login:       profile.Login,
			Name:        profile.Name,
			PublicRepos: profile.PublicRepos,
			Followers:   profile.Followers,
			CreatedAt:   profile.CreatedAt,
		},
		CalendarTotal: calendar.Total,
	}
	for _, r := range repos {
		ext.Repositories = append(ext.Repositories, activity.Repository{
			Name:     r.FullName,
			URL:      r.HTMLURL,
			Language: r.Language,
			Stars:    r.Stars,
			Forks:    r.Forks,
			Fork:     r.Fork,
			PushedAt: r.PushedAt,
		})
	}
	for _, d := range calendar.Days {
		ext.Calendar = append(ext.Calendar, activity.CalendarDay{Date: d.Date, Count: d.Count})
	}
	for _, c := range recent {
		date := c.Date
		ext.Recent = append(ext.Recent, activity.CategoryEntry{
			Category: activity.CategoryExternal,
			SourceID: c.ID,
			Label:    c.Title,
			Date:     &date,
			External: &activity.ExternalDetail{Kind: c.Kind, URL: c.URL},
		})
	}
	return ext, nil
}
