package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mmcdole/gofeed"
)

const (
	defaultAPIURL = "https://api.github.com"
	defaultWebURL = "https://github.com"

	// maxRateLimitWait caps how long a rate-limit hint may stall one call.
	maxRateLimitWait = time.Minute
)

// ErrUserNotFound is returned when the username does not exist.
var ErrUserNotFound = errors.New("github user not found")

// ErrNoToken is returned by calls that need an authenticated client.
var ErrNoToken = errors.New("github token required")

// StatusError is a non-2xx API response. RetryAfter holds the server's
// rate-limit hint, zero when none was sent.
type StatusError struct {
	Status     int
	URL        string
	RetryAfter time.Duration
	RateLimit  bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github %s: status %d", e.URL, e.Status)
}

// Retryable reports whether the request may succeed when repeated. A 403 is
// retried only when GitHub flags it as a (secondary) rate limit.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status >= 500:
		return true
	case e.Status == http.StatusForbidden:
		return e.RateLimit
	}
	return false
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	Token      string
	APIURL     string
	WebURL     string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	RecentDays int
}

// Client fetches contribution data for GitHub users. It is safe for
// concurrent use.
type Client struct {
	client     *http.Client
	token      string
	apiURL     string
	webURL     string
	retries    int
	retryDelay time.Duration
	recentDays int
	now        func() time.Time
}

// New creates a new GitHub client.
func New(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.WebURL == "" {
		opts.WebURL = defaultWebURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.RecentDays <= 0 {
		opts.RecentDays = 30
	}
	return &Client{
		client:     &http.Client{Timeout: opts.Timeout},
		token:      opts.Token,
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		webURL:     strings.TrimRight(opts.WebURL, "/"),
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		recentDays: opts.RecentDays,
		now:        time.Now,
	}
}

// Profile is the subset of the users API the scorer needs.
type Profile struct {
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repo is the subset of the repos API the scorer needs.
type Repo struct {
	Name     string    `json:"name"`
	FullName string    `json:"full_name"`
	HTMLURL  string    `json:"html_url"`
	Language string    `json:"language"`
	Stars    int       `json:"stargazers_count"`
	Forks    int       `json:"forks_count"`
	Fork     bool      `json:"fork"`
	PushedAt time.Time `json:"pushed_at"`
}

// Calendar is the yearly contribution calendar.
type Calendar struct {
	Total int
	Days  []CalendarDay
}

// CalendarDay is one day of the contribution calendar.
type CalendarDay struct {
	Date  string `json:"date"`
	Count int    `json:"contributionCount"`
}

// Contribution is one public event from the user's activity feed.
type Contribution struct {
	ID    string
	Title string
	Kind  string
	URL   string
	Date  time.Time
}

// FetchProfile fetches the public profile of username.
func (c *Client) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	p, err := retry(ctx, c, func() (*Profile, error) {
		var p Profile
		return &p, c.getJSON(ctx, c.apiURL+"/users/"+url.PathEscape(username), &p)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch github profile %s: %w", username, err)
	}
	return p, nil
}

// FetchRepositories fetches the user's most recently updated public repos.
func (c *Client) FetchRepositories(ctx context.Context, username string) ([]Repo, error) {
	params := url.Values{}
	params.Set("per_page", "100")
	params.Set("sort", "updated")
	params.Set("type", "owner")

	reqURL := c.apiURL + "/users/" + url.PathEscape(username) + "/repos?" + params.Encode()
	repos, err := retry(ctx, c, func() ([]Repo, error) {
		var repos []Repo
		return repos, c.getJSON(ctx, reqURL, &repos)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch github repos %s: %w", username, err)
	}
	return repos, nil
}

const calendarQuery = `query($login: String!) {
  user(login: $login) {
    contributionsCollection {
      contributionCalendar {
        totalContributions
        weeks { contributionDays { date contributionCount } }
      }
    }
  }
}`

type calendarResponse struct {
	Data struct {
		User *struct {
			ContributionsCollection struct {
				ContributionCalendar struct {
					TotalContributions int `json:"totalContributions"`
					Weeks              []struct {
						ContributionDays []CalendarDay `json:"contributionDays"`
					} `json:"weeks"`
				} `json:"contributionCalendar"`
			} `json:"contributionsCollection"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchContributionCalendar fetches the last year of daily contribution
// counts. The GraphQL API requires a token.
func (c *Client) FetchContributionCalendar(ctx context.Context, username string) (*Calendar, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}
	body, err := json.Marshal(map[string]any{
		"query":     calendarQuery,
		"variables": map[string]string{"login": username},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal calendar query: %w", err)
	}

	resp, err := retry(ctx, c, func() (*calendarResponse, error) {
		var resp calendarResponse
		return &resp, c.do(ctx, http.MethodPost, c.apiURL+"/graphql", body, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch github calendar %s: %w", username, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("github graphql: %s", resp.Errors[0].Message)
	}
	if resp.Data.User == nil {
		return nil, ErrUserNotFound
	}

	cal := resp.Data.User.ContributionsCollection.ContributionCalendar
	out := &Calendar{Total: cal.TotalContributions}
	for _, w := range cal.Weeks {
		out.Days = append(out.Days, w.ContributionDays...)
	}
	return out, nil
}

// FetchRecentContributions reads the user's public Atom feed and keeps the
// entries published within the last days.
func (c *Client) FetchRecentContributions(ctx context.Context, username string, days int) ([]Contribution, error) {
	if days <= 0 {
		days = c.recentDays
	}
	feedURL := c.webURL + "/" + url.PathEscape(username) + ".atom"

	feed, err := retry(ctx, c, func() (*gofeed.Feed, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create feed request: %w", err)
		}
		req.Header.Set("User-Agent", "repscore/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusErr(resp, feedURL)
		}
		// gofeed.Parser sets its translators lazily on first use, so each
		// call gets its own.
		feed, err := gofeed.NewParser().Parse(resp.Body)
		if err != nil {
			return nil, &decodeError{what: "feed", err: err}
		}
		return feed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch github feed %s: %w", username, err)
	}

	cutoff := c.now().AddDate(0, 0, -days)
	var out []Contribution
	for _, item := range feed.Items {
		if item.PublishedParsed == nil {
			continue
		}
		published := item.PublishedParsed.UTC()
		if published.Before(cutoff) {
			continue
		}
		out = append(out, Contribution{
			ID:    item.GUID,
			Title: item.Title,
			Kind:  eventKind(item.GUID),
			URL:   item.Link,
			Date:  published,
		})
	}
	return out, nil
}

// eventKind extracts the event type from a feed GUID such as
// "tag:github.com,2008:PushEvent/123".
func eventKind(guid string) string {
	if i := strings.LastIndex(guid, ":"); i >= 0 {
		guid = guid[i+1:]
	}
	if i := strings.Index(guid, "/"); i >= 0 {
		guid = guid[:i]
	}
	return guid
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	return c.do(ctx, http.MethodGet, reqURL, nil, out)
}

func (c *Client) do(ctx context.Context, method, reqURL string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, rd)
	if err != nil {
		return fmt.Errorf("create github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "repscore/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp, reqURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{what: "github response", err: err}
	}
	return nil
}

func statusErr(resp *http.Response, reqURL string) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	wait, limited := rateLimitHint(resp.Header, time.Now())
	return &StatusError{Status: resp.StatusCode, URL: reqURL, RetryAfter: wait, RateLimit: limited}
}

// rateLimitHint reads Retry-After (seconds) or, when the primary quota is
// spent, X-RateLimit-Reset (unix seconds). The wait is capped at
// maxRateLimitWait.
func rateLimitHint(h http.Header, now time.Time) (time.Duration, bool) {
	var wait time.Duration
	limited := false
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			wait, limited = time.Duration(secs)*time.Second, true
		}
	} else if h.Get("X-RateLimit-Remaining") == "0" {
		limited = true
		if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			wait = max(time.Unix(reset, 0).Sub(now), 0)
		}
	}
	return min(wait, maxRateLimitWait), limited
}

// decodeError marks a response body that could not be parsed. Repeating the
// request will not help.
type decodeError struct {
	what string
	err  error
}

func (e *decodeError) Error() string { return "decode " + e.what + ": " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// retry runs fn under exponential backoff starting at the client's retry
// delay. Network errors, 429, 5xx and rate-limited 403 are retried; a
// server rate-limit hint replaces the backoff interval for that attempt.
func retry[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxInterval = 30 * c.retryDelay

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return v, backoff.Permanent(err)
		}
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			return v, fmt.Errorf("%w: %w", err, backoff.RetryAfter(int(se.RetryAfter/time.Second)))
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retries+1)),
	)
}

func retryable(err error) bool {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var de *decodeError
	return !errors.As(err, &de)
}
