package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/repscore/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// AggregatorOptions configures an Aggregator. Zero values pick defaults.
type AggregatorOptions struct {
	Rules            ScoringRules
	ExternalTTL      time.Duration
	ExternalTimeout  time.Duration
	MaxExternalCalls int64
	Logger           logrus.FieldLogger
	Metrics          *metrics.Metrics
	Clock            func() time.Time
}

// Aggregator rebuilds activity records from source collaborators.
type Aggregator struct {
	sources         Sources
	external        ExternalAdapter
	store           RecordStore
	rules           ScoringRules
	externalTTL     time.Duration
	externalTimeout time.Duration
	externalSem     *semaphore.Weighted
	log             logrus.FieldLogger
	metrics         *metrics.Metrics
	now             func() time.Time
}

// NewAggregator creates an Aggregator. external may be nil, in which case
// external contributions are never fetched.
func NewAggregator(sources Sources, external ExternalAdapter, store RecordStore, opts AggregatorOptions) *Aggregator {
	if opts.Rules == (ScoringRules{}) {
		opts.Rules = DefaultScoringRules()
	}
	if opts.ExternalTTL <= 0 {
		opts.ExternalTTL = 24 * time.Hour
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 20 * time.Second
	}
	if opts.MaxExternalCalls <= 0 {
		opts.MaxExternalCalls = 4
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Aggregator{
		sources:         sources,
		external:        external,
		store:           store,
		rules:           opts.Rules,
		externalTTL:     opts.ExternalTTL,
		externalTimeout: opts.ExternalTimeout,
		externalSem:     semaphore.NewWeighted(opts.MaxExternalCalls),
		log:             opts.Logger,
		metrics:         opts.Metrics,
		now:             opts.Clock,
	}
}

// Rules returns the scoring constants in use.
func (a *Aggregator) Rules() ScoringRules { return a.rules }

// Recompute pulls every source fact of the entity, scores it, derives the
// rollups and persists the record. Category fetch failures and external
// adapter failures are logged and tolerated; only load and save failures are
// returned.
func (a *Aggregator) Recompute(ctx context.Context, ref EntityRef, forceExternal bool) (*Record, error) {
	start := time.Now()
	rec, err := a.recompute(ctx, ref, forceExternal)
	a.metrics.ObserveRecompute(string(ref.Kind), err, time.Since(start))
	return rec, err
}

func (a *Aggregator) recompute(ctx context.Context, ref EntityRef, forceExternal bool) (*Record, error) {
	prev, err := a.store.GetRecord(ctx, ref)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load record %s: %w", ref, err)
	}
	if prev == nil {
		prev = &Record{Entity: ref}
	}

	entries := a.collect(ctx, ref)

	ext, extEntries := a.externalContribution(ctx, ref, prev, forceExternal)
	entries = append(entries, extEntries...)
	entries = dedupe(entries)
	sortEntries(entries)

	now := a.now()
	rec := &Record{
		Entity:      ref,
		Entries:     entries,
		External:    ext,
		Streak:      Streak{Longest: prev.Streak.Longest},
		LastUpdated: now,
		Version:     prev.Version,
	}
	rec.derive(now)
	rec.TotalScore = rec.EntriesScore() + rec.ExternalScore()

	if err := a.store.SaveRecord(ctx, rec); err != nil {
		return nil, &PersistenceError{Entity: ref, Err: err}
	}

	a.log.WithFields(logrus.Fields{
		"entity":      ref.String(),
		"total_score": rec.TotalScore,
		"entries":     len(rec.Entries),
		"streak":      rec.Streak.Current,
	}).Debug("activity recomputed")
	return rec, nil
}

// collect fetches the four source categories concurrently. A failing category
// contributes no entries.
func (a *Aggregator) collect(ctx context.Context, ref EntityRef) []CategoryEntry {
	var (
		participations []CategoryEntry
		organizer      []CategoryEntry
		memberships    []CategoryEntry
		reviews        []CategoryEntry
	)

	var g errgroup.Group
	if ref.Kind == KindUser && a.sources.Participations != nil {
		g.Go(func() error {
			list, err := a.sources.Participations.ListParticipationsByEntity(ctx, ref.ID)
			if a.sourceFailed(ref, CategoryParticipation, err) {
				return nil
			}
			for _, p := range list {
				participations = append(participations, ParticipationEntry(a.rules, p))
			}
			return nil
		})
	}
	if a.sources.Roster != nil {
		g.Go(func() error {
			list, err := a.sources.Roster.ListOrganizerRolesByEntity(ctx, ref)
			if a.sourceFailed(ref, CategoryOrganization, err) {
				return nil
			}
			for _, r := range list {
				organizer = append(organizer, OrganizerEntry(a.rules, r))
			}
			return nil
		})
		g.Go(func() error {
			list, err := a.sources.Roster.ListMembershipsByEntity(ctx, ref)
			if a.sourceFailed(ref, CategoryMembership, err) {
				return nil
			}
			for _, m := range list {
				memberships = append(memberships, MembershipEntry(a.rules, m))
			}
			return nil
		})
	}
	if a.sources.Reviews != nil {
		g.Go(func() error {
			list, err := a.sources.Reviews.ListApprovedReviewsByEntity(ctx, ref)
			if a.sourceFailed(ref, CategoryReview, err) {
				return nil
			}
			for _, r := range list {
				// Stores may return unfiltered rows.
				if r.Status != "" && r.Status != ReviewApproved {
					continue
				}
				reviews = append(reviews, ReviewEntry(a.rules, r))
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]CategoryEntry, 0, len(participations)+len(organizer)+len(memberships)+len(reviews))
	out = append(out, participations...)
	out = append(out, organizer...)
	out = append(out, memberships...)
	return append(out, reviews...)
}

func (a *Aggregator) sourceFailed(ref EntityRef, c Category, err error) bool {
	if err == nil {
		return false
	}
	perr := &PartialSourceError{Category: c, Err: err}
	a.metrics.SourceFailure(string(c))
	a.log.WithFields(logrus.Fields{
		"entity":   ref.String(),
		"category": string(c),
	}).WithError(perr).Warn("source fetch failed, treating category as empty")
	return true
}

// externalContribution returns the external sub-record and its marker entries.
// A cached sub-record younger than the external TTL is reused unless force is
// set; a failed fetch keeps the previous sub-record.
func (a *Aggregator) externalContribution(ctx context.Context, ref EntityRef, prev *Record, force bool) (*ExternalContribution, []CategoryEntry) {
	if ref.Kind != KindUser || a.external == nil || a.sources.Directory == nil {
		return nil, nil
	}
	kept := prevExternalEntries(prev)

	username, err := a.sources.Directory.ExternalUsername(ctx, ref.ID)
	if err != nil {
		a.log.WithField("entity", ref.String()).WithError(err).Warn("resolve external username failed")
		return prev.External, kept
	}
	if username == "" {
		return nil, nil
	}

	now := a.now()
	if !force && prev.External != nil && prev.External.Username == username &&
		now.Sub(prev.External.LastFetched) < a.externalTTL {
		a.metrics.ExternalFetch("cached")
		return prev.External, kept
	}

	ext, err := a.fetchExternal(ctx, username)
	if err != nil {
		a.metrics.ExternalFetch("error")
		log := a.log.WithField("entity", ref.String()).
			WithError(&ExternalAdapterError{Username: username, Err: err})
		if prev.External == nil || prev.External.Username != username {
			// The cached sub-record belongs to a previously linked account.
			log.Warn("external contribution fetch failed, no cached value for this username")
			return nil, nil
		}
		log.Warn("external contribution fetch failed, keeping cached value")
		return prev.External, kept
	}
	a.metrics.ExternalFetch("ok")

	ext.Username = username
	ext.LastFetched = now
	recent := make([]CategoryEntry, 0, len(ext.Recent))
	for _, e := range ext.Recent {
		e.Category = CategoryExternal
		e.Score = 0
		recent = append(recent, e)
	}
	ext.Recent = nil
	return ext, recent
}

func (a *Aggregator) fetchExternal(ctx context.Context, username string) (*ExternalContribution, error) {
	cctx, cancel := context.WithTimeout(ctx, a.externalTimeout)
	defer cancel()

	if err := a.externalSem.Acquire(cctx, 1); err != nil {
		return nil, fmt.Errorf("wait for external slot: %w", err)
	}
	defer a.externalSem.Release(1)

	ext, err := a.external.Contribution(cctx, username)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, errors.New("empty external contribution")
	}
	return ext, nil
}

func prevExternalEntries(prev *Record) []CategoryEntry {
	var out []CategoryEntry
	for _, e := range prev.Entries {
		if e.Category == CategoryExternal {
			out = append(out, e)
		}
	}
	return out
}
