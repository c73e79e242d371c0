package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/repscore/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ManagerOptions configures a Manager. Zero values pick defaults.
type ManagerOptions struct {
	TTL        time.Duration
	MaxRetries int
	Locker     Locker
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
	Clock      func() time.Time
}

// Manager decides between serving a cached record, recomputing it, or
// appending a single activity to it. Every write of one entity goes through
// the same Locker key so appends and recomputes never interleave.
type Manager struct {
	agg        *Aggregator
	store      RecordStore
	locker     Locker
	ttl        time.Duration
	maxRetries int
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewManager creates a Manager on top of an Aggregator and its store.
func NewManager(agg *Aggregator, store RecordStore, opts ManagerOptions) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedMutex()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		agg:        agg,
		store:      store,
		locker:     opts.Locker,
		ttl:        opts.TTL,
		maxRetries: opts.MaxRetries,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Clock,
	}
}

// Fresh reports whether rec is younger than the activity TTL.
func (m *Manager) Fresh(rec *Record) bool {
	return rec != nil && m.now().Sub(rec.LastUpdated) < m.ttl
}

// GetOrRefresh returns the stored record while it is fresh, otherwise it
// recomputes synchronously. A cache hit performs no writes.
func (m *Manager) GetOrRefresh(ctx context.Context, ref EntityRef, force bool) (*Record, error) {
	if !force {
		rec, err := m.store.GetRecord(ctx, ref)
		switch {
		case err == nil && m.Fresh(rec):
			m.metrics.CacheLookup("hit")
			return rec, nil
		case err == nil:
			m.metrics.CacheLookup("stale")
		case errors.Is(err, ErrNotFound):
			m.metrics.CacheLookup("absent")
		default:
			return nil, fmt.Errorf("load record %s: %w", ref, err)
		}
	} else {
		m.metrics.CacheLookup("forced")
	}

	unlock, err := m.locker.Lock(ctx, ref.String())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", ref, err)
	}
	defer unlock()

	if !force {
		// Another caller may have refreshed while we waited for the lock.
		if rec, err := m.store.GetRecord(ctx, ref); err == nil && m.Fresh(rec) {
			return rec, nil
		}
	}
	return m.recomputeLocked(ctx, ref, false)
}

// Recompute forces a full recomputation of the entity.
func (m *Manager) Recompute(ctx context.Context, ref EntityRef, forceExternal bool) (*Record, error) {
	unlock, err := m.locker.Lock(ctx, ref.String())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", ref, err)
	}
	defer unlock()

	return m.recomputeLocked(ctx, ref, forceExternal)
}

func (m *Manager) recomputeLocked(ctx context.Context, ref EntityRef, forceExternal bool) (*Record, error) {
	for attempt := 0; ; attempt++ {
		rec, err := m.agg.Recompute(ctx, ref, forceExternal)
		if errors.Is(err, ErrVersionConflict) && attempt < m.maxRetries {
			m.metrics.VersionConflict()
			m.log.WithFields(logrus.Fields{"entity": ref.String(), "attempt": attempt + 1}).
				Info("recompute raced another writer, retrying")
			continue
		}
		return rec, err
	}
}

// ApplyIncrementalActivity appends one entry to the entity's record without
// pulling the sources again. The total is adjusted by the entry's score and
// the rollups are re-derived. An entry whose category/source pair is already
// present is ignored. A missing record is created by a full recompute first.
func (m *Manager) ApplyIncrementalActivity(ctx context.Context, ref EntityRef, entry CategoryEntry) (*Record, error) {
	unlock, err := m.locker.Lock(ctx, ref.String())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", ref, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		rec, err := m.applyOnce(ctx, ref, entry)
		if errors.Is(err, ErrVersionConflict) && attempt < m.maxRetries {
			m.metrics.VersionConflict()
			m.log.WithFields(logrus.Fields{"entity": ref.String(), "attempt": attempt + 1}).
				Info("incremental update raced a recompute, retrying on fresh record")
			continue
		}
		m.metrics.IncrementalUpdate(string(entry.Category), err)
		return rec, err
	}
}

func (m *Manager) applyOnce(ctx context.Context, ref EntityRef, entry CategoryEntry) (*Record, error) {
	rec, err := m.store.GetRecord(ctx, ref)
	switch {
	case errors.Is(err, ErrNotFound):
		rec, err = m.agg.Recompute(ctx, ref, false)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load record %s: %w", ref, err)
	}

	if rec.HasEntry(entry.Category, entry.SourceID) {
		return rec, nil
	}

	rec.Entries = append(rec.Entries, entry)
	sortEntries(rec.Entries)
	rec.TotalScore += entry.Score
	rec.derive(m.now())

	if err := m.store.SaveRecord(ctx, rec); err != nil {
		return nil, &PersistenceError{Entity: ref, Err: err}
	}
	return rec, nil
}
