package activity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/repscore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetOrRefresh_CacheHitSkipsSources(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	ctx := context.Background()

	first, err := f.manager.GetOrRefresh(ctx, alice, false)
	require.NoError(t, err)
	callsAfterFirst := f.sources.calls()
	assert.Equal(t, int64(4), callsAfterFirst)

	second, err := f.manager.GetOrRefresh(ctx, alice, false)
	require.NoError(t, err)
	third, err := f.manager.GetOrRefresh(ctx, alice, false)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, f.sources.calls(), "cache hits must not fetch")
	assert.Equal(t, int64(1), f.external.calls.Load())
	assert.Equal(t, int64(1), f.store.saves.Load(), "cache hits must not write")
	assert.Equal(t, second, third)
	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, first.Version, second.Version)
}

func TestManager_GetOrRefresh_StaleRecomputes(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	ctx := context.Background()

	_, err := f.manager.GetOrRefresh(ctx, alice, false)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	f.sources.addReview(alice, Review{ReviewID: "r2", Rating: 5, Status: ReviewApproved, Date: day(0)})

	rec, err := f.manager.GetOrRefresh(ctx, alice, false)
	require.NoError(t, err)

	assert.Equal(t, int64(8), f.sources.calls())
	assert.Equal(t, 103+15, rec.TotalScore)
	assert.True(t, f.clock.Now().Equal(rec.LastUpdated))
	assert.Equal(t, int64(2), rec.Version)
}

func TestManager_GetOrRefresh_Force(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	ctx := context.Background()

	_, err := f.manager.GetOrRefresh(ctx, alice, false)
	require.NoError(t, err)
	_, err = f.manager.GetOrRefresh(ctx, alice, true)
	require.NoError(t, err)

	assert.Equal(t, int64(8), f.sources.calls())
	assert.Equal(t, int64(1), f.external.calls.Load(), "force refreshes the record, not the external sub-cache")
}

func TestManager_ApplyIncrementalActivity(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	ctx := context.Background()

	base, err := f.manager.Recompute(ctx, alice, false)
	require.NoError(t, err)
	calls := f.sources.calls()

	f.clock.Advance(10 * time.Minute)
	entry := ReviewEntry(f.agg.Rules(), Review{ReviewID: "r2", Rating: 5, Status: ReviewApproved, Date: day(0)})
	rec, err := f.manager.ApplyIncrementalActivity(ctx, alice, entry)
	require.NoError(t, err)

	assert.Equal(t, calls, f.sources.calls(), "incremental updates skip the sources")
	assert.Equal(t, base.TotalScore+15, rec.TotalScore)
	assert.Equal(t, rec.EntriesScore()+rec.ExternalScore(), rec.TotalScore)
	assert.True(t, rec.HasEntry(CategoryReview, "r2"))
	assert.Equal(t, 38+15, rec.Current.Today)
	assert.True(t, base.LastUpdated.Equal(rec.LastUpdated), "incremental updates keep the freshness timestamp")
	assert.Equal(t, base.Version+1, rec.Version)

	again, err := f.manager.ApplyIncrementalActivity(ctx, alice, entry)
	require.NoError(t, err)
	assert.Equal(t, rec.TotalScore, again.TotalScore, "duplicate entries are ignored")
	assert.Equal(t, rec.Version, again.Version)
}

func TestManager_ApplyIncrementalActivity_AbsentRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()

	entry := ReviewEntry(f.agg.Rules(), Review{ReviewID: "r2", Rating: 1, Status: ReviewApproved, Date: day(0)})
	rec, err := f.manager.ApplyIncrementalActivity(context.Background(), alice, entry)
	require.NoError(t, err)

	assert.Equal(t, int64(4), f.sources.calls())
	assert.Equal(t, 103+7, rec.TotalScore)
	assert.Equal(t, int64(2), rec.Version)
}

func TestManager_ApplyIncrementalActivity_RetriesConflict(t *testing.T) {
	t.Parallel()

	cs := &conflictingStore{memStore: newMemStore()}
	f := newFixture(cs)
	f.seedAlice()
	ctx := context.Background()

	_, err := f.manager.Recompute(ctx, alice, false)
	require.NoError(t, err)

	cs.remaining.Store(2)
	entry := ReviewEntry(f.agg.Rules(), Review{ReviewID: "r2", Rating: 4, Status: ReviewApproved, Date: day(0)})
	rec, err := f.manager.ApplyIncrementalActivity(ctx, alice, entry)
	require.NoError(t, err)
	assert.Equal(t, 103+13, rec.TotalScore)

	stored, err := f.store.GetRecord(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 103+13, stored.TotalScore)
}

func TestManager_ApplyIncrementalActivity_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	cs := &conflictingStore{memStore: newMemStore()}
	f := newFixture(cs)
	f.seedAlice()
	ctx := context.Background()

	_, err := f.manager.Recompute(ctx, alice, false)
	require.NoError(t, err)

	cs.remaining.Store(100)
	entry := ReviewEntry(f.agg.Rules(), Review{ReviewID: "r2", Rating: 4, Status: ReviewApproved})
	_, err = f.manager.ApplyIncrementalActivity(ctx, alice, entry)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestManager_ConcurrentIncrementalAndRecompute(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	ctx := context.Background()

	_, err := f.manager.Recompute(ctx, alice, false)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range n {
		review := Review{ReviewID: fmt.Sprintf("new-%d", i), Rating: 4, Status: ReviewApproved, Date: day(0)}
		// The review store records the approval before the hook fires.
		f.sources.addReview(alice, review)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.manager.ApplyIncrementalActivity(ctx, alice, ReviewEntry(f.agg.Rules(), review))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.manager.Recompute(ctx, alice, false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := f.store.GetRecord(ctx, alice)
	require.NoError(t, err)

	reviews := 0
	for _, e := range rec.Entries {
		if e.Category == CategoryReview {
			reviews++
		}
	}
	assert.Equal(t, n+1, reviews, "every review counted exactly once")
	assert.Equal(t, 103+n*13, rec.TotalScore)
	assert.Equal(t, rec.EntriesScore()+rec.ExternalScore(), rec.TotalScore)
}

func TestManager_Metrics(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	store := newMemStore()
	src := newFakeSources()
	clk := newClock()
	agg := NewAggregator(src.sources(), nil, store, AggregatorOptions{Logger: discard(), Metrics: m, Clock: clk.Now})
	mgr := NewManager(agg, store, ManagerOptions{Logger: discard(), Metrics: m, Clock: clk.Now})
	ctx := context.Background()

	_, err := mgr.GetOrRefresh(ctx, acme, false)
	require.NoError(t, err)
	_, err = mgr.GetOrRefresh(ctx, acme, false)
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)
	_, err = mgr.GetOrRefresh(ctx, acme, false)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("stale")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Recomputes.WithLabelValues("organization", "ok")))
}
