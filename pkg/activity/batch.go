package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elonfeng/repscore/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EntityFailure records why one entity failed in a batch.
type EntityFailure struct {
	Entity EntityRef `json:"entity"`
	Err    string    `json:"error"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	RunID     string          `json:"run_id"`
	Succeeded int             `json:"succeeded"`
	Failed    []EntityFailure `json:"failed"`
	Started   time.Time       `json:"started"`
	Duration  time.Duration   `json:"duration"`
}

// BatchOptions configures a BatchRunner. Zero values pick defaults.
type BatchOptions struct {
	Workers       int
	EntityTimeout time.Duration
	Logger        logrus.FieldLogger
	Metrics       *metrics.Metrics
}

// BatchRunner recomputes many entities on a bounded worker pool.
type BatchRunner struct {
	manager       *Manager
	directory     Directory
	workers       int
	entityTimeout time.Duration
	log           logrus.FieldLogger
	metrics       *metrics.Metrics
}

// NewBatchRunner creates a BatchRunner.
func NewBatchRunner(manager *Manager, directory Directory, opts BatchOptions) *BatchRunner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.EntityTimeout <= 0 {
		opts.EntityTimeout = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &BatchRunner{
		manager:       manager,
		directory:     directory,
		workers:       opts.Workers,
		entityTimeout: opts.EntityTimeout,
		log:           opts.Logger,
		metrics:       opts.Metrics,
	}
}

// RecomputeKind recomputes every entity of a kind known to the directory.
func (b *BatchRunner) RecomputeKind(ctx context.Context, kind EntityKind, forceExternal bool) (BatchResult, error) {
	ids, err := b.directory.ListEntities(ctx, kind)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list %s entities: %w", kind, err)
	}
	refs := make([]EntityRef, len(ids))
	for i, id := range ids {
		refs[i] = EntityRef{Kind: kind, ID: id}
	}
	return b.RecomputeAll(ctx, refs, forceExternal), nil
}

// RecomputeAll fans refs out to the worker pool. The queue holds at most one
// pending ref per worker, so the producer blocks while workers are busy. A
// failing entity is recorded and never stops its siblings; once ctx is done
// the remaining refs are recorded as failed.
func (b *BatchRunner) RecomputeAll(ctx context.Context, refs []EntityRef, forceExternal bool) BatchResult {
	res := BatchResult{RunID: uuid.NewString(), Started: time.Now()}
	log := b.log.WithField("run_id", res.RunID)
	log.WithFields(logrus.Fields{"entities": len(refs), "workers": b.workers}).Info("batch started")

	var mu sync.Mutex
	record := func(ref EntityRef, err error) {
		b.metrics.BatchEntity(string(ref.Kind), err)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failed = append(res.Failed, EntityFailure{Entity: ref, Err: err.Error()})
			return
		}
		res.Succeeded++
	}

	queue := make(chan EntityRef, b.workers)
	var g errgroup.Group
	for range b.workers {
		g.Go(func() error {
			for ref := range queue {
				err := b.recomputeOne(ctx, ref, forceExternal)
				if err != nil {
					log.WithField("entity", ref.String()).WithError(err).Warn("batch entity failed")
				}
				record(ref, err)
			}
			return nil
		})
	}

	for i, ref := range refs {
		select {
		case queue <- ref:
			continue
		case <-ctx.Done():
		}
		for _, skipped := range refs[i:] {
			record(skipped, ctx.Err())
		}
		break
	}
	close(queue)
	_ = g.Wait()

	res.Duration = time.Since(res.Started)
	log.WithFields(logrus.Fields{
		"succeeded": res.Succeeded,
		"failed":    len(res.Failed),
		"duration":  res.Duration.String(),
	}).Info("batch finished")
	return res
}

func (b *BatchRunner) recomputeOne(ctx context.Context, ref EntityRef, forceExternal bool) (err error) {
	ctx, cancel := context.WithTimeout(ctx, b.entityTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = b.manager.Recompute(ctx, ref, forceExternal)
	return err
}
