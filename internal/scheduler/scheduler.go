package scheduler

import (
	"context"
	"time"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/elonfeng/repscore/pkg/alert"
	"github.com/sirupsen/logrus"
)

// Batcher recomputes every entity of a kind.
type Batcher interface {
	RecomputeKind(ctx context.Context, kind activity.EntityKind, forceExternal bool) (activity.BatchResult, error)
}

// Scheduler runs periodic full recomputes and forced GitHub refreshes.
type Scheduler struct {
	batch       Batcher
	alertMgr    *alert.Manager
	log         logrus.FieldLogger
	interval    time.Duration
	externalInt time.Duration
}

// New creates a new scheduler.
func New(batch Batcher, alertMgr *alert.Manager, log logrus.FieldLogger, interval, externalInt time.Duration) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	if externalInt == 0 {
		externalInt = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		batch:       batch,
		alertMgr:    alertMgr,
		log:         log,
		interval:    interval,
		externalInt: externalInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	recomputeTicker := time.NewTicker(s.interval)
	externalTicker := time.NewTicker(s.externalInt)
	defer recomputeTicker.Stop()
	defer externalTicker.Stop()

	s.log.Info("scheduler: initial recompute")
	s.RunOnce(ctx, false)

	s.log.WithFields(logrus.Fields{
		"interval":          s.interval.String(),
		"external_interval": s.externalInt.String(),
	}).Info("scheduler: running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-recomputeTicker.C:
			s.RunOnce(ctx, false)
		case <-externalTicker.C:
			s.refreshExternal(ctx)
		}
	}
}

// RunOnce recomputes organizations and then users.
func (s *Scheduler) RunOnce(ctx context.Context, forceExternal bool) {
	for _, kind := range []activity.EntityKind{activity.KindOrganization, activity.KindUser} {
		if ctx.Err() != nil {
			return
		}
		s.runKind(ctx, kind, forceExternal)
	}
}

// refreshExternal only touches users; organizations have no GitHub data.
func (s *Scheduler) refreshExternal(ctx context.Context) {
	s.runKind(ctx, activity.KindUser, true)
}

func (s *Scheduler) runKind(ctx context.Context, kind activity.EntityKind, forceExternal bool) {
	log := s.log.WithFields(logrus.Fields{"kind": kind, "force_external": forceExternal})
	res, err := s.batch.RecomputeKind(ctx, kind, forceExternal)
	if err != nil {
		log.WithError(err).Error("scheduler: batch failed")
		return
	}
	log.WithFields(logrus.Fields{
		"run_id":    res.RunID,
		"succeeded": res.Succeeded,
		"failed":    len(res.Failed),
	}).Info("scheduler: batch done")

	n := alert.FromBatch(kind, res)
	if n == nil || !s.alertMgr.HasNotifiers() {
		return
	}
	if err := s.alertMgr.Broadcast(ctx, n); err != nil {
		log.WithError(err).Warn("scheduler: alert failed")
	}
}
