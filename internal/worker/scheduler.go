package worker

import (
	"context"
	"time"

	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one periodic maintenance task. A failed run is logged and the
// job waits for its next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

type Scheduler struct {
	jobs []Job
	log  *zap.Logger
}

func NewScheduler(log *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, log: log.With(zap.String("component", "scheduler"))}
}

// MaintenanceJobs builds the hold sweep, the refund reconciler and the
// session cleanup from the reservation config intervals.
func MaintenanceJobs(m usecase.MaintenanceService, cfg utils.ReservationConfig) []Job {
	return []Job{
		{
			Name:     "hold-sweep",
			Interval: cfg.HoldSweepInterval,
			Run: func(ctx context.Context) (int64, error) {
				n, err := m.ExpireStaleHolds(ctx)
				return int64(n), err
			},
		},
		{
			Name:     "refund-reconcile",
			Interval: cfg.RefundReconcileInterval,
			Run: func(ctx context.Context) (int64, error) {
				n, err := m.ReconcileRefunds(ctx)
				return int64(n), err
			},
		},
		{
			Name:     "session-cleanup",
			Interval: cfg.SessionCleanupInterval,
			Run:      m.CleanSessions,
		},
	}
}

// Run starts every job with a non-zero interval and blocks until ctx is
// cancelled. Each job runs once at startup, then on every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.log.Info("Job disabled", zap.String("job", job.Name))
			continue
		}
		job := job
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	log := s.log.With(zap.String("job", job.Name))
	log.Info("Job started", zap.Duration("interval", job.Interval))

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx, job, log)

		select {
		case <-ctx.Done():
			log.Info("Job stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		log.Error("Job run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	if n > 0 {
		log.Info("Job run completed", zap.Int64("affected", n), zap.Duration("duration", time.Since(start)))
		return
	}
	log.Debug("Job run completed", zap.Duration("duration", time.Since(start)))
}
