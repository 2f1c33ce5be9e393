// Package scheduler drives the main polling loop: discover new
// descriptors, resolve them, order the pending queue and hand one job
// at a time to the execution driver. There is exactly one scheduler
// goroutine, which is what makes the single-flight guarantee hold
// without locks.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"alphabuddy/internal/config"
	"alphabuddy/internal/logger"
	"alphabuddy/internal/models"
	"alphabuddy/internal/resolver"
	"alphabuddy/internal/store"
	"alphabuddy/internal/telemetry"
)

// Driver launches the external prediction tool for one resolved job and
// blocks until it finishes. Failures are reported in the outcome, never
// as a panic or a process exit.
type Driver interface {
	Run(ctx context.Context, job *models.ResolvedJob) models.Outcome
}

// Scheduler owns the pending queue and the single running slot.
type Scheduler struct {
	cfg      config.Config
	settings *config.Settings
	store    *store.Store
	driver   Driver
	log      *logger.Logger

	pending []*models.Record
	now     func() time.Time
}

// New builds a scheduler over the given store and driver.
func New(cfg config.Config, settings *config.Settings, st *store.Store, driver Driver, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		settings: settings,
		store:    st,
		driver:   driver,
		log:      log,
		now:      time.Now,
	}
}

// Run polls until the context is cancelled. Per-job errors never stop
// the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "poll_interval", s.cfg.PollInterval)
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// Tick consumes newly discovered descriptors, then dispatches the next
// pending job if nothing is running. Dispatch blocks until the external
// tool finishes; that await is the loop's only long suspension.
func (s *Scheduler) Tick(ctx context.Context) {
	s.ingest()
	telemetry.QueueDepthGauge.Set(float64(len(s.pending)))
	if len(s.pending) == 0 {
		return
	}
	s.dispatch(ctx, s.pop())
	telemetry.QueueDepthGauge.Set(float64(len(s.pending)))
}

func (s *Scheduler) ingest() {
	recs, err := s.store.Discover()
	if err != nil {
		s.log.Error("discover failed", "error", err)
		return
	}
	for _, rec := range recs {
		telemetry.JobsDiscovered.Inc()
		desc, err := s.store.ReadDescriptor(rec)
		if err != nil {
			s.reject(rec, err)
			continue
		}
		resolved, err := resolver.Resolve(s.settings, desc, rec.Source, s.now())
		if err != nil {
			s.reject(rec, err)
			continue
		}
		s.store.SetResolved(rec, resolved)
		s.pending = append(s.pending, rec)
		s.log.Info("job queued", "job", resolved.Name, "version", resolved.Version, "urgent", resolved.Urgent)
	}
}

// reject routes an unresolvable descriptor straight to failed_jobs so
// it cannot block the queue.
func (s *Scheduler) reject(rec *models.Record, cause error) {
	telemetry.JobsRejected.Inc()
	s.log.Warn("job rejected", "source", rec.Source, "error", cause)
	if err := s.store.MarkFailed(rec, cause.Error()); err != nil {
		s.log.Error("could not move rejected job", "source", rec.Source, "error", err)
	}
}

// pop removes and returns the highest-priority pending record: urgent
// first, then arrival order.
func (s *Scheduler) pop() *models.Record {
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if a.Resolved.Urgent != b.Resolved.Urgent {
			return a.Resolved.Urgent
		}
		if !a.ArrivedAt.Equal(b.ArrivedAt) {
			return a.ArrivedAt.Before(b.ArrivedAt)
		}
		return a.Seq < b.Seq
	})
	rec := s.pending[0]
	s.pending = s.pending[1:]
	return rec
}

func (s *Scheduler) dispatch(ctx context.Context, rec *models.Record) {
	job := rec.Resolved
	if err := s.store.BeginExecution(rec); err != nil {
		if errors.Is(err, models.ErrAlreadyRunning) {
			// A second begin before the matching finish is a logic fault
			// in this loop, not a property of the job. Re-queue and
			// complain.
			s.log.Error("scheduler invariant violated", "job", job.Name, "error", err)
			s.pending = append([]*models.Record{rec}, s.pending...)
			return
		}
		// Anything else (descriptor gone from input/, unwritable running
		// dir) is terminal for this job only. It must not hold up the
		// jobs behind it.
		s.reject(rec, err)
		return
	}

	telemetry.InFlightGauge.Inc()
	s.log.Info("job started", "job", job.Name, "version", job.Version)
	outcome := s.driver.Run(ctx, job)
	telemetry.InFlightGauge.Dec()

	if err := s.store.Finish(rec, outcome); err != nil {
		s.log.Error("finish failed", "job", job.Name, "error", err)
		return
	}
	for _, w := range outcome.Warnings {
		telemetry.PostProcessWarnings.Inc()
		s.log.Warn("post-processing warning", "job", job.Name, "warning", w)
	}
	if outcome.Status == models.OutcomeSuccess {
		telemetry.JobsSucceeded.Inc()
		s.log.Info("job done", "job", job.Name, "result", outcome.ResultPath)
	} else {
		telemetry.JobsFailed.Inc()
		s.log.Warn("job failed", "job", job.Name, "error", outcome.Log)
	}
}
