package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobResult is what a run reports back to the scheduler.
type JobResult struct {
	Status        string
	ItemsConsumed int
}

// Job executes one pipeline run. A non-nil error means the run failed fatally.
type Job func(ctx context.Context) (JobResult, error)

// Scheduler fires Job on the configured cron schedule. Overlapping runs are
// skipped, not queued, so at most one run touches the state at a time.
type Scheduler struct {
	cfg     *WorkerConfig
	job     Job
	metrics *WorkerMetrics
	health  *HealthServer
	logger  *slog.Logger
	cron    *cron.Cron
}

// NewScheduler validates the schedule and registers job.
func NewScheduler(cfg *WorkerConfig, job Job, metrics *WorkerMetrics, health *HealthServer, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{
		cfg:     cfg,
		job:     job,
		metrics: metrics,
		health:  health,
		logger:  logger,
		cron:    c,
	}
	return s, nil
}

// Start schedules the job and blocks until ctx is cancelled. It waits for a
// run in progress to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.cron.Start()
	s.health.SetReady(true)

	s.logger.Info("scheduler started",
		slog.String("schedule", s.cfg.CronSchedule),
		slog.String("timezone", s.cfg.Timezone),
		slog.Time("next_run", s.NextRun()))

	<-ctx.Done()

	s.health.SetReady(false)
	s.logger.Info("scheduler stopping, waiting for running job")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// NextRun returns the next activation time, or the zero time before Start.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce executes the job under RunTimeout, recovering panics, and records
// the outcome. It never panics itself, so the scheduler keeps running.
func (s *Scheduler) RunOnce(parent context.Context) {
	start := time.Now()
	s.metrics.RecordJobRun("started")

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	res, err := s.safeRun(ctx)
	elapsed := time.Since(start)
	s.metrics.RecordJobDuration(elapsed.Seconds())

	status := RunStatus{Status: res.Status, FinishedAt: time.Now()}
	if err != nil {
		s.metrics.RecordJobRun("failure")
		status.Status = "failed"
		status.Error = err.Error()
		s.logger.Error("scheduled run failed",
			slog.Any("error", err),
			slog.Duration("duration", elapsed))
	} else {
		s.metrics.RecordJobRun("success")
		s.metrics.RecordItemsProcessed(res.ItemsConsumed)
		s.metrics.RecordLastSuccess()
		s.logger.Info("scheduled run finished",
			slog.String("status", res.Status),
			slog.Int("items_consumed", res.ItemsConsumed),
			slog.Duration("duration", elapsed))
	}
	s.health.SetLastRun(status)
}

func (s *Scheduler) safeRun(ctx context.Context) (res JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordJobRun("panic")
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.job(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
