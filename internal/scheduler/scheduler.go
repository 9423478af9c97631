// Package scheduler runs store maintenance on a cron schedule: generated
// source older than the retention window is pruned, then the database is
// vacuumed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs maintenance daily at 03:00 UTC.
const DefaultSpec = "0 3 * * *"

// DefaultRetention is how long generated source is kept.
const DefaultRetention = 30 * 24 * time.Hour

// Maintainer is the part of store.Store the scheduler drives.
type Maintainer interface {
	Vacuum(ctx context.Context) error
	PruneGenerations(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the maintenance job. A zero Retention disables pruning.
type Config struct {
	Spec      string
	Retention time.Duration
}

// Result describes one maintenance pass.
type Result struct {
	StartedAt time.Time `json:"started_at"`
	Pruned    int64     `json:"pruned"`
	Vacuumed  bool      `json:"vacuumed"`
}

// Scheduler runs maintenance passes on a cron schedule.
type Scheduler struct {
	store     Maintainer
	parser    cron.Parser
	spec      string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron

	// running is held for the duration of a pass; TryLock skips overlapping runs.
	running sync.Mutex
}

// New validates cfg and creates a Scheduler. An empty Spec means DefaultSpec.
func New(m Maintainer, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	s := &Scheduler{
		store:     m,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		spec:      cfg.Spec,
		retention: cfg.Retention,
		logger:    logger.With("component", "scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if _, err := s.parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start schedules maintenance until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("maintenance failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started", slog.String("spec", s.spec),
		slog.Time("next_run", s.Next(s.now())))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running pass.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	<-s.cron.Stop().Done()
	s.cron = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RunOnce performs one maintenance pass now. It returns an error without
// doing anything when another pass is still running.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	if !s.running.TryLock() {
		return nil, fmt.Errorf("maintenance already running")
	}
	defer s.running.Unlock()

	res := &Result{StartedAt: s.now()}
	if s.retention > 0 {
		n, err := s.store.PruneGenerations(ctx, res.StartedAt.Add(-s.retention))
		if err != nil {
			return res, fmt.Errorf("prune generations: %w", err)
		}
		res.Pruned = n
	}
	if err := s.store.Vacuum(ctx); err != nil {
		return res, fmt.Errorf("vacuum: %w", err)
	}
	res.Vacuumed = true

	s.logger.Info("maintenance done",
		slog.Int64("pruned", res.Pruned),
		slog.Duration("duration", s.now().Sub(res.StartedAt)))
	return res, nil
}

// Next returns the first scheduled run after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	next, _ := s.CalculateNextRun(s.spec, from)
	return next
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}
