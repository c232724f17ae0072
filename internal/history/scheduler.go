package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// Scheduler prunes reports older than a retention period on a cron
// schedule.
type Scheduler struct {
	store     *Store
	schedule  string
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. It does nothing until started.
func NewScheduler(store *Store, schedule string, retention time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     store,
		schedule:  schedule,
		retention: retention,
		cron:      cron.New(),
		now:       time.Now,
		logger:    logger.With("component", "history.scheduler"),
	}
}

// Start schedules pruning and stops it when ctx is done. An empty schedule
// or a zero retention leaves the scheduler idle.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.retention <= 0 {
		s.logger.Debug("history pruning not scheduled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return dekeerrors.ConfigWrap(err, "history.Scheduler.Start", "invalid prune schedule "+s.schedule)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Prune(ctx) }); err != nil {
		return dekeerrors.ConfigWrap(err, "history.Scheduler.Start", "failed to schedule pruning")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("history pruning scheduled", "schedule", s.schedule, "retention", s.retention)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Prune deletes reports older than the retention period now.
func (s *Scheduler) Prune(ctx context.Context) int64 {
	deleted, err := s.store.PruneBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return 0
	}
	return deleted
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Debug("history pruning stopped")
	}
}

// IsRunning reports whether pruning is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, or nil when none is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
