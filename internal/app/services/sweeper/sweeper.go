// Package sweeper reconciles expired temporary assignments back to the
// default group on a fixed period.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/luggez/groupsystem/internal/app/metrics"
	membershipsvc "github.com/luggez/groupsystem/internal/app/services/membership"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/internal/app/system"
	"github.com/luggez/groupsystem/pkg/logger"
)

const defaultInterval = 10 * time.Second

var _ system.Service = (*Sweeper)(nil)

// Sweeper scans the full store, not the cache: expired assignments must be
// cleared for users who are not currently connected as well.
type Sweeper struct {
	store    storage.MembershipStore
	members  *membershipsvc.Service
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a lifecycle-managed expiry sweeper.
func New(store storage.MembershipStore, members *membershipsvc.Service, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("sweeper")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		store:    store,
		members:  members,
		log:      log,
		interval: interval,
	}
}

func (s *Sweeper) Name() string { return "expiry-sweeper" }

// Start schedules the periodic sweep. Cycles never overlap: a trigger that
// fires while the previous cycle is still running is skipped, not queued.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.PrintfLogger(s.log)),
		cron.Recover(cron.PrintfLogger(s.log)),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Infof("expiry sweeper started (interval %s)", s.interval)
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("expiry sweeper stopped")
	return nil
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	reconciled, err := s.RunOnce(ctx)
	if err != nil {
		s.log.WithError(err).Warn("expiry sweep failed")
	}
	if reconciled > 0 {
		s.log.Infof("reset %d expired assignment(s)", reconciled)
	}
}

// RunOnce performs a single sweep cycle against the reconciliation instant
// "now". Each row is reconciled independently: one failed reset is logged
// and left for the next cycle, since the row stays expired and will match
// again.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	expired, err := s.store.ListExpired(ctx, start.UTC())
	if err != nil {
		metrics.RecordSweep(0, time.Since(start), false)
		return 0, fmt.Errorf("scan expired assignments: %w", err)
	}

	reconciled := 0
	for _, rec := range expired {
		if _, err := s.members.ResetToDefault(rec.UserID).Wait(ctx); err != nil {
			s.log.WithError(err).
				WithField("user", rec.UserID).
				WithField("group", rec.GroupName).
				Warn("failed to reset expired assignment, retrying next cycle")
			continue
		}
		s.log.WithField("user", rec.UserID).
			WithField("group", rec.GroupName).
			Info("assignment expired")
		reconciled++
	}

	metrics.RecordSweep(reconciled, time.Since(start), true)
	return reconciled, nil
}
