package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"rental-marketplace/internal/config"
	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/verification"
)

const (
	scheduleLock = "schedule"
	sweepLock    = "sweep"
)

// ScheduleRunner creates due verification requests
type ScheduleRunner interface {
	Run(ctx context.Context) (*verification.ScheduleResult, error)
}

// SweepRunner expires overdue verification requests
type SweepRunner interface {
	Run(ctx context.Context) (*verification.SweepResult, error)
}

// Scheduler runs the verification jobs on cron and on demand.
// Each job holds a lock for its whole run so overlapping triggers are refused.
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.JobsConfig
	schedule  ScheduleRunner
	sweep     SweepRunner
	locker    Locker
	log       *logrus.Entry
	mu        sync.Mutex
	isRunning bool
}

// RunResult is the combined outcome of RunAll
type RunResult struct {
	Sweep    *verification.SweepResult    `json:"sweep,omitempty"`
	Schedule *verification.ScheduleResult `json:"schedule,omitempty"`
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg config.JobsConfig, schedule ScheduleRunner, sweep SweepRunner, locker Locker) *Scheduler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger.Log))),
		),
		cfg:      cfg,
		schedule: schedule,
		sweep:    sweep,
		locker:   locker,
		log:      logger.Log.WithField("component", "jobs"),
	}
}

// Start registers the schedule and sweep jobs and starts cron
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	scheduleSpec := s.cfg.ScheduleSpec
	if scheduleSpec == "" {
		scheduleSpec = parseDailyRunTime(s.cfg.DailyRunTime)
	}
	if _, err := s.cron.AddFunc(scheduleSpec, func() { s.runLogged("schedule", s.runSchedule) }); err != nil {
		return fmt.Errorf("invalid schedule spec %q: %w", scheduleSpec, err)
	}

	if s.cfg.SweepSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.SweepSpec, func() { s.runLogged("sweep", s.runSweep) }); err != nil {
			return fmt.Errorf("invalid sweep spec %q: %w", s.cfg.SweepSpec, err)
		}
	}

	s.cron.Start()
	s.isRunning = true
	s.log.Infof("Scheduler: Started (schedule: %s, sweep: %s)", scheduleSpec, s.cfg.SweepSpec)
	return nil
}

// Stop stops cron and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		s.log.Info("Scheduler: Stopped")
	}
}

func (s *Scheduler) runLogged(name string, run func(context.Context) error) {
	s.log.Infof("Scheduler: Starting %s job...", name)
	if err := run(context.Background()); err != nil {
		if errors.Is(err, ErrJobRunning) {
			s.log.Warnf("Scheduler: %s job skipped, previous run still in progress", name)
			return
		}
		s.log.WithError(err).Errorf("Scheduler: %s job failed", name)
		return
	}
	s.log.Infof("Scheduler: %s job completed", name)
}

func (s *Scheduler) runSchedule(ctx context.Context) error {
	_, err := s.RunSchedule(ctx)
	return err
}

func (s *Scheduler) runSweep(ctx context.Context) error {
	_, err := s.RunSweep(ctx)
	return err
}

// RunSchedule immediately executes the scheduling job
func (s *Scheduler) RunSchedule(ctx context.Context) (*verification.ScheduleResult, error) {
	unlock, err := s.locker.TryLock(ctx, scheduleLock, s.cfg.GetLockTTL())
	if err != nil {
		return nil, err
	}
	defer s.release(unlock, scheduleLock)
	return s.schedule.Run(ctx)
}

// RunSweep immediately executes the expiration sweep
func (s *Scheduler) RunSweep(ctx context.Context) (*verification.SweepResult, error) {
	unlock, err := s.locker.TryLock(ctx, sweepLock, s.cfg.GetLockTTL())
	if err != nil {
		return nil, err
	}
	defer s.release(unlock, sweepLock)
	return s.sweep.Run(ctx)
}

// RunAll sweeps first so properties whose request just expired can be rescheduled
func (s *Scheduler) RunAll(ctx context.Context) (*RunResult, error) {
	var result RunResult
	var err error
	if result.Sweep, err = s.RunSweep(ctx); err != nil {
		return &result, err
	}
	result.Schedule, err = s.RunSchedule(ctx)
	return &result, err
}

func (s *Scheduler) release(unlock Unlock, name string) {
	// the run may have been cancelled; release on a fresh context
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlock(ctx); err != nil {
		s.log.WithError(err).Warnf("Scheduler: failed to release %s lock", name)
	}
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	logger.Log.Warnf("Scheduler: Failed to parse time '%s', using default 02:00", timeStr)
	return "0 2 * * *"
}
