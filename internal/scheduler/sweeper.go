package scheduler

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultSchedule = "0 */5 * * * *"

// Sweepable drops expired in-process state and reports how many entries went
type Sweepable interface {
	Sweep() int
}

// SweepFunc adapts a plain function to Sweepable
type SweepFunc func() int

// Sweep calls f
func (f SweepFunc) Sweep() int {
	return f()
}

// SweepScheduler periodically clears the local idempotency keys and
// per-IP limiters so long-running replicas do not grow without bound.
type SweepScheduler struct {
	targets  map[string]Sweepable
	schedule string
	logger   *logrus.Logger
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
}

// NewSweepScheduler creates a scheduler. Nil targets are skipped.
func NewSweepScheduler(schedule string, logger *logrus.Logger) *SweepScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SweepScheduler{
		targets:  make(map[string]Sweepable),
		schedule: schedule,
		logger:   logger,
	}
}

// Register adds a named target
func (s *SweepScheduler) Register(name string, target Sweepable) {
	if target == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[name] = target
}

// Start starts the sweep job
func (s *SweepScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	schedule := s.schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	// robfig/cron with WithSeconds expects six fields
	if len(strings.Fields(schedule)) == 5 {
		schedule = "0 " + schedule
	}

	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce() }); err != nil {
		s.logger.WithError(err).Error("Failed to schedule sweep job")
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.WithFields(logrus.Fields{
		"schedule": schedule,
		"targets":  len(s.targets),
	}).Info("Sweep scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("Sweep scheduler stopped")
}

// RunOnce sweeps every target and returns the removed count per target
func (s *SweepScheduler) RunOnce() map[string]int {
	s.mu.Lock()
	targets := make(map[string]Sweepable, len(s.targets))
	for name, t := range s.targets {
		targets[name] = t
	}
	s.mu.Unlock()

	startTime := time.Now()
	removed := make(map[string]int, len(targets))
	fields := logrus.Fields{}
	for name, t := range targets {
		n := t.Sweep()
		removed[name] = n
		fields[name] = n
	}
	fields["duration"] = time.Since(startTime).String()

	s.logger.WithFields(fields).Debug("Completed sweep")
	return removed
}

// IsRunning returns whether the scheduler is running
func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetStats returns scheduler statistics
func (s *SweepScheduler) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"running":  s.running,
		"schedule": s.schedule,
		"targets":  len(s.targets),
	}
	if s.cron != nil && s.running {
		if entries := s.cron.Entries(); len(entries) > 0 {
			stats["next_run"] = entries[0].Next.Format(time.RFC3339)
		}
	}
	return stats
}
