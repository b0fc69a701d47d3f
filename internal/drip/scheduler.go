package drip

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig contains scheduler configuration.
type SchedulerConfig struct {
	// Interval between processing passes.
	Interval time.Duration

	// RunOnStart triggers an immediate pass when the scheduler starts
	// instead of waiting one full interval.
	RunOnStart bool
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   15 * time.Minute,
		RunOnStart: true,
	}
}

// Scheduler drives registered processors on a fixed cadence. The cadence is
// a floor, not a contract: passes are idempotent against early or late
// invocation.
type Scheduler struct {
	config     SchedulerConfig
	processors []*Processor

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the given processors.
func NewScheduler(config SchedulerConfig, processors ...*Processor) *Scheduler {
	if config.Interval == 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		config:     config,
		processors: processors,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the scheduling goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting queue scheduler",
		"queues", len(s.processors),
		"interval", s.config.Interval,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop waits for an in-flight pass to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("queue scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.runPasses(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runPasses(ctx)
		}
	}
}

func (s *Scheduler) runPasses(ctx context.Context) {
	for _, processor := range s.processors {
		if _, err := processor.ProcessPass(ctx); err != nil {
			slog.Error("queue pass failed",
				"queue", processor.QueueName(),
				"error", err,
			)
		}
	}
}
