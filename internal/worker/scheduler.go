// Package worker runs the background loops: the scheduled month rollover and
// the ledger-change consumer.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/services"
)

// RolloverRunner is implemented by *services.RolloverProcessor.
type RolloverRunner interface {
	Run(ctx context.Context) (services.RolloverResult, error)
}

// RolloverScheduler runs a RolloverRunner on a cron schedule. A run that is
// still going when the next tick fires makes that tick a no-op.
type RolloverScheduler struct {
	runner  RolloverRunner
	cron    *cron.Cron
	logger  *log.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	lastRun services.RolloverResult
	runs    int
}

// NewRolloverScheduler validates schedule (standard five-field cron syntax or
// a descriptor such as "@monthly"). timeout bounds a single run; zero means
// no bound.
func NewRolloverScheduler(runner RolloverRunner, schedule string, timeout time.Duration, logger *log.Logger) (*RolloverScheduler, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentRollover)

	s := &RolloverScheduler{
		runner:  runner,
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid rollover schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs once immediately, so a worker deployed mid-month catches up,
// then hands over to the cron schedule. Runs stop using ctx once it is done.
func (s *RolloverScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.RunOnce(ctx)
	s.cron.Start()

	for _, e := range s.cron.Entries() {
		s.logger.InfoContext(ctx, "Rollover scheduled", "next_run", e.Next.Format(time.RFC3339))
	}
}

// Stop stops the schedule and waits for a running rollover to finish or ctx
// to expire.
func (s *RolloverScheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RolloverScheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.RunOnce(ctx)
}

// RunOnce performs one rollover and records its result.
func (s *RolloverScheduler) RunOnce(ctx context.Context) services.RolloverResult {
	if ctx.Err() != nil {
		return services.RolloverResult{}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Rollover failed", log.FieldError, err)
	} else {
		s.logger.InfoContext(ctx, "Rollover complete",
			log.FieldMonth, string(result.Month),
			"checked", result.Checked,
			"materialized", result.Materialized,
			"skipped", result.Skipped,
			"failed", result.Failed,
			log.FieldDuration, time.Since(start).Milliseconds())
	}

	s.mu.Lock()
	s.runs++
	s.lastRun = result
	s.mu.Unlock()
	return result
}

// LastRun returns the most recent result and how many runs happened.
func (s *RolloverScheduler) LastRun() (services.RolloverResult, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.runs
}

// cronLogger adapts the process logger to cron.Logger.
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, log.FieldError, err)...)
}
