package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"airmonitor/pkg/wallclock"
)

// RestartPolicy restarts a failed aggregator with exponential backoff. The
// zero value never restarts.
type RestartPolicy struct {
	MaxRestarts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RestartPolicy) delay(restart int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Minute
	}

	backoff := base << (restart - 1)
	if backoff > maxDelay || backoff <= 0 {
		backoff = maxDelay
	}
	return backoff
}

// FailureHandler is told about every fatal aggregator error, including ones
// followed by a restart.
type FailureHandler func(interval string, err error)

// Scheduler runs its aggregators concurrently. They share nothing but the
// sensor, and a failure in one leaves the others running.
type Scheduler struct {
	aggregators []*WindowAggregator
	restart     RestartPolicy
	onFailure   FailureHandler
	clock       wallclock.Clock
	logger      *slog.Logger
}

type SchedulerOption func(*Scheduler)

func WithRestartPolicy(p RestartPolicy) SchedulerOption {
	return func(s *Scheduler) {
		s.restart = p
	}
}

func WithFailureHandler(h FailureHandler) SchedulerOption {
	return func(s *Scheduler) {
		s.onFailure = h
	}
}

func WithSchedulerClock(c wallclock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(aggregators []*WindowAggregator, opts ...SchedulerOption) (*Scheduler, error) {
	if len(aggregators) == 0 {
		return nil, errors.New("scheduler: no aggregators")
	}

	seen := make(map[string]bool, len(aggregators))
	for _, a := range aggregators {
		name := a.Interval().Name
		if seen[name] {
			return nil, fmt.Errorf("scheduler: duplicate %s aggregator", name)
		}
		seen[name] = true
	}

	s := &Scheduler{
		aggregators: aggregators,
		clock:       wallclock.Real,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewIntervalScheduler builds one aggregator per interval name over a shared
// reader and uploader.
func NewIntervalScheduler(names []string, reader Reader, uploader Uploader, aggOpts []AggregatorOption, opts ...SchedulerOption) (*Scheduler, error) {
	aggregators := make([]*WindowAggregator, 0, len(names))
	for _, name := range names {
		a, err := NewWindowAggregator(name, reader, uploader, aggOpts...)
		if err != nil {
			return nil, err
		}
		aggregators = append(aggregators, a)
	}
	return NewScheduler(aggregators, opts...)
}

func (s *Scheduler) Aggregators() []*WindowAggregator {
	return s.aggregators
}

// Run blocks until every aggregator has stopped and returns their joined
// errors. Cancelling ctx stops all of them.
func (s *Scheduler) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, a := range s.aggregators {
		wg.Add(1)
		go func(a *WindowAggregator) {
			defer wg.Done()

			if err := s.supervise(ctx, a); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(a)
	}

	wg.Wait()
	return errors.Join(errs...)
}

func (s *Scheduler) supervise(ctx context.Context, a *WindowAggregator) error {
	name := a.Interval().Name
	s.logger.InfoContext(ctx, "aggregator started",
		slog.String("interval", name),
		slog.Int("readings_per_cycle", a.Interval().ReadingsPerCycle),
	)

	for restart := 1; ; restart++ {
		err := a.Run(ctx)
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "aggregator stopped", slog.String("interval", name))
			return nil
		}

		s.logger.ErrorContext(ctx, "aggregator failed",
			slog.String("interval", name),
			slog.Int("cycle", a.Cycle()),
			slog.String("error", err.Error()),
		)
		if s.onFailure != nil {
			s.onFailure(name, err)
		}

		if restart > s.restart.MaxRestarts {
			return err
		}

		delay := s.restart.delay(restart)
		s.logger.WarnContext(ctx, "restarting aggregator",
			slog.String("interval", name),
			slog.Int("restart", restart),
			slog.Duration("delay", delay),
		)

		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}
