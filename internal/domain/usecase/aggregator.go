package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/wallclock"
)

type Reader interface {
	Read(ctx context.Context) (entity.Reading, error)
}

// Uploader takes ownership of a finished log. Retries and spooling are the
// uploader's business; an error it returns ends the aggregator's loop.
type Uploader interface {
	Upload(ctx context.Context, interval, filename string, log *entity.FinalizedLog) error
}

type ProgressObserver interface {
	ObserveProgress(ctx context.Context, p entity.Progress)
}

type AggregatorState int32

const (
	StateCollecting AggregatorState = iota
	StateFinalizing
)

func (s AggregatorState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// WindowAggregator fills one MeasurementLog per cycle for a single interval
// and hands every completed log to the uploader exactly once.
type WindowAggregator struct {
	interval  entity.Interval
	reader    Reader
	uploader  Uploader
	observers []ProgressObserver
	clock     wallclock.Clock
	logger    *slog.Logger

	state atomic.Int32
	cycle atomic.Int64
}

type AggregatorOption func(*WindowAggregator)

func WithObservers(o ...ProgressObserver) AggregatorOption {
	return func(a *WindowAggregator) {
		a.observers = append(a.observers, o...)
	}
}

func WithAggregatorClock(c wallclock.Clock) AggregatorOption {
	return func(a *WindowAggregator) {
		a.clock = c
	}
}

func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *WindowAggregator) {
		a.logger = l
	}
}

// NewWindowAggregator validates the interval name before anything runs.
func NewWindowAggregator(name string, reader Reader, uploader Uploader, opts ...AggregatorOption) (*WindowAggregator, error) {
	interval, err := entity.ParseInterval(name)
	if err != nil {
		return nil, err
	}

	a := &WindowAggregator{
		interval: interval,
		reader:   reader,
		uploader: uploader,
		clock:    wallclock.Real,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *WindowAggregator) Interval() entity.Interval {
	return a.interval
}

func (a *WindowAggregator) State() AggregatorState {
	return AggregatorState(a.state.Load())
}

// Cycle is the number of the cycle in progress, starting at 1.
func (a *WindowAggregator) Cycle() int {
	return int(a.cycle.Load())
}

// Run repeats cycles until one fails or ctx is done.
func (a *WindowAggregator) Run(ctx context.Context) error {
	for {
		if err := a.RunCycle(ctx); err != nil {
			return err
		}
	}
}

// RunCycle collects exactly ReadingsPerCycle readings into a fresh log, then
// finalizes it and uploads it. A failed or cancelled cycle uploads nothing.
func (a *WindowAggregator) RunCycle(ctx context.Context) error {
	cycle := int(a.cycle.Add(1))
	a.state.Store(int32(StateCollecting))

	current := entity.NewMeasurementLog(a.interval.Name, a.clock.Now(), a.interval.ReadingsPerCycle)
	total := a.interval.ReadingsPerCycle

	for i := 0; i < total; i++ {
		reading, err := a.reader.Read(ctx)
		if err != nil {
			return fmt.Errorf("%s aggregator, cycle %d, reading %d: %w", a.interval.Name, cycle, i+1, err)
		}

		if err := current.Append(reading); err != nil {
			return fmt.Errorf("%s aggregator: %w", a.interval.Name, err)
		}

		a.notify(ctx, entity.Progress{
			Interval:  a.interval.Name,
			Cycle:     cycle,
			Reading:   i + 1,
			Total:     total,
			Fine:      reading.Fine,
			Coarse:    reading.Coarse,
			Timestamp: reading.Timestamp,
		})

		select {
		case <-a.clock.After(entity.SamplePeriod):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.state.Store(int32(StateFinalizing))
	defer a.state.Store(int32(StateCollecting))

	finalized, err := current.Finalize()
	if err != nil {
		return fmt.Errorf("%s aggregator: finalize cycle %d: %w", a.interval.Name, cycle, err)
	}

	a.logger.InfoContext(ctx, "uploading "+a.interval.Name,
		slog.String("interval", a.interval.Name),
		slog.Int("cycle", cycle),
		slog.String("file", finalized.Filename()),
		slog.Int("readings", finalized.Readings()),
		slog.Int("bytes", finalized.Size()),
	)

	if err := a.uploader.Upload(ctx, a.interval.Name, finalized.Filename(), finalized); err != nil {
		return fmt.Errorf("%s aggregator: upload %s: %w", a.interval.Name, finalized.Filename(), err)
	}
	return nil
}

func (a *WindowAggregator) notify(ctx context.Context, p entity.Progress) {
	for _, o := range a.observers {
		o.ObserveProgress(ctx, p)
	}
}
