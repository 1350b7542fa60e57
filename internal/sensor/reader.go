// Package sensor wraps the particulate sensor channel with the retry policy
// shared by every sampling loop.
//
// The sensor is a single serial device used by several independent loops at
// once. Overlapping access surfaces as a transient fault; the reader waits one
// second for the competing query to finish and tries exactly once more. A
// second fault means the device or its connection is gone and is returned to
// the caller as fatal.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/wallclock"
)

// DefaultRetryDelay is the pause before the single retry.
const DefaultRetryDelay = time.Second

var ErrSensorFault = errors.New("sensor fault")

// Querier is the raw capability of the physical channel.
type Querier interface {
	Query(ctx context.Context) (fine, coarse float64, err error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context) (float64, float64, error)

func (f QuerierFunc) Query(ctx context.Context) (float64, float64, error) {
	return f(ctx)
}

// Fault is returned once the retry budget is spent or the failure is not
// transient.
type Fault struct {
	Attempts int
	Err      error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("sensor fault after %d attempt(s): %v", f.Attempts, f.Err)
}

func (f *Fault) Unwrap() []error {
	return []error{ErrSensorFault, f.Err}
}

// IsTransient reports whether err, or an error it wraps, declares itself
// temporary.
func IsTransient(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

type Reader struct {
	querier    Querier
	clock      wallclock.Clock
	retryDelay time.Duration
	logger     *slog.Logger
}

type Option func(*Reader)

func WithClock(c wallclock.Clock) Option {
	return func(r *Reader) {
		r.clock = c
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(r *Reader) {
		r.retryDelay = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

func NewReader(q Querier, opts ...Option) *Reader {
	r := &Reader{
		querier:    q,
		clock:      wallclock.Real,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns exactly one reading, stamped with the time it was captured.
func (r *Reader) Read(ctx context.Context) (entity.Reading, error) {
	reading, err := r.query(ctx)
	if err == nil {
		return reading, nil
	}
	if !IsTransient(err) {
		return entity.Reading{}, &Fault{Attempts: 1, Err: err}
	}

	r.logger.WarnContext(ctx, "sensor busy, retrying",
		slog.Duration("delay", r.retryDelay),
		slog.String("error", err.Error()),
	)

	select {
	case <-r.clock.After(r.retryDelay):
	case <-ctx.Done():
		return entity.Reading{}, ctx.Err()
	}

	reading, err = r.query(ctx)
	if err != nil {
		return entity.Reading{}, &Fault{Attempts: 2, Err: err}
	}
	return reading, nil
}

func (r *Reader) query(ctx context.Context) (entity.Reading, error) {
	fine, coarse, err := r.querier.Query(ctx)
	if err != nil {
		return entity.Reading{}, err
	}

	reading := entity.Reading{
		Fine:      fine,
		Coarse:    coarse,
		Timestamp: r.clock.Now(),
	}
	if err := reading.Validate(); err != nil {
		return entity.Reading{}, err
	}
	return reading, nil
}
