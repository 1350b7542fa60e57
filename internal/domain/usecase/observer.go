package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"airmonitor/internal/domain/entity"
)

// LogObserver writes one line per reading.
type LogObserver struct {
	Logger *slog.Logger
}

func NewLogObserver(l *slog.Logger) *LogObserver {
	return &LogObserver{Logger: l}
}

func (o *LogObserver) ObserveProgress(ctx context.Context, p entity.Progress) {
	msg := fmt.Sprintf("%s (%.2f%%): %v %v %s",
		strings.ToUpper(p.Interval), p.Percent(), p.Fine, p.Coarse, p.Timestamp.Format(entity.TimestampLayout))
	o.Logger.InfoContext(ctx, msg,
		slog.String("interval", p.Interval),
		slog.Int("cycle", p.Cycle),
		slog.Int("reading", p.Reading),
	)
}

type ProgressTracker interface {
	SetProgress(ctx context.Context, p entity.Progress) error
}

// TrackerObserver forwards progress to a tracker. Tracker failures are logged
// and never reach the aggregator.
type TrackerObserver struct {
	Tracker ProgressTracker
	Logger  *slog.Logger
}

func NewTrackerObserver(t ProgressTracker, l *slog.Logger) *TrackerObserver {
	return &TrackerObserver{Tracker: t, Logger: l}
}

func (o *TrackerObserver) ObserveProgress(ctx context.Context, p entity.Progress) {
	if err := o.Tracker.SetProgress(ctx, p); err != nil {
		o.Logger.WarnContext(ctx, "progress tracking failed",
			slog.String("interval", p.Interval),
			slog.String("error", err.Error()),
		)
	}
}
