package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/utils"
	"airmonitor/pkg/wallclock"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultNotifyEvery throttles notification triggers to one per 20 minutes.
const DefaultNotifyEvery = 20 * time.Minute

type Light interface {
	Set(ctx context.Context, state entity.LightState) error
}

// IndicatorUseCase drives the light from live readings and, when a Notifier
// is set, triggers a push notification for readings past an alert threshold.
type IndicatorUseCase struct {
	Reader   Reader
	Light    Light
	Notifier Publisher
	Limiter  *rate.Limiter
	Clock    wallclock.Clock
	Logger   *slog.Logger
	Every    time.Duration
}

func NewIndicatorUseCase(r Reader, l Light, notifier Publisher, notifyEvery time.Duration, logger *slog.Logger) *IndicatorUseCase {
	if notifyEvery <= 0 {
		notifyEvery = DefaultNotifyEvery
	}
	return &IndicatorUseCase{
		Reader:   r,
		Light:    l,
		Notifier: notifier,
		Limiter:  rate.NewLimiter(rate.Every(notifyEvery), 1),
		Clock:    wallclock.Real,
		Logger:   logger,
		Every:    10 * time.Second,
	}
}

// Run ticks until ctx is done or the sensor fails.
func (u *IndicatorUseCase) Run(ctx context.Context) error {
	for {
		if _, err := u.Tick(ctx); err != nil {
			return err
		}

		select {
		case <-u.Clock.After(u.Every):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick takes one reading and updates the light. Only a sensor error is
// returned; light and notification failures are logged.
func (u *IndicatorUseCase) Tick(ctx context.Context) (entity.LightState, error) {
	reading, err := u.Reader.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("indicator: %w", err)
	}

	state := entity.ClassifyReading(reading.Fine, reading.Coarse)
	if err := u.Light.Set(ctx, state); err != nil {
		u.Logger.ErrorContext(ctx, "set light failed", slog.String("state", string(state)), slog.String("error", err.Error()))
	} else {
		u.Logger.InfoContext(ctx, fmt.Sprintf("Set %s light on %v or %v", strings.ToLower(string(state)), reading.Fine, reading.Coarse))
	}

	if u.Notifier != nil {
		for _, row := range reading.Rows() {
			if row.ExceedsAlert() {
				u.notify(ctx, reading.Timestamp, row)
			}
		}
	}

	return state, nil
}

func (u *IndicatorUseCase) notify(ctx context.Context, at time.Time, row entity.Row) {
	if !u.Limiter.AllowN(u.Clock.Now(), 1) {
		u.Logger.DebugContext(ctx, "notification throttled", slog.String("pollutant", row.Pollutant))
		return
	}

	msg, err := utils.ToRawMessage(entity.NotificationMessage{
		ID:        uuid.New().String(),
		Time:      at.Format("03:04 PM"),
		Pollutant: row.Pollutant,
		Value:     utils.FormatFloat(row.Value),
		SentAt:    u.Clock.Now(),
	})
	if err != nil {
		u.Logger.ErrorContext(ctx, "encode notification failed", slog.String("error", err.Error()))
		return
	}

	if err := u.Notifier.Publish(ctx, msg); err != nil {
		u.Logger.ErrorContext(ctx, "notification trigger failed", slog.String("error", err.Error()))
		return
	}
	u.Logger.InfoContext(ctx, "sent notification request",
		slog.String("pollutant", row.Pollutant),
		slog.String("value", utils.FormatFloat(row.Value)),
	)
}
