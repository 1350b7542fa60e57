package sensor

import (
	"context"
	"fmt"
	"time"

	"airmonitor/pkg/wallclock"
)

// DefaultWarmup is how long the SDS011 fan runs before readings settle.
const DefaultWarmup = 15 * time.Second

type Device interface {
	Wake(ctx context.Context, awake bool) error
	SetQueryMode(ctx context.Context) error
}

// Warmup wakes the device, switches it to query mode and waits for the
// readings to settle.
func Warmup(ctx context.Context, d Device, clock wallclock.Clock, wait time.Duration) error {
	if err := d.Wake(ctx, true); err != nil {
		return fmt.Errorf("wake sensor: %w", err)
	}
	if err := d.SetQueryMode(ctx); err != nil {
		return fmt.Errorf("set query mode: %w", err)
	}

	select {
	case <-clock.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
