package entity

import (
	"errors"
	"fmt"
)

var ErrLogFinalized = errors.New("measurement log already finalized")

// ConfigError reports an interval name outside the static interval table.
type ConfigError struct {
	Interval string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: unknown interval %q (want one of %v)", e.Interval, IntervalNames())
}
