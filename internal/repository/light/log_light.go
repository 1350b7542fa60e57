package light

import (
	"context"
	"log/slog"
	"sync"

	"airmonitor/internal/domain/entity"
)

// LogLight is a light with no hardware behind it. It logs every state change
// and remembers the current state.
type LogLight struct {
	mu     sync.Mutex
	state  entity.LightState
	logger *slog.Logger
}

func NewLogLight(logger *slog.Logger) *LogLight {
	return &LogLight{logger: logger}
}

func (l *LogLight) Set(ctx context.Context, state entity.LightState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state != l.state {
		l.logger.InfoContext(ctx, "light changed",
			slog.String("from", string(l.state)),
			slog.String("to", string(state)),
		)
	}
	l.state = state
	return nil
}

func (l *LogLight) State() entity.LightState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
