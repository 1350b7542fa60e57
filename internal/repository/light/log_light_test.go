package light

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"airmonitor/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLight_LogsOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogLight(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	require.NoError(t, l.Set(ctx, entity.LightGreen))
	require.NoError(t, l.Set(ctx, entity.LightGreen))
	require.NoError(t, l.Set(ctx, entity.LightRed))

	assert.Equal(t, entity.LightRed, l.State())
	assert.Equal(t, 2, strings.Count(buf.String(), "light changed"))
}
