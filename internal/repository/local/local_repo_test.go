package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "hourly/Sat Oct 17 09:00:00 2026.csv"

func setupSpool(t *testing.T) (s *Spool, pendingDir, publishedDir string) {
	t.Helper()

	root := t.TempDir()
	pendingDir = filepath.Join(root, "pending")
	publishedDir = filepath.Join(root, "published")

	s, err := NewSpool(pendingDir, publishedDir)
	require.NoError(t, err)
	return s, pendingDir, publishedDir
}

func TestSpool_StageAndRead(t *testing.T) {
	s, pendingDir, _ := setupSpool(t)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, key, []byte("PM2.5,1,t\n")))

	content, err := os.ReadFile(filepath.Join(pendingDir, "hourly", "Sat Oct 17 09:00:00 2026.csv"))
	require.NoError(t, err)
	assert.Equal(t, "PM2.5,1,t\n", string(content))

	data, err := s.ReadPending(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, pending)
}

func TestSpool_Publish(t *testing.T) {
	s, _, publishedDir := setupSpool(t)
	ctx := context.Background()

	require.NoError(t, s.Stage(ctx, key, []byte("x")))
	require.NoError(t, s.Publish(ctx, key))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.FileExists(t, filepath.Join(publishedDir, "hourly", "Sat Oct 17 09:00:00 2026.csv"))

	_, err = s.ReadPending(ctx, key)
	assert.Error(t, err)
}

func TestSpool_PublishMissing(t *testing.T) {
	s, _, _ := setupSpool(t)
	assert.Error(t, s.Publish(context.Background(), "daily/missing.csv"))
}

func TestSpool_ListIsSorted(t *testing.T) {
	s, _, _ := setupSpool(t)
	ctx := context.Background()

	for _, k := range []string{"weekly/b.csv", "daily/z.csv", "weekly/a.csv"} {
		require.NoError(t, s.Stage(ctx, k, []byte(k)))
	}

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily/z.csv", "weekly/a.csv", "weekly/b.csv"}, pending)
}

func TestSpool_RejectsEscapingKeys(t *testing.T) {
	s, _, _ := setupSpool(t)
	ctx := context.Background()

	for _, k := range []string{"../evil.csv", "/etc/passwd", ""} {
		assert.Error(t, s.Stage(ctx, k, []byte("x")), k)
	}
}
