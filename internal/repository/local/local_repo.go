package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Spool keeps logs on disk. A log is written to the pending directory and
// moved to the published directory once the remote store has it. Keys are
// "<interval>/<filename>" and map to the same relative path on disk.
type Spool struct {
	pendingDir   string
	publishedDir string
}

func NewSpool(pendingDir, publishedDir string) (*Spool, error) {
	for _, dir := range []string{pendingDir, publishedDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create spool dir %s: %w", dir, err)
		}
	}
	return &Spool{
		pendingDir:   pendingDir,
		publishedDir: publishedDir,
	}, nil
}

func (s *Spool) Stage(_ context.Context, key string, data []byte) error {
	path, err := s.path(s.pendingDir, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", key, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to stage %s: %w", key, err)
	}
	return nil
}

func (s *Spool) Publish(_ context.Context, key string) error {
	from, err := s.path(s.pendingDir, key)
	if err != nil {
		return err
	}
	to, err := s.path(s.publishedDir, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", key, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

// ListPending returns the keys of every staged log not yet published.
func (s *Spool) ListPending(_ context.Context) ([]string, error) {
	return s.list(s.pendingDir)
}

func (s *Spool) ReadPending(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(s.pendingDir, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *Spool) list(root string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) == ".tmp" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Spool) path(root, key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("invalid spool key %q", key)
	}
	return filepath.Join(root, filepath.FromSlash(key)), nil
}
