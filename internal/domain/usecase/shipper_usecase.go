package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/utils"
	"airmonitor/pkg/wallclock"

	"github.com/google/uuid"
)

type RemoteStore interface {
	PutLog(ctx context.Context, key string, data []byte) error
}

// Spool keeps a local copy of every log until the remote store has it.
type Spool interface {
	Stage(ctx context.Context, key string, data []byte) error
	Publish(ctx context.Context, key string) error
	ListPending(ctx context.Context) ([]string, error)
	ReadPending(ctx context.Context, key string) ([]byte, error)
}

type CycleRepo interface {
	CreateCycle(ctx context.Context, cycle *entity.WindowCycle) error
	UpdateCycleStatus(ctx context.Context, objectKey string, status entity.CycleStatus, shippedAt time.Time) error
	GetCycle(ctx context.Context, objectKey string) (*entity.WindowCycle, error)
}

type Publisher interface {
	Publish(ctx context.Context, body json.RawMessage) error
}

// UploadError means a log reached neither the remote store nor the spool.
type UploadError struct {
	Interval string
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Interval, e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// LogShipper is the Uploader used by the monitor. Spool, Cycles and
// Publisher are optional.
type LogShipper struct {
	Remote    RemoteStore
	Spool     Spool
	Cycles    CycleRepo
	Publisher Publisher
	Logger    *slog.Logger
	Clock     wallclock.Clock

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// inflight holds the keys an Upload or Recover is shipping right now.
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewLogShipper(remote RemoteStore, spool Spool, cycles CycleRepo, pub Publisher, logger *slog.Logger) *LogShipper {
	return &LogShipper{
		Remote:      remote,
		Spool:       spool,
		Cycles:      cycles,
		Publisher:   pub,
		Logger:      logger,
		Clock:       wallclock.Real,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (s *LogShipper) Upload(ctx context.Context, interval, filename string, log *entity.FinalizedLog) error {
	key := interval + "/" + filename
	data := log.Bytes()

	if s.begin(key) {
		defer s.done(key)
	}

	staged := false
	if s.Spool != nil {
		if err := s.Spool.Stage(ctx, key, data); err != nil {
			s.Logger.WarnContext(ctx, "spool stage failed", slog.String("key", key), slog.String("error", err.Error()))
		} else {
			staged = true
		}
	}

	cycle := &entity.WindowCycle{
		CycleID:   uuid.New().String(),
		Interval:  interval,
		Filename:  filename,
		ObjectKey: key,
		Readings:  log.Readings(),
		Status:    entity.CyclePending,
		StartedAt: log.StartedAt(),
	}

	if err := s.putWithRetry(ctx, key, data); err != nil {
		if !staged {
			return &UploadError{Interval: interval, Filename: filename, Err: err}
		}
		s.Logger.WarnContext(ctx, "remote upload failed, log kept in spool",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		s.recordCycle(ctx, cycle)
		return nil
	}

	cycle.Status = entity.CycleShipped
	cycle.ShippedAt = s.Clock.Now()
	s.recordCycle(ctx, cycle)
	s.afterShipped(ctx, cycle, staged)
	return nil
}

// Recover ships every log still waiting in the spool. Logs an Upload is
// still retrying are left to it.
func (s *LogShipper) Recover(ctx context.Context) error {
	if s.Spool == nil {
		return nil
	}

	keys, err := s.Spool.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending logs: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if !s.begin(key) {
			s.Logger.DebugContext(ctx, "pending log is being shipped", slog.String("key", key))
			continue
		}
		err := s.recoverOne(ctx, key)
		s.done(key)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *LogShipper) recoverOne(ctx context.Context, key string) error {
	data, err := s.Spool.ReadPending(ctx, key)
	if err != nil {
		return fmt.Errorf("read pending %s: %w", key, err)
	}

	if err := s.putWithRetry(ctx, key, data); err != nil {
		return fmt.Errorf("ship pending %s: %w", key, err)
	}

	interval, filename := splitKey(key)
	cycle := &entity.WindowCycle{
		Interval:  interval,
		Filename:  filename,
		ObjectKey: key,
		Readings:  countReadings(data),
		Status:    entity.CycleShipped,
		ShippedAt: s.Clock.Now(),
	}

	if s.Cycles != nil {
		if err := s.Cycles.UpdateCycleStatus(ctx, key, entity.CycleShipped, cycle.ShippedAt); err != nil {
			s.Logger.WarnContext(ctx, "cycle ledger update failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if recorded, err := s.Cycles.GetCycle(ctx, key); err == nil {
			cycle.CycleID = recorded.CycleID
			cycle.Readings = recorded.Readings
			cycle.StartedAt = recorded.StartedAt
		}
	}

	s.Logger.InfoContext(ctx, "recovered pending log", slog.String("key", key))
	s.afterShipped(ctx, cycle, true)
	return nil
}

// StartRecoveryJob retries the spool every interval until ctx is done.
func (s *LogShipper) StartRecoveryJob(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.Logger.Info("spool recovery job stopped")
				return
			case <-ticker.C:
				if err := s.Recover(ctx); err != nil {
					s.Logger.ErrorContext(ctx, "spool recovery failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

func (s *LogShipper) afterShipped(ctx context.Context, cycle *entity.WindowCycle, staged bool) {
	if staged {
		if err := s.Spool.Publish(ctx, cycle.ObjectKey); err != nil {
			s.Logger.WarnContext(ctx, "spool publish failed", slog.String("key", cycle.ObjectKey), slog.String("error", err.Error()))
		}
	}

	if s.Publisher == nil {
		return
	}

	msg, err := utils.ToRawMessage(entity.CycleCompletedMessage{
		CycleID:   cycle.CycleID,
		Interval:  cycle.Interval,
		ObjectKey: cycle.ObjectKey,
		Readings:  cycle.Readings,
		ShippedAt: cycle.ShippedAt,
	})
	if err != nil {
		s.Logger.WarnContext(ctx, "encode cycle event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.Publisher.Publish(ctx, msg); err != nil {
		s.Logger.WarnContext(ctx, "publish cycle event failed", slog.String("key", cycle.ObjectKey), slog.String("error", err.Error()))
	}
}

func (s *LogShipper) recordCycle(ctx context.Context, cycle *entity.WindowCycle) {
	if s.Cycles == nil {
		return
	}
	if err := s.Cycles.CreateCycle(ctx, cycle); err != nil {
		s.Logger.WarnContext(ctx, "cycle ledger write failed", slog.String("key", cycle.ObjectKey), slog.String("error", err.Error()))
	}
}

func (s *LogShipper) putWithRetry(ctx context.Context, key string, data []byte) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.Remote.PutLog(ctx, key, data); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		backoff := s.BaseDelay << (attempt - 1)
		if backoff > s.MaxDelay {
			backoff = s.MaxDelay
		}

		select {
		case <-s.Clock.After(backoff):
		case <-ctx.Done():
			return errors.New("upload canceled by context")
		}
	}

	return lastErr
}

func (s *LogShipper) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight == nil {
		s.inflight = make(map[string]struct{})
	}
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *LogShipper) done(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// countReadings counts the reading pairs in an encoded log. It is only used
// when no ledger remembers the cycle.
func countReadings(data []byte) int {
	rows := 0
	_ = utils.ReadCSV(bytes.NewReader(data), func(int, []string) error {
		rows++
		return nil
	})
	return rows / 2
}

func splitKey(key string) (interval, filename string) {
	interval, filename, ok := strings.Cut(key, "/")
	if !ok {
		return "", key
	}
	return interval, filename
}
