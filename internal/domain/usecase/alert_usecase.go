package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/utils"
)

type LogSource interface {
	ListLogs(ctx context.Context) ([]string, error)
	GetLogReader(ctx context.Context, key string) (io.ReadCloser, error)
}

// SeenStore remembers which logs were already scanned. Claim is atomic so
// concurrent scans never evaluate the same log twice.
type SeenStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	ListSeen(ctx context.Context) ([]string, error)
}

// AlertRepo records violations. Saving the same log row twice keeps one
// record.
type AlertRepo interface {
	SaveAlerts(ctx context.Context, alerts []entity.AlertRecord) error
	ListAlerts(ctx context.Context, limit int) ([]entity.AlertRecord, error)
}

type AlertUseCase struct {
	Logs   LogSource
	Seen   SeenStore
	Alerts AlertRepo
	Logger *slog.Logger
}

func NewAlertUseCase(logs LogSource, seen SeenStore, alerts AlertRepo, logger *slog.Logger) *AlertUseCase {
	return &AlertUseCase{
		Logs:   logs,
		Seen:   seen,
		Alerts: alerts,
		Logger: logger,
	}
}

// Scan evaluates every log not scanned before. The returned result belongs to
// this call only. A log that cannot be read is released for the next scan and
// listed in FailedFiles.
func (u *AlertUseCase) Scan(ctx context.Context) (*entity.ScanResult, error) {
	keys, err := u.Logs.ListLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}

	result := &entity.ScanResult{NewFiles: []string{}}
	for _, key := range keys {
		claimed, err := u.Seen.Claim(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", key, err)
		}
		if !claimed {
			result.PrevFilesSkipped = true
			continue
		}

		eval, err := u.evaluate(ctx, key)
		if err != nil {
			u.Logger.ErrorContext(ctx, "scan log failed", slog.String("key", key), slog.String("error", err.Error()))
			if rerr := u.Seen.Release(ctx, key); rerr != nil {
				u.Logger.WarnContext(ctx, "release seen log failed", slog.String("key", key), slog.String("error", rerr.Error()))
			}
			result.FailedFiles = append(result.FailedFiles, key)
			continue
		}

		for _, v := range eval.Violations {
			result.Alert = true
			result.Pollutant = v.Pollutant
			result.Value = v.Value
			result.Time = v.Time
		}
		result.Violations = append(result.Violations, eval.Violations...)
		result.NewFiles = append(result.NewFiles, key)
	}

	seen, err := u.Seen.ListSeen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list seen logs: %w", err)
	}
	sort.Strings(seen)
	result.FilesSeen = seen

	return result, nil
}

// HandleCycleCompleted evaluates a log as soon as the monitor announces it.
// The log is not marked as seen, so the next endpoint scan still reports it.
func (u *AlertUseCase) HandleCycleCompleted(ctx context.Context, msg *entity.CycleCompletedMessage) error {
	u.Logger.InfoContext(ctx, "cycle completed",
		slog.String("interval", msg.Interval),
		slog.String("key", msg.ObjectKey),
	)

	_, err := u.evaluate(ctx, msg.ObjectKey)
	return err
}

// History returns the most recent recorded violations, newest first.
func (u *AlertUseCase) History(ctx context.Context, limit int) ([]entity.AlertRecord, error) {
	if u.Alerts == nil {
		return []entity.AlertRecord{}, nil
	}
	return u.Alerts.ListAlerts(ctx, limit)
}

func (u *AlertUseCase) evaluate(ctx context.Context, key string) (entity.LogEvaluation, error) {
	rc, err := u.Logs.GetLogReader(ctx, key)
	if err != nil {
		return entity.LogEvaluation{}, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()

	eval, err := EvaluateLog(key, rc)
	if err != nil {
		return entity.LogEvaluation{}, fmt.Errorf("evaluate %s: %w", key, err)
	}

	for _, line := range eval.MalformedLines {
		u.Logger.ErrorContext(ctx, fmt.Sprintf("ERROR Unexpected value found on line %d", line), slog.String("key", key))
	}
	for _, v := range eval.Violations {
		u.Logger.WarnContext(ctx, fmt.Sprintf("Alert at %s for %s measured at %v", v.Time, v.Pollutant, v.Value),
			slog.String("key", key),
		)
	}
	u.Logger.InfoContext(ctx, "scanned log",
		slog.String("key", key),
		slog.Int("rows", eval.Rows),
		slog.Int("violations", len(eval.Violations)),
	)

	u.saveAlerts(ctx, eval.Violations)
	return eval, nil
}

func (u *AlertUseCase) saveAlerts(ctx context.Context, violations []entity.Violation) {
	if u.Alerts == nil || len(violations) == 0 {
		return
	}

	records := make([]entity.AlertRecord, 0, len(violations))
	for _, v := range violations {
		records = append(records, entity.AlertRecord{
			ObjectKey: v.ObjectKey,
			Line:      v.Line,
			Pollutant: v.Pollutant,
			Value:     v.Value,
			Time:      v.Time,
		})
	}
	if err := u.Alerts.SaveAlerts(ctx, records); err != nil {
		u.Logger.WarnContext(ctx, "save alerts failed", slog.String("error", err.Error()))
	}
}

// EvaluateLog is a linear pass over a measurement log flagging every row at
// or above its pollutant's alert threshold.
func EvaluateLog(key string, r io.Reader) (entity.LogEvaluation, error) {
	var eval entity.LogEvaluation

	err := utils.ReadCSV(r, func(line int, record []string) error {
		eval.Rows++

		if len(record) < 3 {
			eval.MalformedLines = append(eval.MalformedLines, line)
			return nil
		}
		pollutant := record[0]
		if pollutant != entity.PollutantFine && pollutant != entity.PollutantCoarse {
			eval.MalformedLines = append(eval.MalformedLines, line)
			return nil
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			eval.MalformedLines = append(eval.MalformedLines, line)
			return nil
		}

		row := entity.Row{Pollutant: pollutant, Value: value, Timestamp: record[2]}
		if row.ExceedsAlert() {
			eval.Violations = append(eval.Violations, entity.Violation{
				ObjectKey: key,
				Line:      line,
				Pollutant: row.Pollutant,
				Value:     row.Value,
				Time:      row.Timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return entity.LogEvaluation{}, err
	}

	return eval, nil
}
