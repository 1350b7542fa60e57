package entity

import (
	"fmt"
	"time"

	"airmonitor/pkg/utils"
)

// MeasurementLog accumulates the rows of one window cycle. It belongs to a
// single aggregator until Finalize hands out an immutable FinalizedLog.
type MeasurementLog struct {
	interval  string
	startedAt time.Time
	rows      []Row
	finalized bool
}

func NewMeasurementLog(interval string, startedAt time.Time, capacity int) *MeasurementLog {
	return &MeasurementLog{
		interval:  interval,
		startedAt: startedAt,
		rows:      make([]Row, 0, 2*capacity),
	}
}

// LogFilename derives the external filename of a cycle from its start time.
func LogFilename(startedAt time.Time) string {
	return startedAt.Format(TimestampLayout) + ".csv"
}

func (l *MeasurementLog) Filename() string {
	return LogFilename(l.startedAt)
}

func (l *MeasurementLog) Append(r Reading) error {
	if l.finalized {
		return ErrLogFinalized
	}
	rows := r.Rows()
	l.rows = append(l.rows, rows[0], rows[1])
	return nil
}

// Finalize closes the log and encodes it. The builder rejects any further
// Append or Finalize.
func (l *MeasurementLog) Finalize() (*FinalizedLog, error) {
	if l.finalized {
		return nil, ErrLogFinalized
	}

	records := make([][]string, 0, len(l.rows))
	for _, row := range l.rows {
		records = append(records, []string{row.Pollutant, utils.FormatFloat(row.Value), row.Timestamp})
	}
	data, err := utils.WriteCSV(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s log: %w", l.interval, err)
	}

	l.finalized = true
	fl := &FinalizedLog{
		interval:  l.interval,
		filename:  l.Filename(),
		startedAt: l.startedAt,
		rows:      l.rows,
		data:      data,
	}
	l.rows = nil
	return fl, nil
}

// FinalizedLog is the closed, encoded content of one window cycle.
type FinalizedLog struct {
	interval  string
	filename  string
	startedAt time.Time
	rows      []Row
	data      []byte
}

func (f *FinalizedLog) Interval() string     { return f.interval }
func (f *FinalizedLog) Filename() string     { return f.filename }
func (f *FinalizedLog) StartedAt() time.Time { return f.startedAt }
func (f *FinalizedLog) Readings() int        { return len(f.rows) / 2 }
func (f *FinalizedLog) Size() int            { return len(f.data) }

// Key is the storage path of the log, namespaced by interval.
func (f *FinalizedLog) Key() string {
	return f.interval + "/" + f.filename
}

func (f *FinalizedLog) Rows() []Row {
	out := make([]Row, len(f.rows))
	copy(out, f.rows)
	return out
}

func (f *FinalizedLog) Bytes() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}
