package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"airmonitor/internal/domain/entity"
)

var (
	epoch      = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
	errUnplug  = errors.New("sensor unplugged")
	quietLog   = slog.New(slog.NewTextHandler(io.Discard, nil))
	background = context.Background()
)

// seqReader returns readings with increasing values and fails with failErr
// on read number failAt (1-based). failAt 0 never fails.
type seqReader struct {
	mu      sync.Mutex
	reads   int
	failAt  int
	failErr error
	pause   time.Duration
}

func (r *seqReader) Read(context.Context) (entity.Reading, error) {
	if r.pause > 0 {
		time.Sleep(r.pause)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reads++
	if r.failAt > 0 && r.reads >= r.failAt {
		return entity.Reading{}, r.failErr
	}
	n := float64(r.reads)
	return entity.Reading{Fine: n, Coarse: n + 0.5, Timestamp: epoch.Add(time.Duration(r.reads) * time.Minute)}, nil
}

func (r *seqReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

type upload struct {
	interval  string
	filename  string
	log       *entity.FinalizedLog
	readsSeen int
}

type recordingUploader struct {
	mu      sync.Mutex
	uploads []upload
	reader  *seqReader
	err     error
}

func (u *recordingUploader) Upload(_ context.Context, interval, filename string, l *entity.FinalizedLog) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	seen := 0
	if u.reader != nil {
		seen = u.reader.Reads()
	}
	u.uploads = append(u.uploads, upload{interval: interval, filename: filename, log: l, readsSeen: seen})
	return u.err
}

func (u *recordingUploader) Uploads() []upload {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]upload, len(u.uploads))
	copy(out, u.uploads)
	return out
}

type progressRecorder struct {
	mu     sync.Mutex
	events []entity.Progress
}

func (p *progressRecorder) ObserveProgress(_ context.Context, e entity.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *progressRecorder) Events() []entity.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.Progress, len(p.events))
	copy(out, p.events)
	return out
}
