package sensor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"airmonitor/pkg/client/sds011"

	"github.com/stretchr/testify/assert"
)

// slowPort answers every query request with a PM frame after a fixed
// latency, like a real SDS011 on a 9600 baud line.
type slowPort struct {
	mu      sync.Mutex
	latency time.Duration
	pending bytes.Buffer
}

func (p *slowPort) Write(b []byte) (int, error) {
	time.Sleep(p.latency)

	reply := []byte{0xAA, 0xC0, 32, 0, 79, 0, 0x12, 0x34, 0, 0xAB}
	for _, c := range reply[2:8] {
		reply[8] += c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Write(reply)
	return len(b), nil
}

func (p *slowPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		time.Sleep(time.Millisecond)
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

func TestConcurrentReadersShareOneSensor(t *testing.T) {
	device := sds011.New(&slowPort{latency: 100 * time.Millisecond}, time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	const aggregators = 4
	errs := make([]error, aggregators)
	var wg sync.WaitGroup
	for i := 0; i < aggregators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := NewReader(device, WithLogger(logger))
			reading, err := r.Read(context.Background())
			errs[i] = err
			if err == nil {
				assert.InDelta(t, 3.2, reading.Fine, 1e-9)
				assert.InDelta(t, 7.9, reading.Coarse, 1e-9)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "reader %d", i)
	}
}
