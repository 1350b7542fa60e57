package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/wallclock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) PutLog(_ context.Context, key string, data []byte) error {
	return m.Called(key, data).Error(0)
}

type memSpool struct {
	mu        sync.Mutex
	pending   map[string][]byte
	published map[string][]byte
}

func newMemSpool() *memSpool {
	return &memSpool{pending: map[string][]byte{}, published: map[string][]byte{}}
}

func (s *memSpool) Stage(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = data
	return nil
}

func (s *memSpool) Publish(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pending[key]
	if !ok {
		return errors.New("not pending")
	}
	delete(s.pending, key)
	s.published[key] = data
	return nil
}

func (s *memSpool) ListPending(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memSpool) ReadPending(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[key], nil
}

type cycleLedger struct {
	created []entity.WindowCycle
	updated map[string]entity.CycleStatus
}

func (c *cycleLedger) CreateCycle(_ context.Context, cycle *entity.WindowCycle) error {
	c.created = append(c.created, *cycle)
	return nil
}

func (c *cycleLedger) UpdateCycleStatus(_ context.Context, key string, status entity.CycleStatus, _ time.Time) error {
	if c.updated == nil {
		c.updated = map[string]entity.CycleStatus{}
	}
	c.updated[key] = status
	return nil
}

func (c *cycleLedger) GetCycle(_ context.Context, key string) (*entity.WindowCycle, error) {
	for _, cycle := range c.created {
		if cycle.ObjectKey == key {
			if status, ok := c.updated[key]; ok {
				cycle.Status = status
			}
			return &cycle, nil
		}
	}
	return nil, errors.New("cycle not found")
}

type capturePublisher struct {
	bodies []json.RawMessage
}

func (p *capturePublisher) Publish(_ context.Context, body json.RawMessage) error {
	p.bodies = append(p.bodies, body)
	return nil
}

func finalizedLog(t *testing.T, interval string, readings int) *entity.FinalizedLog {
	t.Helper()
	l := entity.NewMeasurementLog(interval, epoch, readings)
	for i := 0; i < readings; i++ {
		require.NoError(t, l.Append(entity.Reading{Fine: 1, Coarse: 2, Timestamp: epoch.Add(time.Duration(i) * time.Minute)}))
	}
	fl, err := l.Finalize()
	require.NoError(t, err)
	return fl
}

func newTestShipper(remote RemoteStore, spool Spool, cycles CycleRepo, pub Publisher) (*LogShipper, *wallclock.Fake) {
	s := NewLogShipper(remote, spool, cycles, pub, quietLog)
	clock := wallclock.NewFake(epoch)
	s.Clock = clock
	return s, clock
}

func TestShipperUploadsAndPublishes(t *testing.T) {
	fl := finalizedLog(t, entity.Hourly, 3)
	remote := new(mockRemote)
	remote.On("PutLog", fl.Key(), fl.Bytes()).Return(nil)
	spool := newMemSpool()
	ledger := &cycleLedger{}
	pub := &capturePublisher{}

	s, _ := newTestShipper(remote, spool, ledger, pub)
	require.NoError(t, s.Upload(background, entity.Hourly, fl.Filename(), fl))

	remote.AssertNumberOfCalls(t, "PutLog", 1)
	assert.Empty(t, spool.pending)
	assert.Contains(t, spool.published, "hourly/Sat Oct 17 09:00:00 2026.csv")

	require.Len(t, ledger.created, 1)
	assert.Equal(t, entity.CycleShipped, ledger.created[0].Status)
	assert.Equal(t, 3, ledger.created[0].Readings)
	assert.NotEmpty(t, ledger.created[0].CycleID)

	require.Len(t, pub.bodies, 1)
	var msg entity.CycleCompletedMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, fl.Key(), msg.ObjectKey)
	assert.Equal(t, entity.Hourly, msg.Interval)
}

func TestShipperRetriesThenSpools(t *testing.T) {
	fl := finalizedLog(t, entity.Daily, 1)
	remote := new(mockRemote)
	remote.On("PutLog", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	spool := newMemSpool()
	ledger := &cycleLedger{}
	pub := &capturePublisher{}

	s, clock := newTestShipper(remote, spool, ledger, pub)
	require.NoError(t, s.Upload(background, entity.Daily, fl.Filename(), fl))

	remote.AssertNumberOfCalls(t, "PutLog", 3)
	assert.Equal(t, 6*time.Second, clock.Slept())
	assert.Contains(t, spool.pending, fl.Key())
	require.Len(t, ledger.created, 1)
	assert.Equal(t, entity.CyclePending, ledger.created[0].Status)
	assert.Empty(t, pub.bodies)
}

func TestShipperWithoutSpoolReturnsUploadError(t *testing.T) {
	fl := finalizedLog(t, entity.Hourly, 1)
	errDown := errors.New("connection refused")
	remote := new(mockRemote)
	remote.On("PutLog", mock.Anything, mock.Anything).Return(errDown)

	s, _ := newTestShipper(remote, nil, nil, nil)
	err := s.Upload(background, entity.Hourly, fl.Filename(), fl)

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, entity.Hourly, upErr.Interval)
	assert.ErrorIs(t, err, errDown)
}

func TestShipperRecover(t *testing.T) {
	spool := newMemSpool()
	require.NoError(t, spool.Stage(background, "weekly/a.csv", []byte("PM2.5,1,x\n")))
	require.NoError(t, spool.Stage(background, "weekly/b.csv", []byte("PM2.5,2,x\n")))

	remote := new(mockRemote)
	remote.On("PutLog", "weekly/a.csv", mock.Anything).Return(nil)
	remote.On("PutLog", "weekly/b.csv", mock.Anything).Return(errors.New("still down"))
	ledger := &cycleLedger{}
	pub := &capturePublisher{}

	s, _ := newTestShipper(remote, spool, ledger, pub)
	err := s.Recover(background)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly/b.csv")
	assert.Contains(t, spool.published, "weekly/a.csv")
	assert.Contains(t, spool.pending, "weekly/b.csv")
	assert.Equal(t, entity.CycleShipped, ledger.updated["weekly/a.csv"])
	require.Len(t, pub.bodies, 1)
}

// heldRemote blocks the first put of hold until release is closed.
type heldRemote struct {
	hold    string
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	puts map[string]int
}

func newHeldRemote(hold string) *heldRemote {
	return &heldRemote{
		hold:    hold,
		started: make(chan struct{}),
		release: make(chan struct{}),
		puts:    map[string]int{},
	}
}

func (r *heldRemote) PutLog(_ context.Context, key string, _ []byte) error {
	r.mu.Lock()
	r.puts[key]++
	first := r.puts[key] == 1
	r.mu.Unlock()

	if key == r.hold && first {
		close(r.started)
		<-r.release
	}
	return nil
}

func (r *heldRemote) Puts(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.puts[key]
}

func TestRecoverSkipsLogBeingUploaded(t *testing.T) {
	fl := finalizedLog(t, entity.Hourly, 2)
	remote := newHeldRemote(fl.Key())
	spool := newMemSpool()
	pub := &capturePublisher{}
	s, _ := newTestShipper(remote, spool, nil, pub)

	uploaded := make(chan error, 1)
	go func() {
		uploaded <- s.Upload(background, entity.Hourly, fl.Filename(), fl)
	}()
	<-remote.started

	pending, err := spool.ListPending(background)
	require.NoError(t, err)
	require.Equal(t, []string{fl.Key()}, pending)

	require.NoError(t, s.Recover(background))
	assert.Equal(t, 1, remote.Puts(fl.Key()))

	close(remote.release)
	require.NoError(t, <-uploaded)

	assert.Equal(t, 1, remote.Puts(fl.Key()))
	assert.Len(t, pub.bodies, 1)
	assert.Contains(t, spool.published, fl.Key())
}

func TestRecoverEventCarriesLedgerCycle(t *testing.T) {
	spool := newMemSpool()
	require.NoError(t, spool.Stage(background, "daily/a.csv", []byte("PM2.5,1,t\nPM10,2,t\n")))
	ledger := &cycleLedger{created: []entity.WindowCycle{{
		CycleID:   "cycle-a",
		Interval:  entity.Daily,
		ObjectKey: "daily/a.csv",
		Readings:  1440,
		Status:    entity.CyclePending,
		StartedAt: epoch,
	}}}
	remote := new(mockRemote)
	remote.On("PutLog", "daily/a.csv", mock.Anything).Return(nil)
	pub := &capturePublisher{}

	s, _ := newTestShipper(remote, spool, ledger, pub)
	require.NoError(t, s.Recover(background))

	require.Len(t, pub.bodies, 1)
	var msg entity.CycleCompletedMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, "cycle-a", msg.CycleID)
	assert.Equal(t, 1440, msg.Readings)
	assert.Equal(t, entity.Daily, msg.Interval)
}

func TestRecoverEventCountsReadingsWithoutLedger(t *testing.T) {
	spool := newMemSpool()
	require.NoError(t, spool.Stage(background, "hourly/a.csv", []byte("PM2.5,1,t\nPM10,2,t\nPM2.5,3,u\nPM10,4,u\n")))
	remote := new(mockRemote)
	remote.On("PutLog", "hourly/a.csv", mock.Anything).Return(nil)
	pub := &capturePublisher{}

	s, _ := newTestShipper(remote, spool, nil, pub)
	require.NoError(t, s.Recover(background))

	require.Len(t, pub.bodies, 1)
	var msg entity.CycleCompletedMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, 2, msg.Readings)
	assert.Equal(t, "hourly/a.csv", msg.ObjectKey)
}

func TestSplitKey(t *testing.T) {
	interval, filename := splitKey("monthly/Sat Oct 17 09:00:00 2026.csv")
	assert.Equal(t, "monthly", interval)
	assert.Equal(t, "Sat Oct 17 09:00:00 2026.csv", filename)

	interval, filename = splitKey("orphan.csv")
	assert.Empty(t, interval)
	assert.Equal(t, "orphan.csv", filename)
}
