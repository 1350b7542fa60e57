package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"airmonitor/internal/domain/entity"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) HandleCycleCompleted(_ context.Context, msg *entity.CycleCompletedMessage) error {
	return m.Called(msg.ObjectKey).Error(0)
}

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecord) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecord) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *ackRecord) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func newTestConsumer(h CycleHandler) *CycleConsumer {
	return &CycleConsumer{
		Handler: h,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func delivery(body string, ack amqp.Acknowledger) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

func TestCycleConsumer_AcksHandledEvent(t *testing.T) {
	h := new(mockHandler)
	h.On("HandleCycleCompleted", "hourly/a.csv").Return(nil)
	ack := &ackRecord{}

	newTestConsumer(h).handle(context.Background(), delivery(`{"interval":"hourly","object_key":"hourly/a.csv"}`, ack))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	h.AssertExpectations(t)
}

func TestCycleConsumer_DropsFailedEvent(t *testing.T) {
	h := new(mockHandler)
	h.On("HandleCycleCompleted", "hourly/a.csv").Return(errors.New("s3 unreachable"))
	ack := &ackRecord{}

	newTestConsumer(h).handle(context.Background(), delivery(`{"object_key":"hourly/a.csv"}`, ack))

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.False(t, ack.acked)
}

func TestCycleConsumer_DropsUndecodableEvent(t *testing.T) {
	h := new(mockHandler)
	ack := &ackRecord{}

	newTestConsumer(h).handle(context.Background(), delivery(`{"job_id":"x"}`, ack))

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	h.AssertNotCalled(t, "HandleCycleCompleted", mock.Anything)
}
