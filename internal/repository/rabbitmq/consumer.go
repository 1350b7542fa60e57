package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"airmonitor/internal/domain/entity"
	"airmonitor/pkg/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

type CycleHandler interface {
	HandleCycleCompleted(ctx context.Context, msg *entity.CycleCompletedMessage) error
}

// CycleConsumer feeds cycle-completed events to a handler one at a time.
type CycleConsumer struct {
	channel     *amqp.Channel
	queue       string
	Handler     CycleHandler
	Logger      *slog.Logger
	prefetchCnt int
}

func NewCycleConsumer(conn *amqp.Connection, exchange, routingKey, queue string, h CycleHandler, logger *slog.Logger) (*CycleConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	consumer := &CycleConsumer{
		channel:     ch,
		queue:       queue,
		Handler:     h,
		Logger:      logger,
		prefetchCnt: 1,
	}

	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}

	if err := ch.Qos(consumer.prefetchCnt, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return consumer, nil
}

func (c *CycleConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.Logger.Info("cycle consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.Logger.Warn("rabbitmq channel closed")
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

// handle acks a handled event. Undecodable and failed events are dropped
// without requeue; the next endpoint scan still picks their logs up.
func (c *CycleConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	event, err := utils.DecodeMessage[entity.CycleCompletedMessage](msg.Body)
	if err != nil {
		c.Logger.Error("failed to unmarshal cycle event", slog.String("error", err.Error()))
		_ = msg.Nack(false, false)
		return
	}

	if err := c.Handler.HandleCycleCompleted(ctx, event); err != nil {
		c.Logger.Error("failed to handle cycle event",
			slog.String("key", event.ObjectKey),
			slog.String("error", err.Error()),
		)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func (c *CycleConsumer) Close() error {
	return c.channel.Close()
}
