package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one decoded event.  A returned error requeues the
// message once; a second failure drops it.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// Consumer binds a durable queue to every notification topic and feeds the
// deliveries to a Handler, reconnecting with backoff when the broker goes
// away.
type Consumer struct {
	url      string
	exchange string
	queue    string
	handler  Handler
	log      *zap.Logger
}

func NewConsumer(url, exchange, queue string, h Handler, log *zap.Logger) *Consumer {
	return &Consumer{url: url, exchange: exchange, queue: queue, handler: h, log: log}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dial(c.url, DialTimeout)
		if err != nil {
			c.log.Warn("notify.Consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("notify.Consumer loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, BindingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.Qos(20, 0, false); err != nil {
		c.log.Warn("notify.Consumer set QoS failed", zap.Error(err))
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info("notify.Consumer started", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// acknowledger is the part of amqp.Delivery deliver needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	c.process(ctx, d.Body, d.Redelivered, d)
}

func (c *Consumer) process(ctx context.Context, body []byte, redelivered bool, ack acknowledger) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		c.log.Error("notify.Consumer dropping undecodable message", zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}
	if err := c.handler.Handle(ctx, ev); err != nil {
		c.log.Error("notify.Consumer handle failed",
			zap.String("kind", string(ev.Kind)), zap.Bool("redelivered", redelivered), zap.Error(err))
		_ = ack.Nack(false, !redelivered)
		return
	}
	_ = ack.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
