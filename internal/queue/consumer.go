package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sink receives every consumed event.
type Sink interface {
	Handle(ctx context.Context, ev ReservationEvent) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev ReservationEvent) error

func (f SinkFunc) Handle(ctx context.Context, ev ReservationEvent) error { return f(ctx, ev) }

// ConsumerConfig describes where events are read from.
type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// StartConsumer connects to RabbitMQ, declares the durable event queue and
// hands every message to the sinks in order.  It keeps reconnecting with
// backoff when the broker goes away and only returns, with ctx's error,
// once ctx is done.  A message is acked when every sink accepted it and
// rejected without requeue otherwise, so one bad message cannot wedge the
// queue.
func StartConsumer(ctx context.Context, cfg ConsumerConfig, logger *log.Logger, sinks ...Sink) error {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueueName
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if logger == nil {
		logger = log.New("event-consumer")
	}

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			logger.Warnf("failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg, logger, sinks)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, logger *log.Logger, sinks []Sink) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		logger.Warnf("set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Infof("listening on queue %s", cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, sinks); err != nil {
				logger.Errorf("handle message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, sinks []Sink) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == "" {
		return fmt.Errorf("incomplete event: %q", body)
	}
	for _, s := range sinks {
		if err := s.Handle(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
