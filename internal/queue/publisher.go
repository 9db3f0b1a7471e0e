package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends ReservationEvents to RabbitMQ from a single background
// goroutine.  Publish never blocks the caller: events are buffered and
// dropped when the buffer is full or the publisher is closed.  Broker
// outages are handled with the same reconnect-with-backoff loop the
// consumer uses; an event that failed to send is retried on the next
// connection.
type Publisher struct {
	url    string
	queue  string
	events chan ReservationEvent
	log    *log.Logger

	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewPublisher returns a publisher for queueName at url holding up to
// buffer pending events.  Call Start to begin sending.
func NewPublisher(url, queueName string, buffer int, logger *log.Logger) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = log.New("events")
	}
	return &Publisher{
		url:    url,
		queue:  queueName,
		events: make(chan ReservationEvent, buffer),
		log:    logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Publish queues ev for delivery.  It reports false when the event was
// dropped.
func (p *Publisher) Publish(ev ReservationEvent) bool {
	select {
	case <-p.stop:
		p.dropped.Add(1)
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	default:
		p.dropped.Add(1)
		p.log.Warnf("event buffer full, dropped %s for %s", ev.Type, ev.ReservationID)
		return false
	}
}

// Dropped returns how many events were never handed to the broker.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Start runs the send loop until ctx is done or Close is called.
func (p *Publisher) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

// Close stops accepting events, sends what is already buffered if the
// broker is reachable, and waits for the send loop to exit or ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.stop) })
	if !p.started.Load() {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	var pending *ReservationEvent
	backoff := time.Second
	for {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			p.log.Warnf("failed to dial broker: %v; retrying in %s", err, backoff)
			if !p.wait(ctx, backoff) {
				p.abandon(pending)
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		pending, err = p.session(ctx, conn, pending)
		_ = conn.Close()
		if err == nil || p.stopped(ctx) {
			p.abandon(pending)
			return
		}
		p.log.Warnf("publish loop ended: %v; reconnecting", err)
	}
}

func (p *Publisher) session(ctx context.Context, conn *amqp.Connection, pending *ReservationEvent) (*ReservationEvent, error) {
	ch, err := conn.Channel()
	if err != nil {
		return pending, fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return pending, fmt.Errorf("queue declare: %w", err)
	}
	return p.pump(ctx, ch, pending)
}

// pump sends events until the publisher stops.  On a send error it returns
// the unsent event so the next session can retry it.
func (p *Publisher) pump(ctx context.Context, ch channel, pending *ReservationEvent) (*ReservationEvent, error) {
	if pending != nil {
		if err := p.send(ctx, ch, *pending); err != nil {
			return pending, err
		}
	}
	for {
		select {
		case ev := <-p.events:
			if err := p.send(ctx, ch, ev); err != nil {
				return &ev, err
			}
		case <-p.stop:
			for {
				select {
				case ev := <-p.events:
					if err := p.send(ctx, ch, ev); err != nil {
						return &ev, err
					}
				default:
					return nil, nil
				}
			}
		case <-ctx.Done():
			return nil, nil
		}
	}
}

func (p *Publisher) send(ctx context.Context, ch channel, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		// Not retryable; drop it rather than wedge the loop.
		p.dropped.Add(1)
		p.log.Errorf("marshal %s failed: %v", ev.Type, err)
		return nil
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		MessageId:    fmt.Sprintf("%s:%d", ev.ReservationID, ev.Version),
		Body:         body,
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(sendCtx, "", p.queue, false, false, pub)
}

func (p *Publisher) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Publisher) stopped(ctx context.Context) bool {
	select {
	case <-p.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// abandon counts the events that will never be sent.
func (p *Publisher) abandon(pending *ReservationEvent) {
	n := len(p.events)
	if pending != nil {
		n++
	}
	if n > 0 {
		p.dropped.Add(uint64(n))
		p.log.Warnf("publisher stopped with %d unsent events", n)
	}
}
