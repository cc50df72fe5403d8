// Package amqp publishes auth audit events to RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/pkg/metrics"
)

const (
	defaultExchange  = "gecofarm.auth"
	defaultQueueSize = 256
	dialTimeout      = 3 * time.Second
	sendTimeout      = 5 * time.Second
	redialBackoff    = 10 * time.Second
)

var (
	// ErrQueueFull is returned by Publish when the outbound buffer is full.
	ErrQueueFull = errors.New("auth event queue full")

	errPublisherClosed = errors.New("auth event publisher closed")
)

// Publisher sends each event to a durable topic exchange, routed by event
// type. Publish only enqueues; a single goroutine started by Start owns the
// broker connection, dials it lazily and re-dials after it drops. Events are
// best-effort: they are dropped while the broker is unreachable.
type Publisher struct {
	url      string
	exchange string
	log      zerolog.Logger

	queue chan domain.AuthEvent
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	dialTimeout time.Duration
	now         func() time.Time

	// Owned by the run goroutine.
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

func NewPublisher(url, exchange string, log zerolog.Logger) *Publisher {
	if exchange == "" {
		exchange = defaultExchange
	}
	return &Publisher{
		url:         url,
		exchange:    exchange,
		log:         log,
		queue:       make(chan domain.AuthEvent, defaultQueueSize),
		stop:        make(chan struct{}),
		dialTimeout: dialTimeout,
		now:         time.Now,
	}
}

// Start launches the delivery goroutine. It runs until ctx is cancelled or
// Close is called.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Publish enqueues event without waiting on the broker.
func (p *Publisher) Publish(_ context.Context, event domain.AuthEvent) error {
	select {
	case <-p.stop:
		return errPublisherClosed
	default:
	}
	select {
	case p.queue <- event:
		return nil
	default:
		metrics.AuthEventsTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// Close stops the delivery goroutine and releases the broker connection.
// Events still queued are discarded.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	defer p.reset()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case ev := <-p.queue:
			if err := p.send(ctx, ev); err != nil {
				metrics.AuthEventsTotal.WithLabelValues("dropped").Inc()
				p.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("auth event dropped")
				continue
			}
			metrics.AuthEventsTotal.WithLabelValues("published").Inc()
		}
	}
}

func (p *Publisher) send(ctx context.Context, event domain.AuthEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Type:         string(event.Type),
		Body:         body,
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := ch.PublishWithContext(sendCtx, p.exchange, string(event.Type), false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish auth event: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing when there is none. After a
// failed dial it refuses to try again until redialBackoff has passed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if p.now().Before(p.retryAt) {
		return nil, errors.New("rabbitmq unavailable, waiting to redial")
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	p.log.Info().Str("exchange", p.exchange).Msg("connected to rabbitmq")
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.AuthEvent) error { return nil }
