// Package broker moves background jobs over RabbitMQ as an alternative to
// the Redis stream queue.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"gobarber/pkg/queue"
)

// Config describes the broker connection and the durable work queue.
type Config struct {
	URL      string
	Queue    string
	Prefetch int
}

// Handler processes one delivery. Errors wrapping queue.ErrMalformedJob drop
// the message; other errors requeue it once.
type Handler func(ctx context.Context, kind string, body []byte) error

// RabbitMQ publishes to and consumes from a single durable queue.
type RabbitMQ struct {
	conn     *amqp.Connection
	queue    string
	prefetch int

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects and declares the queue.
func Dial(cfg Config) (*RabbitMQ, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("rabbitmq url required")
	}
	name := strings.TrimSpace(cfg.Queue)
	if name == "" {
		return nil, errors.New("rabbitmq queue required")
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &RabbitMQ{conn: conn, queue: name, prefetch: prefetch, ch: ch}, nil
}

// Publish sends a persistent JSON message tagged with kind.
func (r *RabbitMQ) Publish(ctx context.Context, kind string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.PublishWithContext(ctx, "", r.queue, false, false, publishing(kind, body, time.Now())); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// Consume delivers messages to handler on a dedicated channel until ctx is
// done or the connection drops.
func (r *RabbitMQ) Consume(ctx context.Context, consumer string, handler Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, r.queue, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			err := handler(ctx, d.Type, d.Body)
			switch settle(err, d.Redelivered) {
			case actionAck:
				_ = d.Ack(false)
			case actionRequeue:
				_ = d.Nack(false, true)
			default:
				_ = d.Nack(false, false)
			}
		}
	}
}

// Close shuts down the channel and connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.ch.Close()
	return r.conn.Close()
}

type action int

const (
	actionAck action = iota
	actionRequeue
	actionDrop
)

func settle(err error, redelivered bool) action {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, queue.ErrMalformedJob), redelivered:
		return actionDrop
	default:
		return actionRequeue
	}
}

func publishing(kind string, body []byte, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         kind,
		Timestamp:    now.UTC(),
		Body:         body,
	}
}
