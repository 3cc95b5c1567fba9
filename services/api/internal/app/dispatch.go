package app

import (
	"context"
	"encoding/json"
	"fmt"

	"gobarber/pkg/domain"
	"gobarber/pkg/mail"
	"gobarber/pkg/queue"
)

// SyncMailDispatcher renders and sends within the request.
type SyncMailDispatcher struct {
	mailer *mail.Mailer
}

func NewSyncMailDispatcher(m *mail.Mailer) *SyncMailDispatcher {
	return &SyncMailDispatcher{mailer: m}
}

func (d *SyncMailDispatcher) DispatchCancellation(ctx context.Context, c domain.CancellationMail) error {
	return d.mailer.SendCancellation(ctx, c)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, kind string, payload []byte) (queue.Job, error)
}

// QueueMailDispatcher enqueues a job on the Redis stream for the mailer worker.
type QueueMailDispatcher struct {
	queue jobEnqueuer
}

func NewQueueMailDispatcher(q jobEnqueuer) *QueueMailDispatcher {
	return &QueueMailDispatcher{queue: q}
}

func (d *QueueMailDispatcher) DispatchCancellation(ctx context.Context, c domain.CancellationMail) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cancellation mail: %w", err)
	}
	if _, err := d.queue.Enqueue(ctx, mail.JobCancellation, payload); err != nil {
		return fmt.Errorf("enqueue cancellation mail: %w", err)
	}
	return nil
}

type messagePublisher interface {
	Publish(ctx context.Context, kind string, body []byte) error
}

// BrokerMailDispatcher publishes the job to RabbitMQ for the mailer worker.
type BrokerMailDispatcher struct {
	pub messagePublisher
}

func NewBrokerMailDispatcher(p messagePublisher) *BrokerMailDispatcher {
	return &BrokerMailDispatcher{pub: p}
}

func (d *BrokerMailDispatcher) DispatchCancellation(ctx context.Context, c domain.CancellationMail) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cancellation mail: %w", err)
	}
	return d.pub.Publish(ctx, mail.JobCancellation, payload)
}
