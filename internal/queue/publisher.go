package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

// Publish sends item and waits for the broker to confirm it. The message is
// routed to the work queue directly or, when delay > 0, to the delay queue
// with a per-message expiration.
func (p *RabbitMQPublisher) Publish(ctx context.Context, item WorkItem, delay time.Duration) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid work item: %w", err)
	}

	publishing, queue, err := buildPublishing(item, delay, p.now().UTC())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirm on queue %q: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message for queue %q", queue)
	}

	return nil
}

func buildPublishing(item WorkItem, delay time.Duration, now time.Time) (amqp.Publishing, string, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return amqp.Publishing{}, "", fmt.Errorf("failed to marshal work item: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     item.MessageID(),
		CorrelationId: item.NotificationID,
		Body:          payload,
	}

	queue := QueueName(item.Channel)
	if delay > 0 {
		queue = DelayQueueName(item.Channel)
		publishing.Expiration = expiration(delay)
	}

	return publishing, queue, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
