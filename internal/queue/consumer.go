package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// RabbitMQConsumer delivers work items from the channel work queues to a
// handler, one delivery at a time per Consume call.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
	tagID    string
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
		tagID:    uuid.NewString(),
	}
}

// Consume reads the work queue of channel until ctx is cancelled, reopening
// the AMQP channel with backoff whenever the delivery stream breaks.
func (c *RabbitMQConsumer) Consume(ctx context.Context, channel domain.Channel, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if !channel.IsValid() {
		return fmt.Errorf("invalid channel %q", channel)
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	logger := c.logger.With(zap.String("queue", QueueName(channel)))
	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, channel, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		logger.Warn("consumer interrupted, resubscribing", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, channel domain.Channel, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	queue := QueueName(channel)
	deliveries, err := ch.Consume(
		queue,
		c.consumerTag(channel),
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream for %q closed", queue)
			}
			if err := c.handleDelivery(ctx, channel, d, handler); err != nil {
				return err
			}
		}
	}
}

// consumerTag must be unique per AMQP channel; every Consume call opens its own.
func (c *RabbitMQConsumer) consumerTag(channel domain.Channel) string {
	return fmt.Sprintf("notifier-%s-%s-%s", channel, c.tagID, uuid.NewString()[:8])
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, channel domain.Channel, d amqp.Delivery, handler MessageHandler) error {
	item, err := decodeWorkItem(d.Body, channel)
	if err != nil {
		c.logger.Warn("rejecting undecodable work item",
			zap.Error(err),
			zap.String("queue", QueueName(channel)),
			zap.String("messageId", d.MessageId),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject work item: %w", rejectErr)
		}
		return nil
	}

	if err := handler(ctx, item); err != nil {
		c.logger.Warn("requeueing work item: handler failed",
			zap.Error(err),
			zap.String("notificationId", item.NotificationID),
			zap.Int("attempt", item.Attempt),
			zap.Bool("redelivered", d.Redelivered),
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

// decodeWorkItem parses a delivery body. Intake may publish only the
// notification id; the channel then comes from the queue it was read from.
func decodeWorkItem(body []byte, channel domain.Channel) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return WorkItem{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if item.Channel == "" {
		item.Channel = channel
	}
	if err := item.Validate(); err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
