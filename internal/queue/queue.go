package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/notifier/internal/domain"
)

// Publisher enqueues units of work. A zero delay targets the channel work
// queue; a positive delay parks the message in the channel delay queue first.
type Publisher interface {
	Publish(ctx context.Context, item WorkItem, delay time.Duration) error
	Close() error
}

// MessageHandler handles a consumed unit of work. A non-nil error means the
// message could not be handled and must be redelivered.
type MessageHandler func(ctx context.Context, item WorkItem) error

// Consumer consumes units of work from the work queue of one channel.
type Consumer interface {
	Consume(ctx context.Context, channel domain.Channel, handler MessageHandler) error
	Close() error
}

// QueueName returns the channel work queue name, e.g. sms.
func QueueName(channel domain.Channel) string {
	return channel.String()
}

// DelayQueueName returns the channel delay queue name, e.g. delay.sms.
func DelayQueueName(channel domain.Channel) string {
	return fmt.Sprintf("delay.%s", QueueName(channel))
}

// DLQName returns the poison queue name for a channel, e.g. dlq.sms.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns every channel work queue.
func WorkQueueNames() []string {
	return queueNames(QueueName)
}

// DelayQueueNames returns every channel delay queue.
func DelayQueueNames() []string {
	return queueNames(DelayQueueName)
}

// DLQNames returns every channel poison queue.
func DLQNames() []string {
	return queueNames(DLQName)
}

func queueNames(name func(domain.Channel) string) []string {
	channels := domain.Channels()
	queues := make([]string, 0, len(channels))
	for _, channel := range channels {
		queues = append(queues, name(channel))
	}
	return queues
}

// expiration renders delay as a RabbitMQ per-message TTL in milliseconds.
func expiration(delay time.Duration) string {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
