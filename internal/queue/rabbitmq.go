package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kursadbilgin/notifier/internal/domain"
)

const (
	readyExchangeName = "notifier.ready"
	dlxExchangeName   = "notifier.dlx"
	connectionName    = "notifier"
	reconnectBackoff  = time.Second
	maxBackoff        = 30 * time.Second
	dialTimeout       = 15 * time.Second
	heartbeat         = 10 * time.Second
)

// RabbitMQ owns one broker connection shared by publishers and consumers.
// Every caller opens its own AMQP channel on it; the connection is redialled
// transparently after it drops and the topology is re-declared on the new one.
type RabbitMQ struct {
	url  string
	dial func(url string) (*amqp.Connection, error)

	mu       sync.RWMutex
	dialMu   sync.Mutex
	conn     *amqp.Connection
	declared bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, dial: dialNamed}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func dialNamed(url string) (*amqp.Connection, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// Ping reports whether the broker connection is currently open.
func (r *RabbitMQ) Ping(context.Context) error {
	if r == nil {
		return fmt.Errorf("rabbitmq client is not initialized")
	}
	if conn := r.current(); conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

// channel opens an AMQP channel with the notifier topology in place. A
// failure to open one on a live connection is treated as a dead connection
// and triggers one redial.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		r.drop(conn)
		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := r.ensureTopology(conn, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func (r *RabbitMQ) ensureTopology(conn *amqp.Connection, ch *amqp.Channel) error {
	r.mu.RLock()
	done := r.declared && r.conn == conn
	r.mu.RUnlock()
	if done {
		return nil
	}

	if err := declareTopology(ch); err != nil {
		return err
	}

	r.mu.Lock()
	if r.conn == conn {
		r.declared = true
	}
	r.mu.Unlock()
	return nil
}

// drop forgets conn if it is still the current connection.
func (r *RabbitMQ) drop(conn *amqp.Connection) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
		r.declared = false
	}
	r.mu.Unlock()
	_ = conn.Close()
}

// connection returns the open connection, dialling with exponential backoff
// until one is established or ctx ends.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	if conn := r.current(); conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	if conn := r.current(); conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	wait := reconnectBackoff
	for {
		conn, err := r.dial(r.url)
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.declared = false
			r.mu.Unlock()
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq connect canceled (last error: %v): %w", err, ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

// declareTopology declares, per channel, the work queue, its delay queue and
// its poison queue. Expired delay messages are dead-lettered through the
// ready exchange into the work queue; rejected work messages land in the
// poison queue through the dlx exchange.
func declareTopology(ch *amqp.Channel) error {
	for _, exchange := range []string{readyExchangeName, dlxExchangeName} {
		if err := ch.ExchangeDeclare(
			exchange,
			"direct",
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
		}
	}

	for _, channel := range domain.Channels() {
		routingKey := channelRoutingKey(channel)

		dlqName := DLQName(channel)
		if _, err := ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", dlqName, err)
		}
		if err := ch.QueueBind(dlqName, routingKey, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", dlqName, err)
		}

		queueName := QueueName(channel)
		if _, err := ch.QueueDeclare(
			queueName,
			true,
			false,
			false,
			false,
			amqp.Table{
				"x-dead-letter-exchange":    dlxExchangeName,
				"x-dead-letter-routing-key": routingKey,
			},
		); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", queueName, err)
		}
		if err := ch.QueueBind(queueName, routingKey, readyExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", queueName, err)
		}

		delayName := DelayQueueName(channel)
		if _, err := ch.QueueDeclare(
			delayName,
			true,
			false,
			false,
			false,
			amqp.Table{
				"x-dead-letter-exchange":    readyExchangeName,
				"x-dead-letter-routing-key": routingKey,
			},
		); err != nil {
			return fmt.Errorf("failed to declare delay queue %q: %w", delayName, err)
		}
	}

	return nil
}

func channelRoutingKey(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}
