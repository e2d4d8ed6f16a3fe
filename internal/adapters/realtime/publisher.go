package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"communityevents/internal/domain"
)

const (
	// Channel is the Redis pub/sub channel state changes are published on.
	Channel = "events:state_changed"
	// Exchange is the durable fanout exchange used by the AMQP publisher.
	Exchange = "events.state_changed"
)

// StateChanged is the message published after every committed enrollment mutation.
type StateChanged struct {
	EventID string    `json:"event_id"`
	At      time.Time `json:"at"`
}

func encode(eventID string) ([]byte, error) {
	body, err := json.Marshal(StateChanged{EventID: eventID, At: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal state change: %w", err)
	}
	return body, nil
}

type redisPublisherClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type redisPublisher struct {
	client redisPublisherClient
}

// NewRedisPublisher returns a StateChangePublisher on Redis pub/sub.
func NewRedisPublisher(client *redis.Client) domain.StateChangePublisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) PublishStateChanged(ctx context.Context, eventID string) error {
	body, err := encode(eventID)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, Channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes state changes to a fanout exchange over one long-lived channel.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   amqpChannel
}

// NewAMQPPublisher dials url and declares the exchange.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) PublishStateChanged(ctx context.Context, eventID string) error {
	body, err := encode(eventID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, Exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type logPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a StateChangePublisher that only logs at debug level.
func NewLogPublisher(logger *slog.Logger) domain.StateChangePublisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) PublishStateChanged(ctx context.Context, eventID string) error {
	p.logger.DebugContext(ctx, "event state changed", "event_id", eventID)
	return nil
}
