// Package amqp publishes session lifecycle events to a RabbitMQ topic
// exchange so that other services can follow session outcomes.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/scry-hook/internal/events"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// DefaultPublishTimeout bounds a single publish.
const DefaultPublishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher forwards lifecycle events to an exchange. It implements
// events.EventHandler and ignores trigger events.
type Publisher struct {
	mu       sync.Mutex
	ch       channel
	conn     io.Closer
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(ch, conn, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch channel, conn io.Closer, exchange string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}
	return &Publisher{
		ch:       ch,
		conn:     conn,
		exchange: exchange,
		timeout:  DefaultPublishTimeout,
		logger:   logger.With(slog.String("component", "amqp_publisher")),
	}, nil
}

// Publishes reports whether events of eventType leave the process.
func Publishes(eventType string) bool {
	return strings.HasPrefix(eventType, "session.")
}

// HandleEvent publishes event with its type as routing key.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.Event) error {
	if !Publishes(event.Type) {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(pubCtx, p.exchange, event.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID.String(),
		Type:         event.Type,
		Timestamp:    event.CreatedAt,
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("event_type", event.Type),
		slog.String("event_id", event.ID.String()))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
