package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue receives reservation events unless configured otherwise.
const DefaultQueue = "slotbook.reservations"

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends events as persistent JSON messages to a durable queue
// through the default exchange.
type AMQPPublisher struct {
	mu          sync.Mutex
	queue       string
	openChannel func() (Channel, error)
	conn        io.Closer
	newID       func() string
	declared    bool
}

// NewAMQPPublisher dials url and returns a publisher for queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial rabbitmq: %w", err)
	}
	return newAMQPPublisher(queue, func() (Channel, error) { return conn.Channel() }, conn), nil
}

func newAMQPPublisher(queue string, open func() (Channel, error), conn io.Closer) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{queue: queue, openChannel: open, conn: conn, newID: uuid.NewString}
}

// Publish declares the queue on first use and publishes event.
// Events without an ID are assigned one. The ID doubles as the message ID.
func (p *AMQPPublisher) Publish(ctx context.Context, event ReservationEvent) error {
	if event.ID == "" {
		event.ID = p.newID()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if !p.declared {
		if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("events: declare queue %s: %w", p.queue, err)
		}
		p.declared = true
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(event.Type),
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt.UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
