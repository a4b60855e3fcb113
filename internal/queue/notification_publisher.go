// Package queue publishes ticket notifications to RabbitMQ for the
// delivery workers (email, WhatsApp) to consume.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/parkpass/ticketing-backend/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// NotificationPublisher publishes notifications as persistent JSON messages
// onto a durable queue via the default exchange.
type NotificationPublisher struct {
	url    string
	queue  string
	logger *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewNotificationPublisher dials RabbitMQ and declares the queue
func NewNotificationPublisher(url, queue string, logger *logrus.Logger) (*NotificationPublisher, error) {
	p := &NotificationPublisher{url: url, queue: queue, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *NotificationPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Dispatch publishes one notification. A closed connection is redialed once.
func (p *NotificationPublisher) Dispatch(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(n.Channel),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"channel":     n.Channel,
		"booking_ref": n.BookingRef,
		"queue":       p.queue,
	}).Debug("Notification published")
	return nil
}

// Close closes the channel and connection
func (p *NotificationPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogDispatcher only logs notifications. It is used when no broker is configured.
type LogDispatcher struct {
	logger *logrus.Logger
}

// NewLogDispatcher creates a new LogDispatcher
func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs n and never fails
func (d *LogDispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.logger.WithFields(logrus.Fields{
		"channel":     n.Channel,
		"recipient":   n.Recipient,
		"booking_ref": n.BookingRef,
		"ticket_ref":  n.TicketRef,
	}).Info("Notification (no broker configured)")
	return nil
}
