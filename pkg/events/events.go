// Package events announces processed plate readings on a message queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is published once per processed upload.
type Event struct {
	UploadID    string    `json:"upload_id"`
	PlateNumber string    `json:"plate_number"`
	Detected    bool      `json:"detected"`
	ImageURL    string    `json:"image_url"`
	RemoteURL   string    `json:"remote_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }

// AMQP publishes events as JSON messages to a durable queue.
type AMQP struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex
}

// DialAMQP connects to the broker and declares the queue.
func DialAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &AMQP{conn: conn, ch: ch, queue: queue}, nil
}

// Notify publishes one event. Channels are not safe for concurrent publishing,
// so calls are serialized.
func (a *AMQP) Notify(ctx context.Context, ev Event) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(ctx, "", a.queue, false, false, msg)
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	a.ch.Close()
	return a.conn.Close()
}

// Message renders ev as a persistent JSON publishing.
func Message(ev Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.UploadID,
		Timestamp:    ev.At,
		Type:         "plate.read",
		Body:         body,
	}, nil
}
