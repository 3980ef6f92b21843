// Package messaging defines the broker abstractions cepbridge uses for its
// context feed and for publishing delivery-failure notices, so components
// are not coupled to a specific broker implementation.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to a broker.
type Message struct {
	Subject string
	Data    []byte

	// Metadata holds message headers.
	Metadata map[string]string

	// Timestamp is when the message was received locally.
	Timestamp time.Time
}

// MessageHandler processes a received message. A returned error is logged
// by the subscriber; core NATS does not redeliver.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends data to subject, fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message including its headers.
	PublishMsg(ctx context.Context, msg *Message) error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// Subscribe delivers every message on subject to handler (fan-out).
	Subscribe(subject string, handler MessageHandler) (Subscription, error)

	// QueueSubscribe load-balances messages across members of queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
}

// Client combines Publisher and Subscriber with connection lifecycle.
type Client interface {
	Publisher
	Subscriber

	// Drain lets in-flight handlers finish, then closes the connection.
	Drain() error
	Close() error
	IsConnected() bool

	// RTT measures the round trip to the broker.
	RTT() (time.Duration, error)
}
