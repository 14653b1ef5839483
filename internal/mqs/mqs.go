// Package mqs abstracts the task-queue transport behind a small Queue
// interface. Concrete queues are backed by gocloud.dev pubsub drivers.
package mqs

import (
	"context"
	"errors"

	"gocloud.dev/pubsub"
)

// Message is one delivered queue message. Ack and Nack report the handling
// outcome back to the transport; Nack makes the message visible again for
// redelivery (at-least-once semantics).
type Message struct {
	Body       []byte
	LoggableID string

	ack  func()
	nack func()
}

func (m *Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

func (m *Message) Nack() {
	if m.nack != nil {
		m.nack()
	}
}

// NewTestMessage builds a Message with caller-supplied ack and nack hooks.
// Only tests should need this; real messages come from a Subscription.
func NewTestMessage(body []byte, ack, nack func()) *Message {
	return &Message{Body: body, ack: ack, nack: nack}
}

// IncomingMessage is anything that can serialize itself into a Message.
type IncomingMessage interface {
	ToMessage() (*Message, error)
}

type Queue interface {
	Init(ctx context.Context) (func(), error)
	Publish(ctx context.Context, incomingMessage IncomingMessage) error
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	Receive(ctx context.Context) (*Message, error)
	Shutdown(ctx context.Context) error
}

// QueueConfig selects exactly one transport.
type QueueConfig struct {
	RabbitMQ *RabbitMQConfig `yaml:"rabbitmq"`
	InMemory *InMemoryConfig `yaml:"in_memory"`
}

var ErrInvalidQueueConfig = errors.New("invalid queue config: no transport configured")

// NewQueue constructs the configured queue. Nil or empty config falls back
// to the in-memory transport, which only makes sense for tests and local
// development.
func NewQueue(config *QueueConfig) Queue {
	if config != nil && config.RabbitMQ != nil {
		return NewRabbitMQQueue(config.RabbitMQ)
	}
	if config != nil && config.InMemory != nil {
		return NewInMemoryQueue(config.InMemory)
	}
	return NewInMemoryQueue(&InMemoryConfig{})
}

func (c *QueueConfig) Validate() error {
	if c == nil {
		return ErrInvalidQueueConfig
	}
	if c.RabbitMQ != nil {
		return c.RabbitMQ.validate()
	}
	if c.InMemory != nil {
		return nil
	}
	return ErrInvalidQueueConfig
}

// wrappedSubscription adapts a gocloud subscription to the Subscription
// interface, carrying Ack/Nack through to the driver.
type gocloudSubscription struct {
	sub *pubsub.Subscription
}

var _ Subscription = &gocloudSubscription{}

func wrappedSubscription(sub *pubsub.Subscription) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("nil subscription")
	}
	return &gocloudSubscription{sub: sub}, nil
}

func (s *gocloudSubscription) Receive(ctx context.Context) (*Message, error) {
	msg, err := s.sub.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{
		Body:       msg.Body,
		LoggableID: msg.LoggableID,
		ack:        msg.Ack,
		nack: func() {
			if msg.Nackable() {
				msg.Nack()
			}
		},
	}, nil
}

func (s *gocloudSubscription) Shutdown(ctx context.Context) error {
	return s.sub.Shutdown(ctx)
}
