package mqs

import (
	"context"
	"time"

	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"
)

type InMemoryConfig struct {
	// AckDeadline is how long a received message stays invisible before the
	// driver redelivers it. Zero means one minute.
	AckDeadline time.Duration `yaml:"ack_deadline"`
}

// InMemoryQueue is a process-local queue over gocloud's mem driver. Used by
// tests and single-process local runs; messages do not survive restarts.
type InMemoryQueue struct {
	config *InMemoryConfig
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
}

var _ Queue = &InMemoryQueue{}

func NewInMemoryQueue(config *InMemoryConfig) *InMemoryQueue {
	if config == nil {
		config = &InMemoryConfig{}
	}
	return &InMemoryQueue{config: config}
}

func (q *InMemoryQueue) Init(ctx context.Context) (func(), error) {
	ackDeadline := q.config.AckDeadline
	if ackDeadline == 0 {
		ackDeadline = time.Minute
	}
	q.topic = mempubsub.NewTopic()
	q.sub = mempubsub.NewSubscription(q.topic, ackDeadline)
	return func() {
		q.topic.Shutdown(ctx)
		q.sub.Shutdown(ctx)
	}, nil
}

func (q *InMemoryQueue) Publish(ctx context.Context, incomingMessage IncomingMessage) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	return q.topic.Send(ctx, &pubsub.Message{Body: msg.Body})
}

func (q *InMemoryQueue) Subscribe(ctx context.Context) (Subscription, error) {
	return wrappedSubscription(q.sub)
}
