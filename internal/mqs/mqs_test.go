package mqs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainline/chainline/internal/mqs"
)

type rawMessage struct {
	body []byte
}

func (m rawMessage) ToMessage() (*mqs.Message, error) {
	return &mqs.Message{Body: m.body}, nil
}

func TestInMemoryQueue_PublishReceive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue := mqs.NewInMemoryQueue(&mqs.InMemoryConfig{AckDeadline: time.Minute})
	cleanup, err := queue.Init(ctx)
	require.NoError(t, err)
	defer cleanup()

	sub, err := queue.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Publish(ctx, rawMessage{body: []byte("first")}))
	require.NoError(t, queue.Publish(ctx, rawMessage{body: []byte("second")}))

	receiveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	received := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg, err := sub.Receive(receiveCtx)
		require.NoError(t, err)
		received[string(msg.Body)] = true
		msg.Ack()
	}
	assert.Equal(t, map[string]bool{"first": true, "second": true}, received)
}

func TestQueueConfig_Validate(t *testing.T) {
	t.Parallel()

	var nilConfig *mqs.QueueConfig
	assert.Error(t, nilConfig.Validate())
	assert.Error(t, (&mqs.QueueConfig{}).Validate())
	assert.Error(t, (&mqs.QueueConfig{RabbitMQ: &mqs.RabbitMQConfig{}}).Validate())
	assert.NoError(t, (&mqs.QueueConfig{RabbitMQ: &mqs.RabbitMQConfig{
		ServerURL: "amqp://localhost:5672",
		Exchange:  mqs.DefaultRabbitMQExchange,
		TaskQueue: mqs.DefaultRabbitMQTaskQueue,
	}}).Validate())
	assert.NoError(t, (&mqs.QueueConfig{InMemory: &mqs.InMemoryConfig{}}).Validate())
}
