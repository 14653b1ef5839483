package mqs

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/viper"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/rabbitpubsub"
)

// ============================== Config ==============================

type RabbitMQConfig struct {
	ServerURL string `yaml:"server_url"`
	Exchange  string `yaml:"exchange"`
	TaskQueue string `yaml:"task_queue"`
}

const (
	DefaultRabbitMQExchange  = "chainline"
	DefaultRabbitMQTaskQueue = "chainline.tasks"
)

func (c *QueueConfig) parseRabbitMQConfig(v *viper.Viper) {
	if !v.IsSet("TASK_RABBITMQ_SERVER_URL") {
		return
	}

	config := &RabbitMQConfig{}
	config.ServerURL = v.GetString("TASK_RABBITMQ_SERVER_URL")

	if v.IsSet("TASK_RABBITMQ_EXCHANGE") {
		config.Exchange = v.GetString("TASK_RABBITMQ_EXCHANGE")
	} else {
		config.Exchange = DefaultRabbitMQExchange
	}

	if v.IsSet("TASK_RABBITMQ_QUEUE") {
		config.TaskQueue = v.GetString("TASK_RABBITMQ_QUEUE")
	} else {
		config.TaskQueue = DefaultRabbitMQTaskQueue
	}

	c.RabbitMQ = config
}

// ParseEnv populates the transport config from environment variables via
// viper. Only transports whose server URL is present are configured.
func (c *QueueConfig) ParseEnv() {
	v := viper.New()
	v.AutomaticEnv()
	c.parseRabbitMQConfig(v)
}

func (c *RabbitMQConfig) validate() error {
	if c.ServerURL == "" {
		return errors.New("RabbitMQ server URL is not set")
	}
	if c.Exchange == "" {
		return errors.New("RabbitMQ exchange is not set")
	}
	if c.TaskQueue == "" {
		return errors.New("RabbitMQ task queue is not set")
	}
	return nil
}

// ============================== Queue ==============================

type RabbitMQQueue struct {
	conn   *amqp091.Connection
	config *RabbitMQConfig
	topic  *pubsub.Topic
}

var _ Queue = &RabbitMQQueue{}

func NewRabbitMQQueue(config *RabbitMQConfig) *RabbitMQQueue {
	return &RabbitMQQueue{config: config}
}

func (q *RabbitMQQueue) Init(ctx context.Context) (func(), error) {
	conn, err := amqp091.Dial(q.config.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := q.declareInfrastructure(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	q.conn = conn
	q.topic = rabbitpubsub.OpenTopic(conn, q.config.Exchange, nil)
	return func() {
		conn.Close()
		q.topic.Shutdown(ctx)
	}, nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, incomingMessage IncomingMessage) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	return q.topic.Send(ctx, &pubsub.Message{Body: msg.Body})
}

func (q *RabbitMQQueue) Subscribe(ctx context.Context) (Subscription, error) {
	subscription := rabbitpubsub.OpenSubscription(q.conn, q.config.TaskQueue, nil)
	return wrappedSubscription(subscription)
}

func (q *RabbitMQQueue) declareInfrastructure(_ context.Context, conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	err = ch.ExchangeDeclare(
		q.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return err
	}
	queue, err := ch.QueueDeclare(
		q.config.TaskQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		return err
	}
	err = ch.QueueBind(
		queue.Name,        // queue name
		"",                // routing key
		q.config.Exchange, // exchange
		false,
		nil,
	)
	return err
}
