// Package taskmq carries WorkItems over the queue transport. A Task is the
// wire envelope: the WorkItem tuple plus the instance ID of the pipeline
// run it belongs to.
package taskmq

import (
	"context"
	"encoding/json"

	"github.com/chainline/chainline/internal/mqs"
	"github.com/chainline/chainline/internal/pipeline"
)

type Task struct {
	WorkerType string         `json:"worker_type"`
	Params     map[string]any `json:"params"`
	InstanceID string         `json:"instance_id"`
}

func TaskFromWorkItem(item pipeline.WorkItem, instanceID string) Task {
	return Task{
		WorkerType: item.WorkerType,
		Params:     item.Params,
		InstanceID: instanceID,
	}
}

func (t *Task) WorkItem() pipeline.WorkItem {
	return pipeline.WorkItem{WorkerType: t.WorkerType, Params: t.Params}
}

func (t *Task) ToMessage() (*mqs.Message, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &mqs.Message{Body: body, LoggableID: t.WorkerType}, nil
}

func (t *Task) FromMessage(msg *mqs.Message) error {
	return json.Unmarshal(msg.Body, t)
}

type TaskMQ struct {
	queue mqs.Queue
}

type TaskMQOption func(*TaskMQ)

func WithQueue(config *mqs.QueueConfig) TaskMQOption {
	return func(q *TaskMQ) {
		q.queue = mqs.NewQueue(config)
	}
}

func New(opts ...TaskMQOption) *TaskMQ {
	q := &TaskMQ{}
	for _, opt := range opts {
		opt(q)
	}
	if q.queue == nil {
		q.queue = mqs.NewQueue(nil)
	}
	return q
}

func (q *TaskMQ) Init(ctx context.Context) (func(), error) {
	return q.queue.Init(ctx)
}

func (q *TaskMQ) Publish(ctx context.Context, task Task) error {
	return q.queue.Publish(ctx, &task)
}

func (q *TaskMQ) Subscribe(ctx context.Context) (mqs.Subscription, error) {
	return q.queue.Subscribe(ctx)
}
