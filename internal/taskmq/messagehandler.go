package taskmq

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chainline/chainline/internal/consumer"
	"github.com/chainline/chainline/internal/idgen"
	"github.com/chainline/chainline/internal/logging"
	"github.com/chainline/chainline/internal/mqs"
	"github.com/chainline/chainline/internal/pipeline"
)

// Publisher submits continuation tasks back onto the queue.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
}

type messageHandler struct {
	logger    *logging.Logger
	registry  *pipeline.Registry
	publisher Publisher
}

// NewMessageHandler returns the handler that turns one queue message into
// one worker invocation. It decodes the task, constructs the worker through
// the registry, drains its generator, and publishes every yielded WorkItem
// in order.
func NewMessageHandler(logger *logging.Logger, registry *pipeline.Registry, publisher Publisher) consumer.MessageHandler {
	return &messageHandler{
		logger:    logger,
		registry:  registry,
		publisher: publisher,
	}
}

func (h *messageHandler) Handle(ctx context.Context, msg *mqs.Message) error {
	task := Task{}
	if err := task.FromMessage(msg); err != nil {
		// Undecodable payloads can never succeed on redelivery.
		msg.Ack()
		h.logger.Ctx(ctx).Error("discarding malformed task message",
			zap.Error(err),
			zap.String("message_id", msg.LoggableID))
		return err
	}

	executionID := idgen.ExecutionID()
	h.logger.Ctx(ctx).Info("processing task",
		zap.String("worker_type", task.WorkerType),
		zap.String("instance_id", task.InstanceID),
		zap.String("execution_id", executionID))

	inv, err := h.registry.New(task.WorkerType, task.Params, task.InstanceID, executionID)
	if err != nil {
		return h.handleError(ctx, msg, task, err)
	}

	err = inv.Execute(ctx, func(item pipeline.WorkItem) error {
		if err := h.registry.Validate(item); err != nil {
			return err
		}
		return h.publisher.Publish(ctx, TaskFromWorkItem(item, task.InstanceID))
	})
	return h.handleError(ctx, msg, task, err)
}

// handleError acks or nacks based on the error class. Configuration and
// permanent failures are acked so the queue does not spin on a message that
// can never succeed; what to do with the failed run (dead-letter, alert) is
// the deployment's policy, not ours. Transient failures nack for
// redelivery.
func (h *messageHandler) handleError(ctx context.Context, msg *mqs.Message, task Task, err error) error {
	if err == nil {
		msg.Ack()
		return nil
	}

	if h.shouldNackError(err) {
		msg.Nack()
	} else {
		msg.Ack()
	}

	h.logger.Ctx(ctx).Error("task failed",
		zap.Error(err),
		zap.String("worker_type", task.WorkerType),
		zap.String("instance_id", task.InstanceID),
		zap.String("message_id", msg.LoggableID))
	return err
}

func (h *messageHandler) shouldNackError(err error) bool {
	var cfgErr *pipeline.ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	if pipeline.IsPermanent(err) {
		return false
	}
	var jobErr *pipeline.JobError
	if errors.As(err, &jobErr) {
		// The external job is terminally failed; redelivery would only poll
		// it again.
		return false
	}
	return true
}
