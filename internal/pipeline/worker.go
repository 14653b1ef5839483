// Package pipeline implements the worker execution contract: schema-bound
// parameters, a closed registry of worker types, the retry policy for
// external calls, and the generator protocol through which a running worker
// hands follow-on work items back to the queue harness.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainline/chainline/internal/logging"
)

// WorkItem is the sole unit handed to the external task queue: a registered
// worker type name plus the parameters its schema expects. Building one
// performs no I/O; submission belongs to the harness draining the worker's
// generator.
type WorkItem struct {
	WorkerType string         `json:"worker_type"`
	Params     map[string]any `json:"params"`
}

// YieldFunc receives each WorkItem at the moment the worker produces it.
// The harness submits items in yield order, since later items may depend on
// earlier side effects having happened.
type YieldFunc func(WorkItem) error

// WorkFunc is the body of one worker invocation. It runs synchronously and
// yields zero or more WorkItems before returning.
type WorkFunc func(ctx context.Context, yield YieldFunc) error

// Record is one structured entry for the execution log sink.
type Record struct {
	Level       string
	WorkerType  string
	InstanceID  string
	ExecutionID string
	Message     string
	Time        time.Time
}

// LogSink receives worker log records, fire-and-forget.
type LogSink interface {
	Write(ctx context.Context, rec Record)
}

// Base carries the bound state shared by every worker variant: parameters,
// identity, and logging. Concrete workers embed it.
type Base struct {
	workerType  string
	instanceID  string
	executionID string
	params      Params
	logger      *logging.Logger
	sink        LogSink
}

func (b *Base) WorkerType() string  { return b.workerType }
func (b *Base) InstanceID() string  { return b.instanceID }
func (b *Base) ExecutionID() string { return b.executionID }
func (b *Base) Params() Params      { return b.params }

// Enqueue builds the WorkItem tuple for a follow-on worker. It performs no
// I/O and never mutates its arguments; emitting the returned item through
// the invocation's yield is what hands it to the harness.
func (b *Base) Enqueue(workerType string, params map[string]any) WorkItem {
	return WorkItem{WorkerType: workerType, Params: params}
}

func (b *Base) LogInfo(ctx context.Context, msg string) {
	b.log(ctx, "INFO", msg)
}

func (b *Base) LogWarn(ctx context.Context, msg string) {
	b.log(ctx, "WARNING", msg)
}

func (b *Base) LogError(ctx context.Context, msg string) {
	b.log(ctx, "ERROR", msg)
}

func (b *Base) log(ctx context.Context, level, msg string) {
	fields := []zap.Field{
		zap.String("log_level", level),
		zap.String("worker_type", b.workerType),
		zap.String("instance_id", b.instanceID),
		zap.String("execution_id", b.executionID),
	}
	switch level {
	case "ERROR":
		b.logger.Ctx(ctx).Error(msg, fields...)
	case "WARNING":
		b.logger.Ctx(ctx).Warn(msg, fields...)
	default:
		b.logger.Ctx(ctx).Info(msg, fields...)
	}
	if b.sink != nil {
		b.sink.Write(ctx, Record{
			Level:       level,
			WorkerType:  b.workerType,
			InstanceID:  b.instanceID,
			ExecutionID: b.executionID,
			Message:     msg,
			Time:        time.Now(),
		})
	}
}

// Invocation is one constructed, parameter-bound worker ready to run.
type Invocation struct {
	*Base
	work WorkFunc
}

// Execute drives the worker body to completion, forwarding every produced
// WorkItem to yield in order. Any error escaping the body is logged and
// wrapped in an ExecutionError; the original error stays reachable through
// the wrapper's cause chain. Yield errors abort the body and propagate
// unwrapped, since they belong to the harness rather than the worker.
func (inv *Invocation) Execute(ctx context.Context, yield YieldFunc) error {
	var yieldErr error
	wrappedYield := func(item WorkItem) error {
		if err := yield(item); err != nil {
			yieldErr = err
			return err
		}
		return nil
	}

	if err := inv.work(ctx, wrappedYield); err != nil {
		if yieldErr != nil {
			return yieldErr
		}
		execErr := &ExecutionError{WorkerType: inv.workerType, Err: err}
		inv.LogError(ctx, execErr.Error())
		return execErr
	}
	return nil
}
