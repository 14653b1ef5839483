package taskmq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainline/chainline/internal/mqs"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/taskmq"
	"github.com/chainline/chainline/internal/util/testutil"
)

type fakePublisher struct {
	published []taskmq.Task
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, task taskmq.Task) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, task)
	return nil
}

type ackTracker struct {
	acked  bool
	nacked bool
}

func trackedMessage(t *testing.T, body []byte) (*mqs.Message, *ackTracker) {
	t.Helper()
	tracker := &ackTracker{}
	msg := mqs.NewTestMessage(body,
		func() { tracker.acked = true },
		func() { tracker.nacked = true },
	)
	return msg, tracker
}

func taskBody(t *testing.T, task taskmq.Task) []byte {
	t.Helper()
	return testutil.MustMarshalJSON(task)
}

func newHandlerRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	registry := pipeline.NewRegistry(testutil.CreateTestLogger(t))
	registry.MustRegister(pipeline.Definition{
		Name: "Chainer",
		Spec: []pipeline.ParamSpec{
			{Name: "token", Kind: pipeline.KindString, Required: true},
		},
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				params := base.Params().Clone()
				params["token"] = base.Params().String("token") + "-next"
				return yield(base.Enqueue("Chainer", params))
			}, nil
		},
	})
	registry.MustRegister(pipeline.Definition{
		Name: "Terminal",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error { return nil }, nil
		},
	})
	registry.MustRegister(pipeline.Definition{
		Name: "Flaky",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				return pipeline.Transient(errors.New("warehouse hiccup"))
			}, nil
		},
	})
	return registry
}

func TestMessageHandler_PublishesContinuationsAndAcks(t *testing.T) {
	t.Parallel()

	registry := newHandlerRegistry(t)
	publisher := &fakePublisher{}
	handler := taskmq.NewMessageHandler(testutil.CreateTestLogger(t), registry, publisher)

	msg, tracker := trackedMessage(t, taskBody(t, taskmq.Task{
		WorkerType: "Chainer",
		Params:     map[string]any{"token": "p0"},
		InstanceID: "run-1",
	}))

	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "Chainer", publisher.published[0].WorkerType)
	assert.Equal(t, "p0-next", publisher.published[0].Params["token"])
	// The continuation stays in the same pipeline run.
	assert.Equal(t, "run-1", publisher.published[0].InstanceID)
	assert.True(t, tracker.acked)
	assert.False(t, tracker.nacked)
}

func TestMessageHandler_ConfigurationErrorAcksWithoutPublishing(t *testing.T) {
	t.Parallel()

	registry := newHandlerRegistry(t)
	publisher := &fakePublisher{}
	handler := taskmq.NewMessageHandler(testutil.CreateTestLogger(t), registry, publisher)

	msg, tracker := trackedMessage(t, taskBody(t, taskmq.Task{
		WorkerType: "Chainer", // missing required "token"
		InstanceID: "run-1",
	}))

	err := handler.Handle(context.Background(), msg)
	require.Error(t, err)

	var cfgErr *pipeline.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, publisher.published)
	assert.True(t, tracker.acked)
	assert.False(t, tracker.nacked)
}

func TestMessageHandler_UnknownWorkerAcks(t *testing.T) {
	t.Parallel()

	registry := newHandlerRegistry(t)
	publisher := &fakePublisher{}
	handler := taskmq.NewMessageHandler(testutil.CreateTestLogger(t), registry, publisher)

	msg, tracker := trackedMessage(t, taskBody(t, taskmq.Task{
		WorkerType: "Nope",
		InstanceID: "run-1",
	}))

	require.Error(t, handler.Handle(context.Background(), msg))
	assert.True(t, tracker.acked)
	assert.False(t, tracker.nacked)
}

func TestMessageHandler_TransientFailureNacks(t *testing.T) {
	t.Parallel()

	registry := newHandlerRegistry(t)
	publisher := &fakePublisher{}
	handler := taskmq.NewMessageHandler(testutil.CreateTestLogger(t), registry, publisher)

	msg, tracker := trackedMessage(t, taskBody(t, taskmq.Task{
		WorkerType: "Flaky",
		InstanceID: "run-1",
	}))

	require.Error(t, handler.Handle(context.Background(), msg))
	assert.False(t, tracker.acked)
	assert.True(t, tracker.nacked)
}

func TestMessageHandler_MalformedPayloadAcks(t *testing.T) {
	t.Parallel()

	registry := newHandlerRegistry(t)
	handler := taskmq.NewMessageHandler(testutil.CreateTestLogger(t), registry, &fakePublisher{})

	msg, tracker := trackedMessage(t, []byte("{not json"))

	require.Error(t, handler.Handle(context.Background(), msg))
	assert.True(t, tracker.acked)
	assert.False(t, tracker.nacked)
}
