package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/util/testutil"
)

type recordingSink struct {
	records []pipeline.Record
}

func (s *recordingSink) Write(_ context.Context, rec pipeline.Record) {
	s.records = append(s.records, rec)
}

func newTestRegistry(t *testing.T, sink pipeline.LogSink) *pipeline.Registry {
	t.Helper()
	opts := []pipeline.RegistryOption{}
	if sink != nil {
		opts = append(opts, pipeline.WithLogSink(sink))
	}
	return pipeline.NewRegistry(testutil.CreateTestLogger(t), opts...)
}

func TestInvocation_EnqueueBuildsTupleWithoutIO(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, nil)
	var captured pipeline.WorkItem
	registry.MustRegister(pipeline.Definition{
		Name: "Enqueuer",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				captured = base.Enqueue("Follower", map[string]any{"token": "abc"})
				return nil
			}, nil
		},
	})

	inv, err := registry.New("Enqueuer", nil, "run-1", "exec-1")
	require.NoError(t, err)
	require.NoError(t, inv.Execute(context.Background(), func(pipeline.WorkItem) error {
		t.Fatal("nothing should be yielded")
		return nil
	}))

	assert.Equal(t, "Follower", captured.WorkerType)
	assert.Equal(t, map[string]any{"token": "abc"}, captured.Params)
}

func TestInvocation_ExecuteYieldsItemsInOrder(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, nil)
	registry.MustRegister(pipeline.Definition{
		Name: "Fanout",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				if err := yield(base.Enqueue("First", nil)); err != nil {
					return err
				}
				return yield(base.Enqueue("Second", nil))
			}, nil
		},
	})

	inv, err := registry.New("Fanout", nil, "run-1", "exec-1")
	require.NoError(t, err)

	var yielded []string
	require.NoError(t, inv.Execute(context.Background(), func(item pipeline.WorkItem) error {
		yielded = append(yielded, item.WorkerType)
		return nil
	}))

	assert.Equal(t, []string{"First", "Second"}, yielded)
}

func TestInvocation_ExecuteWrapsEscapedError(t *testing.T) {
	t.Parallel()

	cause := errors.New("warehouse unreachable")
	registry := newTestRegistry(t, nil)
	registry.MustRegister(pipeline.Definition{
		Name: "Failing",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				return cause
			}, nil
		},
	})

	inv, err := registry.New("Failing", nil, "run-1", "exec-1")
	require.NoError(t, err)

	err = inv.Execute(context.Background(), func(pipeline.WorkItem) error { return nil })
	require.Error(t, err)

	var execErr *pipeline.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "Failing", execErr.WorkerType)
	// The original error identity survives wrapping.
	assert.True(t, errors.Is(err, cause))
}

func TestInvocation_YieldErrorPropagatesUnwrapped(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, nil)
	registry.MustRegister(pipeline.Definition{
		Name: "Fanout",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				return yield(base.Enqueue("First", nil))
			}, nil
		},
	})

	inv, err := registry.New("Fanout", nil, "run-1", "exec-1")
	require.NoError(t, err)

	queueDown := errors.New("queue unavailable")
	err = inv.Execute(context.Background(), func(pipeline.WorkItem) error { return queueDown })
	require.ErrorIs(t, err, queueDown)

	var execErr *pipeline.ExecutionError
	assert.False(t, errors.As(err, &execErr))
}

func TestBase_LogForwardsStructuredRecords(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	registry := newTestRegistry(t, sink)
	registry.MustRegister(pipeline.Definition{
		Name: "Chatty",
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				base.LogInfo(ctx, "starting")
				base.LogWarn(ctx, "lagging")
				base.LogError(ctx, "giving up")
				return nil
			}, nil
		},
	})

	inv, err := registry.New("Chatty", nil, "run-7", "exec-9")
	require.NoError(t, err)
	require.NoError(t, inv.Execute(context.Background(), func(pipeline.WorkItem) error { return nil }))

	require.Len(t, sink.records, 3)
	assert.Equal(t, "INFO", sink.records[0].Level)
	assert.Equal(t, "WARNING", sink.records[1].Level)
	assert.Equal(t, "ERROR", sink.records[2].Level)
	for _, rec := range sink.records {
		assert.Equal(t, "Chatty", rec.WorkerType)
		assert.Equal(t, "run-7", rec.InstanceID)
		assert.Equal(t, "exec-9", rec.ExecutionID)
		assert.NotEmpty(t, rec.Message)
		assert.False(t, rec.Time.IsZero())
	}
}
