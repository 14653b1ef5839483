package joblog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainline/chainline/internal/joblog"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/util/testutil"
)

func TestRedisStore_InsertAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)
	store := joblog.NewRedisStore(client)

	entries := []joblog.Entry{
		{Level: "INFO", WorkerType: "QueryRunner", InstanceID: "run-1", ExecutionID: "exec-1", Message: "query started", Time: time.Now().UTC()},
		{Level: "ERROR", WorkerType: "QueryRunner", InstanceID: "run-1", ExecutionID: "exec-1", Message: "query failed", Time: time.Now().UTC()},
		{Level: "INFO", WorkerType: "JobWaiter", InstanceID: "run-2", ExecutionID: "exec-2", Message: "still waiting", Time: time.Now().UTC()},
	}
	require.NoError(t, store.InsertMany(ctx, entries))

	got, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "query started", got[0].Message)
	assert.Equal(t, "query failed", got[1].Message)
	assert.Equal(t, "ERROR", got[1].Level)

	other, err := store.List(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "JobWaiter", other[0].WorkerType)
}

func TestRedisStore_ListEmptyRun(t *testing.T) {
	t.Parallel()

	client := testutil.CreateTestRedisClient(t)
	store := joblog.NewRedisStore(client)

	got, err := store.List(context.Background(), "run-missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBatchProcessor_FlushesOnShutdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)
	store := joblog.NewRedisStore(client)

	bp, err := joblog.NewBatchProcessor(ctx, testutil.CreateTestLogger(t), store, joblog.BatchProcessorConfig{
		ItemCountThreshold: 100,
		DelayThreshold:     time.Minute,
	})
	require.NoError(t, err)

	bp.Write(ctx, pipeline.Record{
		Level:       "INFO",
		WorkerType:  "StorageLoader",
		InstanceID:  "run-3",
		ExecutionID: "exec-3",
		Message:     "load complete",
		Time:        time.Now().UTC(),
	})
	bp.Shutdown()

	got, err := store.List(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "load complete", got[0].Message)
}

func TestBatchProcessor_FlushesOnThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)
	store := joblog.NewRedisStore(client)

	bp, err := joblog.NewBatchProcessor(ctx, testutil.CreateTestLogger(t), store, joblog.BatchProcessorConfig{
		ItemCountThreshold: 2,
		DelayThreshold:     time.Minute,
	})
	require.NoError(t, err)
	defer bp.Shutdown()

	for i := 0; i < 2; i++ {
		bp.Write(ctx, pipeline.Record{
			Level:      "INFO",
			WorkerType: "AnalyticsProcessor",
			InstanceID: "run-4",
			Message:    "page shipped",
			Time:       time.Now().UTC(),
		})
	}

	require.Eventually(t, func() bool {
		got, err := store.List(ctx, "run-4")
		return err == nil && len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
