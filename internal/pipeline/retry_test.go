package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainline/chainline/internal/backoff"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/util/testutil"
)

func testRetryPolicy(t *testing.T, maxAttempts int) (pipeline.RetryPolicy, *[]time.Duration) {
	t.Helper()
	slept := []time.Duration{}
	policy := pipeline.RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     &backoff.ExponentialBackoff{Interval: time.Second, Base: 2},
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
		Logger:      testutil.CreateTestLogger(t),
	}
	return policy, &slept
}

func TestRetryPolicy_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	policy, slept := testRetryPolicy(t, 5)

	calls := 0
	err := policy.Do(context.Background(), "flaky", func() error {
		calls++
		if calls <= 3 {
			return pipeline.Transient(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	// Exponential schedule: 1s, 2s, 4s.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *slept)
}

func TestRetryPolicy_PermanentNotRetried(t *testing.T) {
	t.Parallel()

	policy, slept := testRetryPolicy(t, 5)

	cause := errors.New("bad request")
	calls := 0
	err := policy.Do(context.Background(), "rejected", func() error {
		calls++
		return pipeline.Permanent(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	// The original error propagates unchanged through the tag.
	assert.True(t, errors.Is(err, cause))
}

func TestRetryPolicy_ExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	policy, slept := testRetryPolicy(t, 3)

	cause := errors.New("still down")
	calls := 0
	err := policy.Do(context.Background(), "hopeless", func() error {
		calls++
		return pipeline.Transient(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
	assert.True(t, errors.Is(err, cause))
}

func TestRetryPolicy_UntaggedErrorTreatedAsTransient(t *testing.T) {
	t.Parallel()

	policy, slept := testRetryPolicy(t, 2)

	calls := 0
	err := policy.Do(context.Background(), "untagged", func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, *slept, 1)
}
