package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func TestDo_AlwaysFailing(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		rec := &sleepRecorder{}
		calls := 0
		boom := errors.New("boom")

		out := Do(context.Background(), Config{Interval: 250 * time.Millisecond, MaxAttempts: n},
			func(context.Context) (struct{}, error) {
				calls++
				return struct{}{}, boom
			}, WithSleep(rec.sleep))

		assert.False(t, out.OK)
		assert.Equal(t, n, calls)
		assert.Equal(t, n, out.Attempts)
		assert.Len(t, out.Failures, n)
		require.Len(t, rec.calls, n-1)
		for _, d := range rec.calls {
			assert.Equal(t, 250*time.Millisecond, d)
		}

		err := out.Err()
		require.Error(t, err)
		assert.True(t, IsExhausted(err))
		assert.ErrorIs(t, err, boom)
	}
}

func TestDo_SucceedsOnAttemptK(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	out := Do(context.Background(), Config{Interval: time.Second, MaxAttempts: 5},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("not yet")
			}
			return "done", nil
		}, WithSleep(rec.sleep))

	require.True(t, out.OK)
	assert.Equal(t, "done", out.Value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, rec.calls, 2)
	assert.NoError(t, out.Err())
}

func TestDo_SingleAttemptNoDelay(t *testing.T) {
	rec := &sleepRecorder{}
	out := Do(context.Background(), Config{Interval: time.Hour, MaxAttempts: 1},
		func(context.Context) (int, error) { return 0, errors.New("nope") },
		WithSleep(rec.sleep))

	assert.False(t, out.OK)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, rec.calls)
}

func TestDo_ZeroIntervalRetriesImmediately(t *testing.T) {
	calls := 0
	start := time.Now()
	out := Do(context.Background(), Config{Interval: 0, MaxAttempts: 3},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("nope")
		})

	assert.False(t, out.OK)
	assert.Equal(t, 3, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	out := Do(ctx, Config{Interval: time.Hour, MaxAttempts: 3},
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("nope")
		})

	assert.False(t, out.OK)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, out.Err(), context.Canceled)

	require.Len(t, out.Failures, out.Attempts)
	assert.Equal(t, 1, out.Failures[0].Attempt)
	assert.ErrorContains(t, out.Failures[0].Err, "nope")
	assert.ErrorIs(t, out.Failures[0].Err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Interval: 0, MaxAttempts: 1}.Validate())
	assert.Error(t, Config{Interval: -time.Second, MaxAttempts: 1}.Validate())
	assert.Error(t, Config{Interval: time.Second, MaxAttempts: 0}.Validate())
}
