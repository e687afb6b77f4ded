package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTracker(t *testing.T, settings Settings) *RedisTracker {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisTracker(client, "test:", settings)
}

func TestRedisTracker_Admit(t *testing.T) {
	tt := []struct {
		desc     string
		runs     int
		advance  time.Duration
		expected bool
	}{
		{
			desc:     "admits requests under the limit",
			runs:     4,
			expected: true,
		},
		{
			desc:     "rejects the sixth request in the window",
			runs:     5,
			expected: false,
		},
		{
			desc:     "admits again once the window has passed",
			runs:     5,
			advance:  time.Minute,
			expected: true,
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			tracker := newRedisTracker(t, Settings{Limit: 5, Window: time.Minute})
			ctx := context.Background()
			now := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

			for i := 0; i < ts.runs; i++ {
				ok, err := tracker.Admit(ctx, 99, now)
				require.NoError(t, err)
				require.True(t, ok)
			}

			ok, err := tracker.Admit(ctx, 99, now.Add(ts.advance))
			require.NoError(t, err)
			assert.Equal(t, ts.expected, ok)
		})
	}
}

func TestRedisTracker_RejectionDoesNotMutate(t *testing.T) {
	tracker := newRedisTracker(t, Settings{Limit: 2, Window: time.Minute})
	ctx := context.Background()
	now := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ok, err := tracker.Admit(ctx, 5, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 3; i++ {
		ok, err := tracker.Admit(ctx, 5, now.Add(10*time.Second))
		require.NoError(t, err)
		require.False(t, ok)
	}

	usage, err := tracker.Usage(ctx, 5, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Count)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), usage.ResetAt.UnixMilli())
}

func TestRedisTracker_UsersAreIndependent(t *testing.T) {
	tracker := newRedisTracker(t, Settings{Limit: 1, Window: time.Minute})
	ctx := context.Background()
	now := time.Now()

	ok, err := tracker.Admit(ctx, 1, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.Admit(ctx, 2, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.Admit(ctx, 1, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDialRedisFailure(t *testing.T) {
	_, err := DialRedis(context.Background(), "127.0.0.1:1", "", "", Settings{})
	assert.Error(t, err)
}
