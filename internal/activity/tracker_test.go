package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-portal/meridian-portal/internal/activity"
)

func newRedisStore(t *testing.T) *activity.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return activity.NewRedisStore(client, 24*time.Hour)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.SaveLastActivity(ctx, at))
	require.NoError(t, store.SaveExpiry(ctx, at.Add(time.Hour)))

	got, err := store.LoadLastActivity(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	expiry, err := store.LoadExpiry(ctx)
	require.NoError(t, err)
	assert.True(t, expiry.Equal(at.Add(time.Hour)))

	require.NoError(t, store.Clear(ctx))
	got, err = store.LoadLastActivity(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestTouchMovesTimestampForwardOnly(t *testing.T) {
	tracker := activity.NewTracker(newRedisStore(t), nil, time.Second)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker.SetNow(func() time.Time { return now })

	assert.Equal(t, time.Duration(0), tracker.IdleDuration())

	tracker.Touch()
	assert.True(t, tracker.LastActivity().Equal(now))

	// The clock regressing never moves the timestamp backwards.
	now = now.Add(-time.Minute)
	tracker.Touch()
	assert.True(t, tracker.LastActivity().Equal(now.Add(time.Minute)))
	assert.Equal(t, time.Duration(0), tracker.IdleDuration())

	now = now.Add(11 * time.Minute)
	assert.Equal(t, 10*time.Minute, tracker.IdleDuration())
}

func TestListenersFireOnForwardMovement(t *testing.T) {
	tracker := activity.NewTracker(newRedisStore(t), nil, time.Second)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker.SetNow(func() time.Time { return now })

	var fired int
	tracker.OnTouch(func() { fired++ })

	tracker.Touch()
	assert.Equal(t, 1, fired)

	// Same instant: no movement, no callback.
	tracker.Touch()
	assert.Equal(t, 1, fired)

	now = now.Add(time.Second)
	tracker.Touch()
	assert.Equal(t, 2, fired)
}

func TestResetPersistsImmediately(t *testing.T) {
	store := newRedisStore(t)
	tracker := activity.NewTracker(store, nil, time.Second)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker.SetNow(func() time.Time { return now })

	tracker.Reset(context.Background())

	stored, err := store.LoadLastActivity(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.Equal(now))
}

func TestStartRestoresPersistedTimestamp(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	persisted := time.Now().Add(-5 * time.Minute).UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SaveLastActivity(ctx, persisted))

	tracker := activity.NewTracker(store, nil, time.Second)
	require.NoError(t, tracker.Start(ctx))
	defer tracker.Stop()

	assert.True(t, tracker.LastActivity().Equal(persisted))
	assert.InDelta(t, 5*time.Minute, tracker.IdleDuration(), float64(time.Second))
}

func TestPublishedEventsAreConsumedAndFlushed(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	tracker := activity.NewTracker(store, nil, 10*time.Millisecond)
	require.NoError(t, tracker.Start(ctx))
	defer tracker.Stop()

	tracker.Publish()
	tracker.Publish()
	tracker.Events() <- struct{}{}

	require.Eventually(t, func() bool {
		stored, err := store.LoadLastActivity(ctx)
		return err == nil && !stored.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, tracker.LastActivity().IsZero())
}

func TestPublishNeverBlocks(t *testing.T) {
	tracker := activity.NewTracker(newRedisStore(t), nil, time.Second)

	// Nobody is consuming; the buffered channel collapses the burst.
	for i := 0; i < 1000; i++ {
		tracker.Publish()
	}
}

func TestStopFlushesLatestTimestamp(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	tracker := activity.NewTracker(store, nil, time.Hour)
	require.NoError(t, tracker.Start(ctx))

	tracker.Touch()
	tracker.Stop()

	stored, err := store.LoadLastActivity(ctx)
	require.NoError(t, err)
	assert.False(t, stored.IsZero())
}

func TestStopIsIdempotent(t *testing.T) {
	tracker := activity.NewTracker(newRedisStore(t), nil, time.Hour)
	require.NoError(t, tracker.Start(context.Background()))

	tracker.Stop()
	tracker.Stop()
}
