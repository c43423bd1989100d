package reporting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLoader returns a loader that counts invocations and serves distinct
// snapshots so tests can tell reloads apart.
func countingLoader(calls *atomic.Int64) SnapshotLoader {
	return func(_ context.Context) (*Snapshot, error) {
		n := calls.Add(1)

		return &Snapshot{TotalClients: int(n)}, nil
	}
}

func TestSnapshotCache_LoadsOnFirstCall(t *testing.T) {
	var calls atomic.Int64

	cache := NewSnapshotCache(DefaultSnapshotTTL, nil)

	snapshot, fromCache, err := cache.Get(context.Background(), countingLoader(&calls))
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.False(t, fromCache)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSnapshotCache_ServesCachedWithinTTL(t *testing.T) {
	var calls atomic.Int64

	current := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
	cache := NewSnapshotCache(30*time.Second, func() time.Time { return current })
	loader := countingLoader(&calls)

	first, fromCache, err := cache.Get(context.Background(), loader)
	require.NoError(t, err)
	require.False(t, fromCache)

	// One tick short of expiry.
	current = current.Add(29 * time.Second)

	second, fromCache, err := cache.Get(context.Background(), loader)
	require.NoError(t, err)

	assert.True(t, fromCache)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSnapshotCache_ReloadsAfterExpiry(t *testing.T) {
	var calls atomic.Int64

	current := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
	cache := NewSnapshotCache(30*time.Second, func() time.Time { return current })
	loader := countingLoader(&calls)

	_, _, err := cache.Get(context.Background(), loader)
	require.NoError(t, err)

	current = current.Add(30 * time.Second)

	snapshot, fromCache, err := cache.Get(context.Background(), loader)
	require.NoError(t, err)

	assert.False(t, fromCache)
	assert.Equal(t, 2, snapshot.TotalClients)
	assert.Equal(t, int64(2), calls.Load())
}

func TestSnapshotCache_ZeroTTLDisablesCaching(t *testing.T) {
	var calls atomic.Int64

	cache := NewSnapshotCache(0, nil)
	loader := countingLoader(&calls)

	for range 3 {
		_, fromCache, err := cache.Get(context.Background(), loader)
		require.NoError(t, err)
		assert.False(t, fromCache)
	}

	assert.Equal(t, int64(3), calls.Load())
}

func TestSnapshotCache_LoaderErrorPropagates(t *testing.T) {
	loadErr := errors.New("store unreachable")
	failing := func(_ context.Context) (*Snapshot, error) { return nil, loadErr }

	cache := NewSnapshotCache(30*time.Second, nil)

	snapshot, fromCache, err := cache.Get(context.Background(), failing)
	require.ErrorIs(t, err, loadErr)

	assert.Nil(t, snapshot)
	assert.False(t, fromCache)

	// A later successful load recovers.
	var calls atomic.Int64

	recovered, fromCache, err := cache.Get(context.Background(), countingLoader(&calls))
	require.NoError(t, err)

	assert.False(t, fromCache)
	assert.Equal(t, 1, recovered.TotalClients)
}

func TestSnapshotCache_InvalidateForcesReload(t *testing.T) {
	var calls atomic.Int64

	cache := NewSnapshotCache(time.Hour, nil)
	loader := countingLoader(&calls)

	_, _, err := cache.Get(context.Background(), loader)
	require.NoError(t, err)

	cache.Invalidate()

	_, fromCache, err := cache.Get(context.Background(), loader)
	require.NoError(t, err)

	assert.False(t, fromCache)
	assert.Equal(t, int64(2), calls.Load())
}

func TestSnapshotCache_ConcurrentCallersShareOneLoad(t *testing.T) {
	var calls atomic.Int64

	cache := NewSnapshotCache(time.Hour, nil)
	loader := countingLoader(&calls)

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			snapshot, _, err := cache.Get(context.Background(), loader)
			assert.NoError(t, err)
			assert.NotNil(t, snapshot)
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
}
