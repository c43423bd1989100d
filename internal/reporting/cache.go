package reporting

import (
	"context"
	"sync"
	"time"
)

// DefaultSnapshotTTL is how long a cached report snapshot stays fresh when
// no explicit TTL is configured (GEOPULSE_REPORT_CACHE_TTL).
const DefaultSnapshotTTL = 30 * time.Second

type (
	// Snapshot is the combined report payload served by the summary
	// endpoint: totals, geographic rollups, and recent ingest activity,
	// all computed at one point in time.
	Snapshot struct {
		GeneratedAt  time.Time       `json:"generatedAt"`
		TotalClients int             `json:"totalClients"`
		Countries    []CountryStat   `json:"countries"`
		Cities       []CityStat      `json:"cities"`
		Activity     []ActivityPoint `json:"activity"`
	}

	// SnapshotLoader builds a fresh snapshot from the store. Called by the
	// cache on a miss or after expiry.
	SnapshotLoader func(ctx context.Context) (*Snapshot, error)

	// SnapshotCache is a single-entry TTL cache for the report snapshot.
	//
	// The summary endpoint aggregates several queries per request; the cache
	// bounds that load under polling dashboards while keeping results at
	// most one TTL stale. Only the summary endpoint uses it; paginated
	// listings always hit the store.
	//
	// The clock is injected so expiry is testable without sleeping.
	SnapshotCache struct {
		ttl time.Duration
		now func() time.Time

		mu        sync.Mutex
		snapshot  *Snapshot
		fetchedAt time.Time
	}
)

// NewSnapshotCache creates a snapshot cache with the given TTL.
// A nil clock defaults to time.Now. A TTL of zero or below disables caching:
// every Get calls the loader.
func NewSnapshotCache(ttl time.Duration, now func() time.Time) *SnapshotCache {
	if now == nil {
		now = time.Now
	}

	return &SnapshotCache{
		ttl: ttl,
		now: now,
	}
}

// Get returns the cached snapshot when it is younger than the TTL, otherwise
// calls loader and caches the result.
//
// The returned bool reports whether the snapshot came from cache. Concurrent
// callers during a reload wait for it and then share the fresh snapshot, so
// an expired entry triggers exactly one loader call, not one per caller.
//
// A loader failure leaves the previous entry untouched and returns the
// error; the next Get retries.
func (c *SnapshotCache) Get(ctx context.Context, loader SnapshotLoader) (*Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.ttl > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.snapshot, true, nil
	}

	snapshot, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}

	c.snapshot = snapshot
	c.fetchedAt = c.now()

	return snapshot, false, nil
}

// Invalidate drops the cached snapshot so the next Get reloads.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = nil
	c.fetchedAt = time.Time{}
}

// Now returns the cache's current time via the injected clock. Loaders use it
// to stamp GeneratedAt so snapshot age and cache expiry share one clock.
func (c *SnapshotCache) Now() time.Time {
	return c.now()
}
