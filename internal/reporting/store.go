package reporting

import "context"

// DefaultActivityWindowDays is the trailing window for RecentActivity when
// the caller does not specify one.
const DefaultActivityWindowDays = 7

// Store defines the read interface for report queries.
//
// This interface is intentionally separate from ingestion.ClientStore:
// the ingester only writes, the report API only reads, and neither should
// depend on methods it never calls. storage.ReportingStore implements this
// interface over the same clients table the ingester upserts into.
//
// All query methods observe read-committed state, so results include every
// batch the ingester has committed and never a partially applied one.
type Store interface {
	// ListClients returns a page of stored clients ordered by recency
	// (created_at DESC, newest first; ties broken by surrogate id).
	//
	// Parameters:
	//   - pagination: Optional pagination (nil = all rows)
	//
	// Returns ClientQueryResult with the page and the total row count, so
	// one query serves both the listing and its pagination metadata.
	ListClients(ctx context.Context, pagination *Pagination) (*ClientQueryResult, error)

	// CountryStats returns per-country client and distinct-city counts from
	// the country_stats view, ordered by client count descending.
	CountryStats(ctx context.Context) ([]CountryStat, error)

	// CityStats returns per-city client counts and event date spans from the
	// city_stats view, ordered by client count descending.
	CityStats(ctx context.Context) ([]CityStat, error)

	// RecentActivity returns per-day counts of newly stored clients over the
	// trailing window.
	//
	// Parameters:
	//   - days: Trailing window size; values < 1 fall back to
	//     DefaultActivityWindowDays
	//
	// Days with no activity are absent from the result, not zero-filled.
	RecentActivity(ctx context.Context, days int) ([]ActivityPoint, error)

	// HealthCheck verifies the backing store is reachable.
	// Used by the readiness and health endpoints.
	HealthCheck(ctx context.Context) error
}
