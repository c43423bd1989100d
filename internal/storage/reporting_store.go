package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/geopulse-io/geopulse/internal/config"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

// slowReportQueryThreshold marks the duration past which a report query gets
// a warning log. Report queries run against plain views over clients and
// should stay well under this.
const slowReportQueryThreshold = 500 * time.Millisecond

var (
	// ErrReportQueryFailed is returned when a report query fails.
	ErrReportQueryFailed = errors.New("report query failed")

	// Compile-time interface assertion: ReportingStore is the read side of
	// the clients table, serving the report API.
	_ reporting.Store = (*ReportingStore)(nil)
)

type (
	// ReportingStore implements reporting.Store with a PostgreSQL backend.
	//
	// Read-only companion to ClientStore: it queries the same clients table
	// the ingester upserts into, plus the country_stats and city_stats views.
	// Plain views, read-committed; every committed batch is visible on the
	// next query with no refresh step.
	ReportingStore struct {
		conn      *Connection
		logger    *slog.Logger
		closeOnce sync.Once
	}

	// ReportingStoreOption configures optional ReportingStore behavior.
	ReportingStoreOption func(*ReportingStore)
)

// WithReportingStoreLogger overrides the default stdout JSON logger.
func WithReportingStoreLogger(logger *slog.Logger) ReportingStoreOption {
	return func(s *ReportingStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReportingStore creates a PostgreSQL-backed report query store.
// Returns error if connection is nil (ErrNoDatabaseConnection).
func NewReportingStore(conn *Connection, opts ...ReportingStoreOption) (*ReportingStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	store := &ReportingStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("GEOPULSE_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	// Apply optional configuration
	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// ListClients implements reporting.Store.
// Returns a page of clients ordered by recency with the total count.
//
// Uses COUNT(*) OVER() so the page and the total come back in one query.
func (s *ReportingStore) ListClients(
	ctx context.Context,
	pagination *reporting.Pagination,
) (*reporting.ClientQueryResult, error) {
	start := time.Now()

	query, args := buildClientListQuery(pagination)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to query clients",
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)))

		return nil, fmt.Errorf("%w: %w", ErrReportQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var results []reporting.Client

	var total int

	for rows.Next() {
		var c reporting.Client

		err := rows.Scan(
			&c.ID, &c.ClientID, &c.Name, &c.Country, &c.City,
			&c.EventDate, &c.CreatedAt, &c.UpdatedAt,
			&total,
		)
		if err != nil {
			s.logger.Error("Failed to scan client row", slog.Any("error", err))

			return nil, fmt.Errorf("%w: failed to scan row: %w", ErrReportQueryFailed, err)
		}

		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("Error iterating client rows", slog.Any("error", err))

		return nil, fmt.Errorf("%w: row iteration error: %w", ErrReportQueryFailed, err)
	}

	if results == nil {
		results = []reporting.Client{}
	}

	duration := time.Since(start)
	s.logger.Info("Queried clients",
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)),
		slog.Int("total", total),
		slog.Bool("paginated", pagination != nil))

	s.warnIfSlow("client listing", duration, len(results))

	return &reporting.ClientQueryResult{
		Clients: results,
		Total:   total,
	}, nil
}

// buildClientListQuery builds the client listing query.
// Uses COUNT(*) OVER() window function for efficient pagination.
// Returns (query, args) for use with QueryContext.
func buildClientListQuery(pagination *reporting.Pagination) (string, []interface{}) {
	// Use COUNT(*) OVER() to get total count in the same query
	query := `
		SELECT
			id, client_id, name, country, city,
			event_date, created_at, updated_at,
			COUNT(*) OVER() AS total_count
		FROM clients
		ORDER BY created_at DESC, id DESC
	`

	var args []interface{}

	// Add pagination (LIMIT/OFFSET)
	if pagination != nil {
		query += " LIMIT $1 OFFSET $2"

		args = append(args, pagination.Limit, pagination.Offset)
	}

	return query, args
}

// CountryStats implements reporting.Store.
// Queries the country_stats view for per-country rollups.
func (s *ReportingStore) CountryStats(ctx context.Context) ([]reporting.CountryStat, error) {
	start := time.Now()

	query := `
		SELECT country, client_count, city_count
		FROM country_stats
		ORDER BY client_count DESC, country ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		s.logger.Error("Failed to query country stats",
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)))

		return nil, fmt.Errorf("%w: %w", ErrReportQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var results []reporting.CountryStat

	for rows.Next() {
		var stat reporting.CountryStat

		if err := rows.Scan(&stat.Country, &stat.ClientCount, &stat.CityCount); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %w", ErrReportQueryFailed, err)
		}

		results = append(results, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %w", ErrReportQueryFailed, err)
	}

	if results == nil {
		results = []reporting.CountryStat{}
	}

	duration := time.Since(start)
	s.logger.Info("Queried country stats",
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	s.warnIfSlow("country stats", duration, len(results))

	return results, nil
}

// CityStats implements reporting.Store.
// Queries the city_stats view for per-city rollups and event date spans.
func (s *ReportingStore) CityStats(ctx context.Context) ([]reporting.CityStat, error) {
	start := time.Now()

	query := `
		SELECT country, city, client_count, first_date, last_date
		FROM city_stats
		ORDER BY client_count DESC, country ASC, city ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		s.logger.Error("Failed to query city stats",
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)))

		return nil, fmt.Errorf("%w: %w", ErrReportQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var results []reporting.CityStat

	for rows.Next() {
		var stat reporting.CityStat

		err := rows.Scan(&stat.Country, &stat.City, &stat.ClientCount, &stat.FirstDate, &stat.LastDate)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %w", ErrReportQueryFailed, err)
		}

		results = append(results, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %w", ErrReportQueryFailed, err)
	}

	if results == nil {
		results = []reporting.CityStat{}
	}

	duration := time.Since(start)
	s.logger.Info("Queried city stats",
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	s.warnIfSlow("city stats", duration, len(results))

	return results, nil
}

// RecentActivity implements reporting.Store.
// Returns per-day counts of newly stored clients over the trailing window.
func (s *ReportingStore) RecentActivity(ctx context.Context, days int) ([]reporting.ActivityPoint, error) {
	if days < 1 {
		days = reporting.DefaultActivityWindowDays
	}

	start := time.Now()

	// Calendar-day window: "7 days" means today plus the 6 days before it,
	// matching the DATE(created_at) grouping.
	query := `
		SELECT DATE(created_at) AS day, COUNT(*) AS client_count
		FROM clients
		WHERE created_at >= CURRENT_DATE - make_interval(days => $1 - 1)
		GROUP BY DATE(created_at)
		ORDER BY day ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, days)
	if err != nil {
		s.logger.Error("Failed to query recent activity",
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)))

		return nil, fmt.Errorf("%w: %w", ErrReportQueryFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var results []reporting.ActivityPoint

	for rows.Next() {
		var point reporting.ActivityPoint

		if err := rows.Scan(&point.Date, &point.ClientCount); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %w", ErrReportQueryFailed, err)
		}

		results = append(results, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %w", ErrReportQueryFailed, err)
	}

	if results == nil {
		results = []reporting.ActivityPoint{}
	}

	duration := time.Since(start)
	s.logger.Info("Queried recent activity",
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)),
		slog.Int("window_days", days))

	s.warnIfSlow("recent activity", duration, len(results))

	return results, nil
}

// HealthCheck implements reporting.Store.
// Verifies the backing database connection is alive.
func (s *ReportingStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Close releases the store's database connection.
// This method is safe to call multiple times, and safe when the connection
// is shared with other stores: the underlying pool closes once.
func (s *ReportingStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})

	return err
}

// warnIfSlow flags report queries that exceed the slow-query threshold.
func (s *ReportingStore) warnIfSlow(operation string, duration time.Duration, resultCount int) {
	if duration > slowReportQueryThreshold {
		s.logger.Warn("Slow report query detected",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.Int("result_count", resultCount))
	}
}
