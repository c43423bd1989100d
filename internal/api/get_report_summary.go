package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

// handleGetReportSummary handles GET /api/v1/reports/summary.
// Returns the combined report snapshot: total clients, per-country and
// per-city aggregates, and recent ingest activity, all computed at one point
// in time.
//
// The snapshot is served through a TTL cache (GEOPULSE_REPORT_CACHE_TTL,
// default 30s) so polling dashboards do not hammer the aggregate views;
// responses carry cached=true when reused and generatedAt for the snapshot's
// actual age. Paginated listings bypass the cache entirely.
func (s *Server) handleGetReportSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	snapshot, cached, err := s.snapshots.Get(ctx, s.loadSnapshot)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to build report snapshot",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to build report snapshot"))

		return
	}

	response := ReportSummaryResponse{
		GeneratedAt:  snapshot.GeneratedAt,
		Cached:       cached,
		TotalClients: snapshot.TotalClients,
		Countries:    mapCountryStats(snapshot.Countries),
		Cities:       mapCityStats(snapshot.Cities),
		Activity:     mapActivityPoints(snapshot.Activity),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal report summary response",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// loadSnapshot builds a fresh report snapshot from the store. Called by the
// snapshot cache on a miss or after TTL expiry.
//
// Total clients is derived from the country rollup (every stored client has
// exactly one country) instead of a separate count query.
func (s *Server) loadSnapshot(ctx context.Context) (*reporting.Snapshot, error) {
	countries, err := s.reportStore.CountryStats(ctx)
	if err != nil {
		return nil, err
	}

	cities, err := s.reportStore.CityStats(ctx)
	if err != nil {
		return nil, err
	}

	activity, err := s.reportStore.RecentActivity(ctx, reporting.DefaultActivityWindowDays)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, stat := range countries {
		total += stat.ClientCount
	}

	return &reporting.Snapshot{
		GeneratedAt:  s.snapshots.Now(),
		TotalClients: total,
		Countries:    countries,
		Cities:       cities,
		Activity:     activity,
	}, nil
}
