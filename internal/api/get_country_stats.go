package api

import (
	"encoding/json"
	"net/http"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

// handleGetCountryStats handles GET /api/v1/stats/countries.
// Returns the per-country aggregate view: client count and distinct city
// count per country, ordered by client count descending.
//
// The rows come from the country_stats view and reflect every batch the
// ingester has committed at query time (read-committed, no staleness bound).
func (s *Server) handleGetCountryStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	stats, err := s.reportStore.CountryStats(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query country stats",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query country stats"))

		return
	}

	response := CountryStatsResponse{
		Countries: mapCountryStats(stats),
		Total:     len(stats),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal country stats response",
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

// mapCountryStats converts domain CountryStats to API response rows.
func mapCountryStats(stats []reporting.CountryStat) []CountryStatResponse {
	rows := make([]CountryStatResponse, 0, len(stats))

	for _, stat := range stats {
		rows = append(rows, CountryStatResponse{
			Country:     stat.Country,
			ClientCount: stat.ClientCount,
			CityCount:   stat.CityCount,
		})
	}

	return rows
}
