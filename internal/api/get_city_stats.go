package api

import (
	"encoding/json"
	"net/http"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

// handleGetCityStats handles GET /api/v1/stats/cities.
// Returns the per-city aggregate view: client count plus the first and last
// event date seen per (country, city), ordered by client count descending.
//
// The rows come from the city_stats view and reflect every batch the
// ingester has committed at query time (read-committed, no staleness bound).
func (s *Server) handleGetCityStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	stats, err := s.reportStore.CityStats(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query city stats",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query city stats"))

		return
	}

	response := CityStatsResponse{
		Cities: mapCityStats(stats),
		Total:  len(stats),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal city stats response",
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

// mapCityStats converts domain CityStats to API response rows.
func mapCityStats(stats []reporting.CityStat) []CityStatResponse {
	rows := make([]CityStatResponse, 0, len(stats))

	for _, stat := range stats {
		rows = append(rows, CityStatResponse{
			Country:     stat.Country,
			City:        stat.City,
			ClientCount: stat.ClientCount,
			FirstDate:   stat.FirstDate.Format(eventDateLayout),
			LastDate:    stat.LastDate.Format(eventDateLayout),
		})
	}

	return rows
}
