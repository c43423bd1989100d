package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

// maxActivityDays bounds the trailing window so a typo cannot turn the
// activity query into a full-table scan.
const maxActivityDays = 365

// handleGetRecentActivity handles GET /api/v1/reports/activity.
// Returns per-day counts of newly stored clients over the trailing window.
//
// Query Parameters:
//   - days: 1-365 (default: 7)
//
// Days with no activity are absent from the result, not zero-filled; the
// display layer fills gaps when it renders the series.
func (s *Server) handleGetRecentActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	days, err := parseActivityDays(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	activity, err := s.reportStore.RecentActivity(ctx, days)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query recent activity",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query recent activity"))

		return
	}

	response := ActivityResponse{
		Days:     days,
		Activity: mapActivityPoints(activity),
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal activity response",
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

// parseActivityDays parses and validates the days query parameter.
func parseActivityDays(r *http.Request) (int, error) {
	daysStr := r.URL.Query().Get("days")
	if daysStr == "" {
		return reporting.DefaultActivityWindowDays, nil
	}

	days, err := strconv.Atoi(daysStr)
	if err != nil {
		return 0, &paramError{param: "days", msg: "must be a valid integer"}
	}

	if days < 1 || days > maxActivityDays {
		return 0, &paramError{param: "days", msg: "must be between 1 and 365"}
	}

	return days, nil
}

// mapActivityPoints converts domain ActivityPoints to API response rows.
func mapActivityPoints(activity []reporting.ActivityPoint) []ActivityPoint {
	points := make([]ActivityPoint, 0, len(activity))

	for _, point := range activity {
		points = append(points, ActivityPoint{
			Date:        point.Date.Format(eventDateLayout),
			ClientCount: point.ClientCount,
		})
	}

	return points
}
