package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
	"github.com/geopulse-io/geopulse/internal/reporting"
)

type (
	// clientListParams holds parsed query parameters for the client list.
	clientListParams struct {
		limit  int
		offset int
	}

	// paramError represents a parameter validation error.
	paramError struct {
		param string
		msg   string
	}
)

const (
	// Pagination defaults and limits.
	defaultLimit = 20
	maxLimit     = 100
	minLimit     = 1

	// eventDateLayout renders date-valued fields (event dates, activity days)
	// without a time component.
	eventDateLayout = "2006-01-02"
)

func (e *paramError) Error() string {
	return "Invalid parameter '" + e.param + "': " + e.msg
}

// handleListClients handles GET /api/v1/clients.
// Returns a paginated list of stored client records ordered by recency
// (created_at DESC, newest first).
//
// Query Parameters:
//   - limit: 1-100 (default: 20)
//   - offset: >= 0 (default: 0)
//
// Response: ClientListResponse with pagination metadata; Total carries the
// full row count so the display layer can page without a second query.
//
// The listing always hits the store; only the summary endpoint is cached.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	// Parse query parameters
	params, err := parseClientListParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	pagination := &reporting.Pagination{
		Limit:  params.limit,
		Offset: params.offset,
	}

	// Query clients from store (with database-level pagination)
	result, err := s.reportStore.ListClients(ctx, pagination)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query clients",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query clients"))

		return
	}

	summaries := make([]ClientSummary, 0, len(result.Clients))
	for _, client := range result.Clients {
		summaries = append(summaries, mapClientToSummary(client))
	}

	response := ClientListResponse{
		Clients: summaries,
		Total:   result.Total,
		Limit:   params.limit,
		Offset:  params.offset,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal clients response",
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

// parseClientListParams parses and validates query parameters.
func parseClientListParams(r *http.Request) (*clientListParams, error) {
	q := r.URL.Query()

	params := &clientListParams{
		limit:  defaultLimit,
		offset: 0,
	}

	// Parse limit
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, &paramError{param: "limit", msg: "must be a valid integer"}
		}

		if limit < minLimit || limit > maxLimit {
			return nil, &paramError{param: "limit", msg: "must be between 1 and 100"}
		}

		params.limit = limit
	}

	// Parse offset
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, &paramError{param: "offset", msg: "must be a valid integer"}
		}

		if offset < 0 {
			return nil, &paramError{param: "offset", msg: "must be >= 0"}
		}

		params.offset = offset
	}

	return params, nil
}

// mapClientToSummary converts a domain Client to an API ClientSummary.
func mapClientToSummary(client reporting.Client) ClientSummary {
	return ClientSummary{
		ID:        strconv.FormatInt(client.ID, 10),
		ClientID:  client.ClientID,
		Name:      client.Name,
		Country:   client.Country,
		City:      client.City,
		EventDate: client.EventDate.Format(eventDateLayout),
		CreatedAt: client.CreatedAt,
		UpdatedAt: client.UpdatedAt,
	}
}
