package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
)

// ProblemDetail is an RFC 7807 problem document. Every error the API returns
// takes this shape, so consumers parse one structure regardless of status.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail builds a problem document for the given status. Type is a
// stable per-status URI and Title the standard status text; Instance and
// CorrelationID are filled at write time from the request.
func NewProblemDetail(status int, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://geopulse.io/problems/%d", status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// InternalServerError builds a 500 problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, detail)
}

// BadRequest builds a 400 problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, detail)
}

// NotFound builds a 404 problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, detail)
}

// WriteErrorResponse completes the problem document from the request and
// writes it as application/problem+json.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	if problem.CorrelationID == "" {
		problem.CorrelationID = middleware.GetCorrelationID(r.Context())
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		// Headers are already sent, so the bare fallback below is all
		// that is left to do for the client.
		logger.Error("Problem document encoding failed",
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", problem.CorrelationID),
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
