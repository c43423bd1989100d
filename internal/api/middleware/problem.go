package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// problemTypeFormat is the URI template for problem type documents, keyed by
// HTTP status code.
const problemTypeFormat = "https://geopulse.io/problems/%d"

// writeProblem sends an RFC 7807 problem document. It lives here rather than
// in the api package so middleware can reject requests without an import
// cycle. The correlation_id member is this package's one extension field.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail, correlationID string) error {
	problem := map[string]any{
		"type":           fmt.Sprintf(problemTypeFormat, status),
		"title":          http.StatusText(status),
		"status":         status,
		"detail":         detail,
		"instance":       r.URL.Path,
		"correlation_id": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(problem)
}

// respondProblem writes a problem document and degrades to plain text when
// encoding fails mid-response.
func respondProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, detail string) {
	correlationID := GetCorrelationID(r.Context())

	if err := writeProblem(w, r, status, detail, correlationID); err != nil {
		logger.Error("failed to encode problem response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("detail", detail),
			slog.Any("error", err),
		)

		http.Error(w, detail, status)
	}
}
