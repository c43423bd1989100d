// Package api provides the HTTP API server for the GeoPulse reporting service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geopulse-io/geopulse/internal/api/middleware"
)

const (
	healthCheckTimeout     = 2 * time.Second
	contentTypeProblemJSON = "application/problem+json"
)

type (
	// HealthStatus is the GET /health response body.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route pairs a mux pattern with its handler. Patterns may carry a
	// Go 1.22 method prefix ("GET /ping") or be a bare path.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)

func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Probe endpoints and the 404 catch-all bypass auth and rate limiting.
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /health", s.handleHealth},
		Route{"/", s.handleNotFound},
	)

	// Reporting endpoints: the read-side contract the display layer polls.
	mux.HandleFunc("GET /api/v1/clients", s.handleListClients)
	mux.HandleFunc("GET /api/v1/stats/countries", s.handleGetCountryStats)
	mux.HandleFunc("GET /api/v1/stats/cities", s.handleGetCityStats)
	mux.HandleFunc("GET /api/v1/reports/summary", s.handleGetReportSummary)
	mux.HandleFunc("GET /api/v1/reports/activity", s.handleGetRecentActivity)
}

// registerPublicRoutes registers routes on the mux and marks their paths as
// public so the auth middleware lets them through unauthenticated. Only probe
// endpoints belong here; anything that serves data stays behind a key.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		path := publicPath(route.Path)
		if path == "" {
			s.logger.Warn("Skipping malformed public route", slog.String("pattern", route.Path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// publicPath strips an optional method prefix from a mux pattern. The auth
// middleware matches on r.URL.Path, which never carries the method, so
// "GET /ping" must be registered as "/ping".
func publicPath(pattern string) string {
	method, rest, found := strings.Cut(pattern, " ")
	if !found {
		return strings.TrimSpace(pattern)
	}

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return strings.TrimSpace(rest)
	default:
		return strings.TrimSpace(pattern)
	}
}

// writePlain sends a plain-text body, logging write failures rather than
// surfacing them: by this point the status line is already on the wire.
func (s *Server) writePlain(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// handlePing is the liveness probe: it answers as long as the process is up.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-GeoPulse-Version", serviceVersion)
	s.writePlain(w, r, http.StatusOK, "pong")
}

// handleReady is the readiness probe. It pings the report store with a short
// deadline and returns 503 until the store answers, so the pod only receives
// traffic once queries can actually be served.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.reportStore.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
		s.writePlain(w, r, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	s.writePlain(w, r, http.StatusOK, "ready")
}

// handleHealth reports service identity and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-GeoPulse-Version", serviceVersion)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error("Failed to encode health response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound answers unmatched paths with a problem document.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}
