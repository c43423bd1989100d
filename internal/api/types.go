// Package api provides the HTTP API server for the GeoPulse reporting service.
package api

import (
	"time"
)

type (
	// ClientListResponse represents the response for GET /api/v1/clients.
	// Contains a paginated list of client records with pagination metadata.
	ClientListResponse struct {
		Clients []ClientSummary `json:"clients"`
		Total   int             `json:"total"`
		Limit   int             `json:"limit"`
		Offset  int             `json:"offset"`
	}

	// ClientSummary represents a single client record in the list view,
	// ordered by recency (most recently created first).
	//
	// This is separate from the domain model (reporting.Client) to decouple
	// the API contract from internal read models: the surrogate database id
	// is rendered as a string, and store timestamps are exposed under the
	// names the display layer polls for.
	ClientSummary struct {
		ID        string    `json:"id"`
		ClientID  string    `json:"clientId"`
		Name      string    `json:"name"`
		Country   string    `json:"country"`
		City      string    `json:"city"`
		EventDate string    `json:"eventDate"` // Calendar date, YYYY-MM-DD
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// CountryStatsResponse represents the response for GET /api/v1/stats/countries.
	// Rows are ordered by client count descending.
	CountryStatsResponse struct {
		Countries []CountryStatResponse `json:"countries"`
		Total     int                   `json:"total"`
	}

	// CountryStatResponse is one per-country aggregate row.
	CountryStatResponse struct {
		Country     string `json:"country"`
		ClientCount int    `json:"clientCount"`
		CityCount   int    `json:"cityCount"`
	}

	// CityStatsResponse represents the response for GET /api/v1/stats/cities.
	// Rows are ordered by client count descending.
	CityStatsResponse struct {
		Cities []CityStatResponse `json:"cities"`
		Total  int                `json:"total"`
	}

	// CityStatResponse is one per-city aggregate row. FirstDate and LastDate
	// span the event dates seen for that city.
	CityStatResponse struct {
		Country     string `json:"country"`
		City        string `json:"city"`
		ClientCount int    `json:"clientCount"`
		FirstDate   string `json:"firstDate"` // Calendar date, YYYY-MM-DD
		LastDate    string `json:"lastDate"`  // Calendar date, YYYY-MM-DD
	}

	// ActivityResponse represents the response for GET /api/v1/reports/activity.
	// One point per day with at least one newly stored client, oldest first.
	ActivityResponse struct {
		Days     int             `json:"days"`
		Activity []ActivityPoint `json:"activity"`
	}

	// ActivityPoint is one day of ingest activity.
	ActivityPoint struct {
		Date        string `json:"date"` // Calendar date, YYYY-MM-DD
		ClientCount int    `json:"clientCount"`
	}

	// ReportSummaryResponse represents the response for GET /api/v1/reports/summary.
	// A combined snapshot of every aggregate the display layer renders,
	// served from a TTL cache; Cached reports whether this response was
	// reused from a previous load, and GeneratedAt when the snapshot was
	// computed.
	ReportSummaryResponse struct {
		GeneratedAt  time.Time             `json:"generatedAt"`
		Cached       bool                  `json:"cached"`
		TotalClients int                   `json:"totalClients"`
		Countries    []CountryStatResponse `json:"countries"`
		Cities       []CityStatResponse    `json:"cities"`
		Activity     []ActivityPoint       `json:"activity"`
	}
)
