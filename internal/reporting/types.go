// Package reporting provides the read-side query contract for ingested
// client records: listings, geographic rollups, and ingest activity.
package reporting

import "time"

type (
	// Client is the read model for one stored client record.
	//
	// This maps to the clients table. ClientID is the identity key the
	// ingestion pipeline upserted on (explicit id column or synthesized
	// "auto_<n>"); ID is the surrogate database key and only matters for
	// stable ordering ties.
	//
	// CreatedAt is set once when the key first appears; UpdatedAt moves on
	// every overwrite. A record replayed from a re-dropped file therefore
	// keeps its original CreatedAt.
	Client struct {
		ID        int64     `json:"id"`
		ClientID  string    `json:"clientId"`
		Name      string    `json:"name"`
		Country   string    `json:"country"`
		City      string    `json:"city"`
		EventDate time.Time `json:"eventDate"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Pagination specifies pagination parameters for list queries.
	//
	// Limit is the maximum number of results to return; Offset is the number
	// of results to skip. A nil *Pagination on the query methods means no
	// pagination (all rows).
	Pagination struct {
		Limit  int
		Offset int
	}

	// ClientQueryResult contains a page of clients plus the total row count
	// for that query, so handlers can build pagination metadata without a
	// second round trip.
	ClientQueryResult struct {
		Clients []Client
		Total   int
	}

	// CountryStat is one row of the country_stats view: how many clients and
	// how many distinct cities a country has.
	CountryStat struct {
		Country     string `json:"country"`
		ClientCount int    `json:"clientCount"`
		CityCount   int    `json:"cityCount"`
	}

	// CityStat is one row of the city_stats view: per-city client count plus
	// the span of event dates seen for that city.
	CityStat struct {
		Country     string    `json:"country"`
		City        string    `json:"city"`
		ClientCount int       `json:"clientCount"`
		FirstDate   time.Time `json:"firstDate"`
		LastDate    time.Time `json:"lastDate"`
	}

	// ActivityPoint is one day of ingest activity: how many client records
	// were first stored on that calendar date. Overwrites of existing keys
	// do not count; they move updated_at, not created_at.
	ActivityPoint struct {
		Date        time.Time `json:"date"`
		ClientCount int       `json:"clientCount"`
	}
)
