// Package ingest defines the canonical validated record types that a
// forecast version's inputs are made of. Parsing raw tenant feeds into
// these shapes is out of scope; this package only fixes the contract the
// rest of the system depends on.
package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Depot is a fixed location tours originate and terminate at.
type Depot struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	TimeZone string    `json:"time_zone"`
}

// Driver is a schedulable resource with a home depot and work-time limits.
type Driver struct {
	ID              uuid.UUID `json:"id"`
	ExternalID      string    `json:"external_id"`
	Name            string    `json:"name"`
	HomeDepotID     uuid.UUID `json:"home_depot_id"`
	MaxWeeklyHours  float64   `json:"max_weekly_hours"`
	MaxDailySpanMin int       `json:"max_daily_span_minutes"`
	Qualifications  []string  `json:"qualifications"`
}

// Order is a single stop to be served: a pickup, delivery, or both.
type Order struct {
	ID           uuid.UUID `json:"id"`
	ExternalID   string    `json:"external_id"`
	DepotID      uuid.UUID `json:"depot_id"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	ServiceMin   int       `json:"service_minutes"`
	DemandUnits  float64   `json:"demand_units"`
	Requirements []string  `json:"requirements"`
}

// Tour is a candidate ordered sequence of orders a single driver could
// serve; the solver chooses how to actually assign orders to drivers, but
// ingestion supplies tours as the unit of demand to cover.
type Tour struct {
	ID      uuid.UUID   `json:"id"`
	DepotID uuid.UUID   `json:"depot_id"`
	OrderID []uuid.UUID `json:"order_ids"`
}

// ForecastVersion is the full canonical input bundle a plan is drafted
// against: everything start_solve needs to produce assignments and audit
// counts.
type ForecastVersion struct {
	ID      uuid.UUID `json:"id"`
	SiteID  uuid.UUID `json:"site_id"`
	Depots  []Depot   `json:"depots"`
	Drivers []Driver  `json:"drivers"`
	Orders  []Order   `json:"orders"`
	Tours   []Tour    `json:"tours"`
}
