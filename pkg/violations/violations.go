// Package violations implements C7's compute_violations: evaluating a
// plan's assignments against a named constraint set (coverage, rest,
// overlap, span, fatigue, weekly hours) and classifying each finding as
// BLOCK or WARN.
package violations

import (
	"sort"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/ingest"
	"github.com/solvereign/solvereign/pkg/solver"
)

// Severity classifies a single finding.
type Severity string

const (
	Block Severity = "BLOCK"
	Warn  Severity = "WARN"
)

// Violation is one rule finding against a specific driver or order.
type Violation struct {
	Rule     string    `json:"rule"`
	Severity Severity  `json:"severity"`
	DriverID uuid.UUID `json:"driver_id,omitempty"`
	OrderID  uuid.UUID `json:"order_id,omitempty"`
	Detail   string    `json:"detail"`
}

// Result is compute_violations' return shape.
type Result struct {
	BlockCount int         `json:"block_count"`
	WarnCount  int         `json:"warn_count"`
	Details    []Violation `json:"details"`
}

// Policy holds the tunable thresholds a named constraint profile
// supplies; it is content-addressed via policy_hash by the caller and
// snapshotted into the evidence pack at publish time.
type Policy struct {
	MinRestMinutes     int
	MaxDailySpanMinute int
	MaxConsecutiveDays int
}

// DefaultPolicy matches common roster-compliance baselines.
var DefaultPolicy = Policy{
	MinRestMinutes:     660, // 11 hours
	MaxDailySpanMinute: 780, // 13 hours
	MaxConsecutiveDays: 6,
}

// Compute evaluates result against forecast under policy, producing the
// exact rule set named in spec 4.7: coverage, rest, overlap, span,
// fatigue, weekly hours.
func Compute(forecast ingest.ForecastVersion, result solver.Result, policy Policy) Result {
	var details []Violation

	details = append(details, coverageViolations(result)...)

	byDriver := groupByDriver(result.Assignments)
	ordersByID := make(map[uuid.UUID]ingest.Order, len(forecast.Orders))
	for _, o := range forecast.Orders {
		ordersByID[o.ID] = o
	}
	driversByID := make(map[uuid.UUID]ingest.Driver, len(forecast.Drivers))
	for _, d := range forecast.Drivers {
		driversByID[d.ID] = d
	}

	for driverID, assignments := range byDriver {
		orders := ordersForDriver(assignments, ordersByID)
		sort.Slice(orders, func(i, j int) bool { return orders[i].WindowStart.Before(orders[j].WindowStart) })

		details = append(details, overlapViolations(driverID, orders)...)
		details = append(details, spanViolations(driverID, orders, policy)...)
		details = append(details, restViolations(driverID, orders, policy)...)
		details = append(details, weeklyHoursViolations(driverID, orders, driversByID[driverID])...)
		details = append(details, fatigueViolations(driverID, orders, policy)...)
	}

	var r Result
	r.Details = details
	for _, v := range details {
		if v.Severity == Block {
			r.BlockCount++
		} else {
			r.WarnCount++
		}
	}
	return r
}

func groupByDriver(assignments []solver.Assignment) map[uuid.UUID][]solver.Assignment {
	out := make(map[uuid.UUID][]solver.Assignment)
	for _, a := range assignments {
		out[a.DriverID] = append(out[a.DriverID], a)
	}
	return out
}

func ordersForDriver(assignments []solver.Assignment, ordersByID map[uuid.UUID]ingest.Order) []ingest.Order {
	out := make([]ingest.Order, 0, len(assignments))
	for _, a := range assignments {
		if o, ok := ordersByID[a.OrderID]; ok {
			out = append(out, o)
		}
	}
	return out
}

// coverageViolations: every order the solver left unassigned blocks
// publish, since the plan does not actually serve the demand.
func coverageViolations(result solver.Result) []Violation {
	var out []Violation
	for _, orderID := range result.Unassigned {
		out = append(out, Violation{Rule: "coverage", Severity: Block, OrderID: orderID, Detail: "order has no assigned driver"})
	}
	return out
}

// overlapViolations: a driver cannot serve two orders whose time windows
// intersect.
func overlapViolations(driverID uuid.UUID, orders []ingest.Order) []Violation {
	var out []Violation
	for i := 1; i < len(orders); i++ {
		if orders[i].WindowStart.Before(orders[i-1].WindowEnd) {
			out = append(out, Violation{
				Rule: "overlap", Severity: Block, DriverID: driverID, OrderID: orders[i].ID,
				Detail: "order window overlaps a preceding assignment for the same driver",
			})
		}
	}
	return out
}

// spanViolations: the elapsed time from a driver's first window start to
// their last window end on a day must not exceed the policy's daily span.
func spanViolations(driverID uuid.UUID, orders []ingest.Order, policy Policy) []Violation {
	byDay := make(map[string][]ingest.Order)
	var days []string
	for _, o := range orders {
		day := o.WindowStart.UTC().Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], o)
	}

	var out []Violation
	for _, day := range days {
		dayOrders := byDay[day]
		first, last := dayOrders[0].WindowStart, dayOrders[0].WindowEnd
		for _, o := range dayOrders[1:] {
			if o.WindowEnd.After(last) {
				last = o.WindowEnd
			}
		}
		spanMin := int(last.Sub(first).Minutes())
		if spanMin > policy.MaxDailySpanMinute {
			out = append(out, Violation{
				Rule: "span", Severity: Warn, DriverID: driverID,
				Detail: "driver's assigned span exceeds the policy daily span limit",
			})
		}
	}
	return out
}

// restViolations: consecutive assignments for a driver must leave at
// least the policy's minimum rest gap between one window's end and the
// next window's start.
func restViolations(driverID uuid.UUID, orders []ingest.Order, policy Policy) []Violation {
	var out []Violation
	for i := 1; i < len(orders); i++ {
		gapMin := int(orders[i].WindowStart.Sub(orders[i-1].WindowEnd).Minutes())
		if gapMin >= 0 && gapMin < policy.MinRestMinutes {
			out = append(out, Violation{
				Rule: "rest", Severity: Warn, DriverID: driverID, OrderID: orders[i].ID,
				Detail: "gap since the driver's prior assignment is below the minimum rest threshold",
			})
		}
	}
	return out
}

// weeklyHoursViolations: total service time assigned to a driver must
// not exceed their own contracted weekly hours.
func weeklyHoursViolations(driverID uuid.UUID, orders []ingest.Order, driver ingest.Driver) []Violation {
	var totalMin int
	for _, o := range orders {
		totalMin += o.ServiceMin
	}
	if driver.MaxWeeklyHours > 0 && float64(totalMin) > driver.MaxWeeklyHours*60 {
		return []Violation{{
			Rule: "weekly_hours", Severity: Block, DriverID: driverID,
			Detail: "assigned service minutes exceed the driver's max weekly hours",
		}}
	}
	return nil
}

// fatigueViolations: a driver assigned more distinct calendar days than
// the policy's consecutive-day limit is flagged for fatigue review. Day
// boundaries are derived from each order window's UTC date.
func fatigueViolations(driverID uuid.UUID, orders []ingest.Order, policy Policy) []Violation {
	days := make(map[string]struct{})
	for _, o := range orders {
		days[o.WindowStart.UTC().Format("2006-01-02")] = struct{}{}
	}
	if len(days) > policy.MaxConsecutiveDays {
		return []Violation{{
			Rule: "fatigue", Severity: Warn, DriverID: driverID,
			Detail: "driver spans more distinct working days than the policy consecutive-day limit",
		}}
	}
	return nil
}
