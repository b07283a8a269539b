package inventory

import (
	"errors"
	"time"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hotemission"
	"github.com/breatheroute/emissions/internal/los"
	"github.com/breatheroute/emissions/internal/trafficcycle"
)

// Failure stages.
const (
	StageHot       = "hot"
	StageColdStart = "cold_start"
	StageDate      = "date"
)

// Failure identifies a link or date that could not be computed.
type Failure struct {
	Date   time.Time
	LinkID string // empty for date-level failures
	Stage  string
	Error  string
}

// Report is the outcome of an inventory run.
type Report struct {
	RunID      string
	From       time.Time
	To         time.Time
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time

	// Dates is the number of dates in the range, Completed the number of
	// dates computed without any failure and Skipped the number never
	// dispatched because the run was cancelled.
	Dates     int
	Completed int
	Skipped   int

	// Links holds the emissions per link summed over all computed dates.
	Links map[string]emission.Result

	// Hourly holds network totals per date and hour in ModeHourly.
	Hourly map[string][24]emission.Result

	VehicleKilometres emission.VehicleKilometres

	// ColdStart holds cold-start totals per vehicle class and pollutant.
	ColdStart emission.Result

	Failures []Failure
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Totals sums the link results over the network.
func (r *Report) Totals() emission.Result {
	total := make(emission.Result)
	for _, res := range r.Links {
		total.Add(res)
	}
	return total
}

// FailedLinks returns the IDs of links with at least one failure.
func (r *Report) FailedLinks() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range r.Failures {
		if f.LinkID == "" || seen[f.LinkID] {
			continue
		}
		seen[f.LinkID] = true
		ids = append(ids, f.LinkID)
	}
	return ids
}

// Summary returns the listing view of the report.
func (r *Report) Summary() RunSummary {
	return RunSummary{
		RunID:      r.RunID,
		From:       r.From,
		To:         r.To,
		Mode:       r.Mode,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Dates:      r.Dates,
		Completed:  r.Completed,
		Skipped:    r.Skipped,
		Failures:   len(r.Failures),
	}
}

// RunSummary is the stored header of a run.
type RunSummary struct {
	RunID      string
	From       time.Time
	To         time.Time
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time
	Dates      int
	Completed  int
	Skipped    int
	Failures   int
}

// failureCause maps an error to a low-cardinality metric label.
func failureCause(err error) string {
	switch {
	case errors.Is(err, emission.ErrMissingCycleData):
		return "missing_cycle_data"
	case errors.Is(err, emission.ErrMissingFactor):
		return "missing_factor"
	case errors.Is(err, emission.ErrDegenerateShareCorrection):
		return "degenerate_share_correction"
	case errors.Is(err, emission.ErrInputKeyMismatch):
		return "input_key_mismatch"
	case errors.Is(err, los.ErrUnknownRoadType), errors.Is(err, trafficcycle.ErrUnknownRoadType):
		return "unknown_road_type"
	case errors.Is(err, los.ErrMissingCarUnit):
		return "missing_car_unit"
	case errors.Is(err, hotemission.ErrInvalidLink), errors.Is(err, los.ErrInvalidSpeed):
		return "invalid_link"
	default:
		return "other"
	}
}
