package inventory

import (
	"sort"
	"sync"

	"github.com/breatheroute/emissions/internal/emission"
)

// DateResult holds everything computed for one date.
type DateResult struct {
	Date  string
	Links map[string]emission.Result

	// Hourly is the network total per hour, set in ModeHourly.
	Hourly *[24]emission.Result

	VehicleKilometres emission.VehicleKilometres
	ColdStart         emission.Result
	Failures          []Failure
}

// Accumulator merges date results. Merging is associative and commutative,
// so dates may arrive in any order. It is safe for concurrent use.
type Accumulator struct {
	mu        sync.Mutex
	links     map[string]emission.Result
	hourly    map[string][24]emission.Result
	vkt       emission.VehicleKilometres
	coldStart emission.Result
	failures  []Failure
	completed int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		links:     make(map[string]emission.Result),
		hourly:    make(map[string][24]emission.Result),
		vkt:       make(emission.VehicleKilometres),
		coldStart: make(emission.Result),
	}
}

// Merge adds a date result.
func (a *Accumulator) Merge(d DateResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, res := range d.Links {
		total, ok := a.links[id]
		if !ok {
			total = make(emission.Result, len(res))
			a.links[id] = total
		}
		total.Add(res)
	}

	if d.Hourly != nil {
		merged := a.hourly[d.Date]
		for h, res := range d.Hourly {
			if merged[h] == nil {
				merged[h] = make(emission.Result, len(res))
			}
			merged[h].Add(res)
		}
		a.hourly[d.Date] = merged
	}

	a.vkt.Add(d.VehicleKilometres)
	a.coldStart.Add(d.ColdStart)
	a.failures = append(a.failures, d.Failures...)
	if len(d.Failures) == 0 {
		a.completed++
	}
}

// Report returns a report holding a copy of the accumulated values.
func (a *Accumulator) Report() *Report {
	report := &Report{}
	a.fill(report)
	return report
}

// fill copies the accumulated values into report. Failures are ordered by
// date, then link.
func (a *Accumulator) fill(report *Report) {
	a.mu.Lock()
	defer a.mu.Unlock()

	report.Links = make(map[string]emission.Result, len(a.links))
	for id, res := range a.links {
		report.Links[id] = res.Clone()
	}

	if len(a.hourly) > 0 {
		report.Hourly = make(map[string][24]emission.Result, len(a.hourly))
		for date, hours := range a.hourly {
			var c [24]emission.Result
			for h, res := range hours {
				c[h] = res.Clone()
			}
			report.Hourly[date] = c
		}
	}

	report.VehicleKilometres = make(emission.VehicleKilometres, len(a.vkt))
	report.VehicleKilometres.Add(a.vkt)
	report.ColdStart = a.coldStart.Clone()

	report.Failures = append([]Failure(nil), a.failures...)
	sort.SliceStable(report.Failures, func(i, j int) bool {
		fi, fj := report.Failures[i], report.Failures[j]
		if !fi.Date.Equal(fj.Date) {
			return fi.Date.Before(fj.Date)
		}
		return fi.LinkID < fj.LinkID
	})

	report.Completed = a.completed
}
