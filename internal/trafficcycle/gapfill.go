package trafficcycle

import (
	"math"
	"time"

	"github.com/breatheroute/emissions/internal/emission"
)

const gapFillWindow = 5

type isoWeek struct {
	year, week int
}

// dateAxis is the full daily range the gap filler works on, with the day
// type and ISO week of every date resolved once.
type dateAxis struct {
	dates    []time.Time
	keys     []string
	weeks    []isoWeek
	dayTypes []emission.DayType
	known    []bool
}

func newDateAxis(first, last time.Time, dayType func(time.Time) (emission.DayType, error)) *dateAxis {
	a := &dateAxis{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		y, w := d.ISOWeek()
		dt, err := dayType(d)
		a.dates = append(a.dates, d)
		a.keys = append(a.keys, emission.DateKey(d))
		a.weeks = append(a.weeks, isoWeek{y, w})
		a.dayTypes = append(a.dayTypes, dt)
		a.known = append(a.known, err == nil)
	}
	return a
}

// fill completes a daily series over the axis. Missing days take the
// smoothed weekly mean of their day type: observed values are averaged per
// ISO week, smoothed with a centered window over neighbouring weeks of the
// same day type and back-filled. Observed values are never changed and days
// outside the axis are never produced.
func (a *dateAxis) fill(observed map[string]float64) map[string]float64 {
	if len(observed) == 0 {
		return nil
	}

	type group struct {
		sum float64
		n   int
	}

	// weekly order per day type, chronological because the axis is
	weekOrder := make(map[emission.DayType][]isoWeek)
	groups := make(map[emission.DayType]map[isoWeek]*group)
	for i := range a.dates {
		if !a.known[i] {
			continue
		}
		dt, wk := a.dayTypes[i], a.weeks[i]
		if groups[dt] == nil {
			groups[dt] = make(map[isoWeek]*group)
		}
		g, ok := groups[dt][wk]
		if !ok {
			g = &group{}
			groups[dt][wk] = g
			weekOrder[dt] = append(weekOrder[dt], wk)
		}
		if v, ok := observed[a.keys[i]]; ok && !math.IsNaN(v) {
			g.sum += v
			g.n++
		}
	}

	smoothed := make(map[emission.DayType]map[isoWeek]float64, len(weekOrder))
	for dt, weeks := range weekOrder {
		means := make([]float64, len(weeks))
		for i, wk := range weeks {
			g := groups[dt][wk]
			if g.n == 0 {
				means[i] = math.NaN()
				continue
			}
			means[i] = g.sum / float64(g.n)
		}
		means = rollingMean(means, gapFillWindow)
		backFill(means)

		smoothed[dt] = make(map[isoWeek]float64, len(weeks))
		for i, wk := range weeks {
			smoothed[dt][wk] = means[i]
		}
	}

	filled := make(map[string]float64, len(a.dates))
	for i, key := range a.keys {
		if v, ok := observed[key]; ok && !math.IsNaN(v) {
			filled[key] = v
			continue
		}
		if !a.known[i] {
			continue
		}
		if v := smoothed[a.dayTypes[i]][a.weeks[i]]; !math.IsNaN(v) {
			filled[key] = v
		}
	}
	return filled
}
