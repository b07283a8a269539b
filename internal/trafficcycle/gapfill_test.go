package trafficcycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/emission"
)

// axisStart is a Monday, so every block of seven days is one ISO week.
var axisStart = time.Date(2019, 1, 7, 0, 0, 0, 0, time.UTC)

func weekdaysOnly(time.Time) (emission.DayType, error) {
	return emission.Weekday, nil
}

// weeklyAxis spans the given number of full ISO weeks with a single day type.
func weeklyAxis(weeks int) *dateAxis {
	return newDateAxis(axisStart, axisStart.AddDate(0, 0, 7*weeks-1), weekdaysOnly)
}

func dayOf(week, weekday int) time.Time {
	return axisStart.AddDate(0, 0, 7*week+weekday)
}

// observeWeeks records value(week) for every day of weeks [from, to).
func observeWeeks(from, to int, value func(week int) float64) map[string]float64 {
	observed := make(map[string]float64)
	for w := from; w < to; w++ {
		for d := 0; d < 7; d++ {
			observed[emission.DateKey(dayOf(w, d))] = value(w)
		}
	}
	return observed
}

func TestFill_CenteredWeeklyMean(t *testing.T) {
	axis := weeklyAxis(9)
	observed := observeWeeks(0, 9, func(w int) float64 { return float64(w * w) })
	wednesday := emission.DateKey(dayOf(4, 2))
	delete(observed, wednesday)

	filled := axis.fill(observed)

	// weeks 2..6 average (4+9+16+25+36)/5, not the week's own mean of 16
	assert.InDelta(t, 18.0, filled[wednesday], 1e-9)
	assert.Equal(t, 16.0, filled[emission.DateKey(dayOf(4, 1))])
	assert.Len(t, filled, 63)
}

func TestFill_BackFillsLeadingGap(t *testing.T) {
	axis := weeklyAxis(9)
	observed := observeWeeks(3, 9, func(w int) float64 { return float64(w) })

	filled := axis.fill(observed)

	tests := []struct {
		week int
		want float64
	}{
		{week: 0, want: 3},   // empty window, back-filled from week 1
		{week: 1, want: 3},   // window reaches week 3
		{week: 2, want: 3.5}, // weeks 3 and 4
		{week: 3, want: 3},   // observed
	}

	for _, tt := range tests {
		for d := 0; d < 7; d++ {
			v, ok := filled[emission.DateKey(dayOf(tt.week, d))]
			require.True(t, ok, "week %d day %d", tt.week, d)
			assert.InDelta(t, tt.want, v, 1e-9, "week %d day %d", tt.week, d)
		}
	}
}

func TestFill_TrailingGapNotExtrapolated(t *testing.T) {
	axis := weeklyAxis(9)
	observed := observeWeeks(0, 4, func(w int) float64 { return float64(w) })

	filled := axis.fill(observed)

	// weeks 4 and 5 still see observed weeks within the window
	assert.InDelta(t, 2.5, filled[emission.DateKey(dayOf(4, 0))], 1e-9)
	assert.InDelta(t, 3.0, filled[emission.DateKey(dayOf(5, 6))], 1e-9)

	for w := 6; w < 9; w++ {
		for d := 0; d < 7; d++ {
			_, ok := filled[emission.DateKey(dayOf(w, d))]
			assert.False(t, ok, "week %d day %d", w, d)
		}
	}
	assert.Len(t, filled, 6*7)
}

func TestFill_SeparatesDayTypes(t *testing.T) {
	dayType := func(d time.Time) (emission.DayType, error) {
		if d.Weekday() == time.Saturday {
			return emission.Saturday, nil
		}
		return emission.Weekday, nil
	}
	axis := newDateAxis(axisStart, axisStart.AddDate(0, 0, 13), dayType)

	observed := make(map[string]float64)
	for i := 0; i < 14; i++ {
		d := axisStart.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday {
			observed[emission.DateKey(d)] = 50
			continue
		}
		observed[emission.DateKey(d)] = 100
	}
	secondSaturday := emission.DateKey(dayOf(1, 5))
	delete(observed, secondSaturday)

	filled := axis.fill(observed)

	assert.Equal(t, 50.0, filled[secondSaturday])
}

func TestFill_SkipsUnknownDays(t *testing.T) {
	unknown := dayOf(0, 3)
	dayType := func(d time.Time) (emission.DayType, error) {
		if d.Equal(unknown) {
			return 0, errors.New("not in calendar")
		}
		return emission.Weekday, nil
	}
	axis := newDateAxis(axisStart, axisStart.AddDate(0, 0, 6), dayType)
	observed := observeWeeks(0, 1, func(int) float64 { return 7 })
	delete(observed, emission.DateKey(unknown))

	filled := axis.fill(observed)

	_, ok := filled[emission.DateKey(unknown)]
	assert.False(t, ok)
	assert.Len(t, filled, 6)
}

func TestFill_NoObservations(t *testing.T) {
	assert.Nil(t, weeklyAxis(2).fill(nil))
}
