package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/calendar"
	"github.com/breatheroute/emissions/internal/emission"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		raw     int
		weekday int
		want    emission.DayType
	}{
		{"tuesday workday", calendar.RawWorkday, 1, emission.NormWeekday},
		{"thursday workday", calendar.RawWorkday, 3, emission.NormWeekday},
		{"monday workday", calendar.RawWorkday, 0, emission.Weekday},
		{"friday workday", calendar.RawWorkday, 4, emission.Weekday},
		{"vacation", calendar.RawVacation, 2, emission.WeekdayVacation},
		{"bridge day", calendar.RawBridge, 4, emission.WeekdayVacation},
		{"saturday", calendar.RawSaturday, 5, emission.Saturday},
		{"sunday", calendar.RawHoliday, 6, emission.SundayOrHoliday},
		{"holiday on wednesday", calendar.RawHoliday, 2, emission.SundayOrHoliday},
		{"sunday in vacation", calendar.RawVacation, 6, emission.SundayOrHoliday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calendar.Combine(tt.raw, tt.weekday)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCombine_Unclassified(t *testing.T) {
	_, err := calendar.Combine(calendar.RawSaturday, 2)
	assert.ErrorIs(t, err, calendar.ErrUnclassifiedDate)
}

func TestMondayBased(t *testing.T) {
	assert.Equal(t, 0, calendar.MondayBased(time.Monday))
	assert.Equal(t, 5, calendar.MondayBased(time.Saturday))
	assert.Equal(t, 6, calendar.MondayBased(time.Sunday))
}

func TestTable(t *testing.T) {
	days := calendar.Generate(date(2019, 1, 1), date(2019, 1, 31),
		[]time.Time{date(2019, 1, 1), date(2019, 1, 6)},
		[]time.Time{date(2019, 1, 2), date(2019, 1, 3), date(2019, 1, 4)},
	)
	table, err := calendar.NewTable(days)
	require.NoError(t, err)
	assert.Equal(t, 31, table.Len())

	first, last := table.Range()
	assert.Equal(t, date(2019, 1, 1), first)
	assert.Equal(t, date(2019, 1, 31), last)

	cases := map[time.Time]emission.DayType{
		date(2019, 1, 1):  emission.SundayOrHoliday, // New Year
		date(2019, 1, 2):  emission.WeekdayVacation,
		date(2019, 1, 5):  emission.Saturday,
		date(2019, 1, 6):  emission.SundayOrHoliday,
		date(2019, 1, 7):  emission.Weekday,
		date(2019, 1, 9):  emission.NormWeekday,
		date(2019, 1, 11): emission.Weekday,
	}
	for d, want := range cases {
		got, err := table.DayType(d.Add(13 * time.Hour))
		require.NoError(t, err)
		assert.Equal(t, want, got, emission.DateKey(d))
	}

	wd, err := table.Weekday(date(2019, 1, 9))
	require.NoError(t, err)
	assert.Equal(t, 2, wd)
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{name: "month", from: date(2019, 1, 1), to: date(2019, 1, 31), want: 31},
		{name: "leap year", from: date(2020, 1, 1), to: date(2020, 12, 31), want: 366},
		{name: "single day", from: date(2019, 3, 31), to: date(2019, 3, 31), want: 1},
		{name: "reversed range", from: date(2019, 2, 1), to: date(2019, 1, 1), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := calendar.Generate(tt.from, tt.to, nil, nil)
			require.Len(t, days, tt.want)
			for i := 1; i < len(days); i++ {
				assert.Equal(t, days[i-1].Date.AddDate(0, 0, 1), days[i].Date)
			}
		})
	}
}

func TestTable_UnknownDate(t *testing.T) {
	table, err := calendar.NewTable(calendar.Generate(date(2019, 1, 1), date(2019, 1, 2), nil, nil))
	require.NoError(t, err)

	_, err = table.DayType(date(2020, 1, 1))
	assert.ErrorIs(t, err, calendar.ErrUnknownDate)

	_, err = table.Weekday(date(2020, 1, 1))
	assert.ErrorIs(t, err, calendar.ErrUnknownDate)
}

func TestNewTable_RejectsInvalidRow(t *testing.T) {
	_, err := calendar.NewTable([]calendar.Day{{Date: date(2019, 1, 1), RawDayType: 9, Weekday: 1}})
	assert.ErrorIs(t, err, calendar.ErrUnclassifiedDate)
}
