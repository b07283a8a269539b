// Package calendar classifies dates into traffic planning day types.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/breatheroute/emissions/internal/emission"
)

// Calendar errors.
var (
	ErrUnknownDate      = errors.New("date not in calendar")
	ErrUnclassifiedDate = errors.New("date cannot be classified")
)

// Raw day type codes as maintained in the calendar sheets.
const (
	RawWorkday  = 1
	RawSaturday = 2
	RawHoliday  = 3 // Sunday or public holiday
	RawVacation = 4 // weekday in school vacation
	RawBridge   = 5 // bridge day between holiday and weekend
)

// Calendar resolves day types and weekdays for dates.
type Calendar interface {
	// DayType returns the combined traffic day type of date.
	DayType(date time.Time) (emission.DayType, error)

	// Weekday returns 0 for Monday through 6 for Sunday.
	Weekday(date time.Time) (int, error)
}

// Day is one row of the calendar table.
type Day struct {
	Date       time.Time
	RawDayType int
	Weekday    int // 0 = Monday
}

// Combine derives the traffic day type from a raw calendar code and weekday.
// Sundays and holidays take precedence over every other rule.
func Combine(raw, weekday int) (emission.DayType, error) {
	switch {
	case raw == RawHoliday || weekday == 6:
		return emission.SundayOrHoliday, nil
	case raw == RawWorkday && weekday >= 1 && weekday <= 3:
		return emission.NormWeekday, nil
	case raw == RawWorkday:
		return emission.Weekday, nil
	case raw == RawVacation || raw == RawBridge:
		return emission.WeekdayVacation, nil
	case raw == RawSaturday && weekday == 5:
		return emission.Saturday, nil
	default:
		return 0, fmt.Errorf("%w: raw day type %d on weekday %d", ErrUnclassifiedDate, raw, weekday)
	}
}

// MondayBased converts a time.Weekday to 0 = Monday through 6 = Sunday.
func MondayBased(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Table is an in-memory Calendar backed by calendar rows.
type Table struct {
	days     map[string]Day
	dayTypes map[string]emission.DayType
	first    time.Time
	last     time.Time
}

// NewTable builds a Table. Every row must be classifiable.
func NewTable(days []Day) (*Table, error) {
	t := &Table{
		days:     make(map[string]Day, len(days)),
		dayTypes: make(map[string]emission.DayType, len(days)),
	}

	for _, d := range days {
		date := emission.Day(d.Date)
		dt, err := Combine(d.RawDayType, d.Weekday)
		if err != nil {
			return nil, fmt.Errorf("calendar row %s: %w", emission.DateKey(date), err)
		}

		key := emission.DateKey(date)
		d.Date = date
		t.days[key] = d
		t.dayTypes[key] = dt

		if t.first.IsZero() || date.Before(t.first) {
			t.first = date
		}
		if date.After(t.last) {
			t.last = date
		}
	}

	return t, nil
}

// DayType implements Calendar.
func (t *Table) DayType(date time.Time) (emission.DayType, error) {
	dt, ok := t.dayTypes[emission.DateKey(emission.Day(date))]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDate, emission.DateKey(date))
	}
	return dt, nil
}

// Weekday implements Calendar.
func (t *Table) Weekday(date time.Time) (int, error) {
	d, ok := t.days[emission.DateKey(emission.Day(date))]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDate, emission.DateKey(date))
	}
	return d.Weekday, nil
}

// Range returns the first and last date covered by the table.
func (t *Table) Range() (first, last time.Time) {
	return t.first, t.last
}

// Len returns the number of days in the table.
func (t *Table) Len() int {
	return len(t.days)
}

// Generate builds calendar rows for [from, to] from weekdays, a list of
// public holidays and a list of vacation days. Vacation weekdays become
// RawVacation; holidays win over vacations.
func Generate(from, to time.Time, holidays, vacations []time.Time) []Day {
	holidaySet := dateSet(holidays)
	vacationSet := dateSet(vacations)

	var days []Day
	for d := emission.Day(from); !d.After(emission.Day(to)); d = d.AddDate(0, 0, 1) {
		key := emission.DateKey(d)
		weekday := MondayBased(d.Weekday())

		raw := RawWorkday
		switch {
		case holidaySet[key] || weekday == 6:
			raw = RawHoliday
		case weekday == 5:
			raw = RawSaturday
		case vacationSet[key]:
			raw = RawVacation
		}

		days = append(days, Day{Date: d, RawDayType: raw, Weekday: weekday})
	}
	return days
}

func dateSet(dates []time.Time) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[emission.DateKey(emission.Day(d))] = true
	}
	return set
}

// Ensure Table implements Calendar interface.
var _ Calendar = (*Table)(nil)
