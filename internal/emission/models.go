// Package emission holds the domain types shared by the emission inventory
// components: vehicle classes, pollutants, congestion classes, road links and
// per-link emission results.
package emission

import (
	"errors"
	"math"
	"time"
)

// Computation errors. Every one of them is fatal for the affected link and date
// and must be reported instead of being replaced by a zero emission.
var (
	ErrMissingCycleData          = errors.New("no traffic cycle data")
	ErrDegenerateShareCorrection = errors.New("vehicle share correction is degenerate")
	ErrMissingFactor             = errors.New("emission factor not found")
	ErrInputKeyMismatch          = errors.New("vehicle class keys do not match")
)

// VehicleClass is an HBEFA vehicle category.
type VehicleClass string

const (
	PC  VehicleClass = "PC"  // passenger car
	LCV VehicleClass = "LCV" // light commercial vehicle
	HGV VehicleClass = "HGV" // heavy goods vehicle
	BUS VehicleClass = "BUS" // bus and coach
	MOT VehicleClass = "MOT" // motorcycle

	// Sum is the all-vehicle series found in counting data. It is never a
	// vehicle class of its own.
	Sum VehicleClass = "SUM"
)

// VehicleClasses lists the tracked vehicle classes in reporting order.
var VehicleClasses = []VehicleClass{PC, LCV, HGV, BUS, MOT}

// Tracked reports whether v is one of the five tracked vehicle classes.
func (v VehicleClass) Tracked() bool {
	for _, c := range VehicleClasses {
		if c == v {
			return true
		}
	}
	return false
}

// Pollutant is an HBEFA component code.
type Pollutant string

const (
	PollutantCO        Pollutant = "CO"
	PollutantNOx       Pollutant = "NOx"
	PollutantPM        Pollutant = "PM"
	PollutantCO2Rep    Pollutant = "CO2(rep)"
	PollutantCO2Total  Pollutant = "CO2(total)"
	PollutantNO2       Pollutant = "NO2"
	PollutantCH4       Pollutant = "CH4"
	PollutantBCExhaust Pollutant = "BC (exhaust)"
	PollutantCO2e      Pollutant = "CO2e"
)

// AllPollutants returns every component exported from HBEFA.
func AllPollutants() []Pollutant {
	return []Pollutant{
		PollutantCO, PollutantNOx, PollutantPM, PollutantCO2Rep, PollutantCO2Total,
		PollutantNO2, PollutantCH4, PollutantBCExhaust, PollutantCO2e,
	}
}

// CongestionClass is a level-of-service class, ordered by severity.
type CongestionClass int

const (
	Freeflow CongestionClass = iota
	Heavy
	Saturated
	StopAndGo
	StopAndGo2
)

// CongestionClasses lists all classes from least to most severe.
var CongestionClasses = []CongestionClass{Freeflow, Heavy, Saturated, StopAndGo, StopAndGo2}

// Label returns the HBEFA traffic situation suffix for the class.
func (c CongestionClass) Label() string {
	switch c {
	case Freeflow:
		return "Freeflow"
	case Heavy:
		return "Heavy"
	case Saturated:
		return "Satur."
	case StopAndGo:
		return "St+Go"
	case StopAndGo2:
		return "St+Go2"
	default:
		return "unknown"
	}
}

func (c CongestionClass) String() string {
	return c.Label()
}

// DayType is the traffic planning day type of a calendar date.
type DayType int

const (
	NormWeekday     DayType = iota // Tuesday to Thursday
	Weekday                        // Monday and Friday
	WeekdayVacation                // weekday in school vacation or bridge day
	Saturday
	SundayOrHoliday
)

func (d DayType) String() string {
	switch d {
	case NormWeekday:
		return "norm_weekday"
	case Weekday:
		return "weekday"
	case WeekdayVacation:
		return "weekday_vacation"
	case Saturday:
		return "saturday"
	case SundayOrHoliday:
		return "sunday_holiday"
	default:
		return "unknown"
	}
}

// RoadLink holds the static attributes of a traffic model link.
type RoadLink struct {
	ID string

	// RoadType selects thresholds, speeds and the HBEFA road abbreviation.
	RoadType string

	// ScalingRoadType joins the link to counting-derived cycles and shares.
	ScalingRoadType string

	// DailyTotalVolume is the modelled all-vehicle volume per day.
	DailyTotalVolume float64

	// HourlyCapacity is in passenger car units per hour.
	HourlyCapacity float64

	// DesignSpeed in km/h.
	DesignSpeed float64

	// Gradient in percent.
	Gradient float64

	HGVCorrection float64
	LCVCorrection float64

	// Length in meters.
	Length float64
}

// LengthKm returns the link length in kilometers.
func (l RoadLink) LengthKm() float64 {
	return l.Length / 1000
}

// VehicleVolumes maps vehicle classes to a daily or hourly volume.
type VehicleVolumes map[VehicleClass]float64

// Total sums the volumes of the tracked classes in a fixed order.
func (v VehicleVolumes) Total() float64 {
	var total float64
	for _, c := range VehicleClasses {
		total += v[c]
	}
	return total
}

// DiurnalCycle holds a normalized 24 hour shape per vehicle class.
type DiurnalCycle map[VehicleClass][24]float64

// Key identifies one emission total.
type Key struct {
	Class     VehicleClass
	Pollutant Pollutant
}

// Result maps vehicle class and pollutant to an emitted mass.
type Result map[Key]float64

// Add accumulates other into r.
func (r Result) Add(other Result) {
	for k, v := range other {
		r[k] += v
	}
}

// Scale multiplies every entry by f.
func (r Result) Scale(f float64) {
	for k := range r {
		r[k] *= f
	}
}

// Clone returns a copy of r.
func (r Result) Clone() Result {
	c := make(Result, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// PollutantTotal sums a pollutant over all vehicle classes.
func (r Result) PollutantTotal(p Pollutant) float64 {
	var total float64
	for _, c := range VehicleClasses {
		total += r[Key{Class: c, Pollutant: p}]
	}
	return total
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey formats a date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// Nearest returns the value in buckets closest to x. On ties the first
// bucket in slice order wins, so ascending buckets resolve ties downwards.
// It returns NaN when buckets is empty or x is not finite.
func Nearest(buckets []float64, x float64) float64 {
	if len(buckets) == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return math.NaN()
	}
	best := buckets[0]
	bestDiff := math.Abs(best - x)
	for _, b := range buckets[1:] {
		if d := math.Abs(b - x); d < bestDiff {
			best, bestDiff = b, d
		}
	}
	return best
}

// VehicleKilometres maps congestion classes to the vehicle-km driven per
// vehicle class.
type VehicleKilometres map[CongestionClass]VehicleVolumes

// Add accumulates other into v.
func (v VehicleKilometres) Add(other VehicleKilometres) {
	for class, volumes := range other {
		if v[class] == nil {
			v[class] = make(VehicleVolumes, len(volumes))
		}
		for vc, km := range volumes {
			v[class][vc] += km
		}
	}
}
