// Package trafficcycle derives daily scaling factors, vehicle shares and
// diurnal cycles from permanent traffic counting stations.
package trafficcycle

import (
	"context"
	"errors"
	"time"

	"github.com/breatheroute/emissions/internal/emission"
)

// Provider errors.
var (
	ErrNoRecords            = errors.New("no counting records")
	ErrNoCalendar           = errors.New("calendar is required")
	ErrUnknownRoadType      = errors.New("unknown scaling road type")
	ErrInvalidQuantileRange = errors.New("invalid quantile range")
)

// CountRecord is one day of one vehicle class at one counting station.
type CountRecord struct {
	RoadLinkID      string
	ScalingRoadType string
	VehicleClass    emission.VehicleClass
	Date            time.Time
	DailyValue      float64
	Hourly          [24]float64

	// Complete is false when the station reported fewer than 24 hours.
	Complete bool

	// Valid is false when plausibility checks flagged the day.
	Valid bool

	DayType emission.DayType
}

// Repository loads counting records.
type Repository interface {
	LoadCountRecords(ctx context.Context) ([]CountRecord, error)
}

// DayProfile bundles everything the provider knows about one date.
// Maps are shared with the provider cache and must not be modified.
type DayProfile struct {
	Date time.Time

	// Scaling maps scaling road type to the normalized daily activity.
	Scaling map[string]float64

	// Shares maps scaling road type to per-class shares summing to 1.
	Shares map[string]map[emission.VehicleClass]float64

	// Cycle is the diurnal cycle for the day type, year and month of Date.
	Cycle emission.DiurnalCycle

	cycleErr error
}

// ProfileHour is one hour of a combined activity profile.
type ProfileHour struct {
	Time     time.Time
	Activity emission.VehicleVolumes
}
