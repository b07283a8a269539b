// Package coldemission computes cold-start excess emissions from trip starts
// and ambient temperature.
package coldemission

import (
	"errors"
	"fmt"
	"math"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
)

// ErrUnsupportedVehicleClass is returned for classes without cold-start
// factors in HBEFA.
var ErrUnsupportedVehicleClass = errors.New("no cold-start factors for vehicle class")

// ErrInvalidTemperature is returned for temperatures that are not finite.
var ErrInvalidTemperature = errors.New("invalid ambient temperature")

// SupportedClasses are the vehicle classes HBEFA provides cold-start factors for.
var SupportedClasses = []emission.VehicleClass{emission.PC, emission.LCV}

// FactorTable looks up cold-start factors by ambient pattern.
type FactorTable interface {
	Lookup(class emission.VehicleClass, year int, pollutant emission.Pollutant, pattern string) (float64, error)
}

// Engine computes cold-start emissions.
type Engine struct {
	factors    FactorTable
	pollutants []emission.Pollutant
}

// NewEngine creates a cold-start engine for the given pollutants (default:
// all HBEFA components).
func NewEngine(factors FactorTable, pollutants []emission.Pollutant) *Engine {
	if len(pollutants) == 0 {
		pollutants = emission.AllPollutants()
	}
	return &Engine{
		factors:    factors,
		pollutants: append([]emission.Pollutant(nil), pollutants...),
	}
}

// ComputeHourly returns per hour the cold-start emissions of starts vehicle
// starts at the given ambient temperatures.
func (e *Engine) ComputeHourly(starts, temperatures [24]float64, class emission.VehicleClass, year int) ([24]map[emission.Pollutant]float64, error) {
	var hourly [24]map[emission.Pollutant]float64

	if !supported(class) {
		return hourly, fmt.Errorf("%w: %s", ErrUnsupportedVehicleClass, class)
	}

	for h := range hourly {
		if math.IsNaN(temperatures[h]) || math.IsInf(temperatures[h], 0) {
			return hourly, fmt.Errorf("%w: hour %d is %v", ErrInvalidTemperature, h, temperatures[h])
		}
		pattern := hbefa.AmbientPattern(temperatures[h])
		hour := make(map[emission.Pollutant]float64, len(e.pollutants))
		for _, p := range e.pollutants {
			f, err := e.factors.Lookup(class, year, p, pattern)
			if err != nil {
				return hourly, fmt.Errorf("hour %d: %w", h, err)
			}
			hour[p] = f * starts[h]
		}
		hourly[h] = hour
	}
	return hourly, nil
}

// ComputeDaily sums ComputeHourly over the day.
func (e *Engine) ComputeDaily(starts, temperatures [24]float64, class emission.VehicleClass, year int) (map[emission.Pollutant]float64, error) {
	hourly, err := e.ComputeHourly(starts, temperatures, class, year)
	if err != nil {
		return nil, err
	}
	daily := make(map[emission.Pollutant]float64, len(e.pollutants))
	for _, hour := range hourly {
		for p, v := range hour {
			daily[p] += v
		}
	}
	return daily, nil
}

func supported(class emission.VehicleClass) bool {
	for _, c := range SupportedClasses {
		if c == class {
			return true
		}
	}
	return false
}

var _ FactorTable = (*hbefa.ColdTable)(nil)
