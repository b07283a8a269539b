// Package hotemission computes hot-running exhaust emissions of road links
// from traffic cycles, level-of-service classes and HBEFA factors.
package hotemission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
	"github.com/breatheroute/emissions/internal/los"
	"github.com/breatheroute/emissions/internal/sharecorrection"
)

// Engine errors.
var (
	// ErrMissingDependency is returned when the engine is built without one
	// of its collaborators.
	ErrMissingDependency = errors.New("hot emission engine dependency missing")

	// ErrInvalidLink is returned for link attributes that cannot be mapped
	// to HBEFA classes.
	ErrInvalidLink = errors.New("invalid link attributes")
)

// CycleSource provides the traffic cycles of a date.
type CycleSource interface {
	DailyScalingFactor(roadType string, date time.Time) (float64, error)
	VehicleShares(date time.Time) (map[string]map[emission.VehicleClass]float64, error)
	HourlyScalingFactors(date time.Time) (emission.DiurnalCycle, error)
}

// LinkError ties a computation failure to a link and date.
type LinkError struct {
	LinkID string
	Date   time.Time
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s on %s: %v", e.LinkID, emission.DateKey(e.Date), e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// EngineConfig holds configuration for the hot emission engine.
type EngineConfig struct {
	Cycles     CycleSource
	Classifier *los.Classifier
	Factors    *hbefa.Table

	// Pollutants to compute (default: all HBEFA components).
	Pollutants []emission.Pollutant

	// Regime selects the factor keying (default: los_specific).
	Regime hbefa.Regime

	// AreaType keys aggregated factors (default: Urban).
	AreaType string

	// MultiplyByLength turns per-km factors into absolute link masses.
	MultiplyByLength bool

	// Year overrides the factor year. Zero uses the year of the date.
	Year int

	// Logger for engine operations.
	Logger zerolog.Logger
}

// Engine computes hot emissions. It only reads its collaborators and is safe
// for concurrent use.
type Engine struct {
	cycles           CycleSource
	classifier       *los.Classifier
	factors          *hbefa.Table
	pollutants       []emission.Pollutant
	regime           hbefa.Regime
	areaType         string
	multiplyByLength bool
	year             int
	logger           zerolog.Logger
}

// NewEngine creates a hot emission engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Cycles == nil:
		return nil, fmt.Errorf("%w: cycle source", ErrMissingDependency)
	case cfg.Classifier == nil:
		return nil, fmt.Errorf("%w: classifier", ErrMissingDependency)
	case cfg.Factors == nil:
		return nil, fmt.Errorf("%w: factor table", ErrMissingDependency)
	}

	pollutants := cfg.Pollutants
	if len(pollutants) == 0 {
		pollutants = emission.AllPollutants()
	}

	regime := cfg.Regime
	if regime == "" {
		regime = hbefa.RegimeLOSSpecific
	}
	if _, err := hbefa.ParseRegime(string(regime)); err != nil {
		return nil, err
	}

	areaType := cfg.AreaType
	if areaType == "" {
		areaType = "Urban"
	}

	return &Engine{
		cycles:           cfg.Cycles,
		classifier:       cfg.Classifier,
		factors:          cfg.Factors,
		pollutants:       append([]emission.Pollutant(nil), pollutants...),
		regime:           regime,
		areaType:         areaType,
		multiplyByLength: cfg.MultiplyByLength,
		year:             cfg.Year,
		logger:           cfg.Logger,
	}, nil
}

// ComputeDaily returns the emissions of link on date summed over the day.
func (e *Engine) ComputeDaily(ctx context.Context, link emission.RoadLink, date time.Time) (emission.Result, error) {
	hourly, err := e.ComputeHourly(ctx, link, date)
	if err != nil {
		return nil, err
	}
	return sumHours(hourly), nil
}

// ComputeHourly returns the emissions of link on date per hour.
func (e *Engine) ComputeHourly(ctx context.Context, link emission.RoadLink, date time.Time) ([24]emission.Result, error) {
	hourly, _, err := e.computeLink(ctx, link, date, false)
	return hourly, err
}

// ComputeHourlyWithVehicleKilometres returns the hourly emissions of link
// together with its vehicle-km per congestion class. Volumes and congestion
// classes are derived once for both.
func (e *Engine) ComputeHourlyWithVehicleKilometres(ctx context.Context, link emission.RoadLink, date time.Time) ([24]emission.Result, emission.VehicleKilometres, error) {
	return e.computeLink(ctx, link, date, true)
}

func (e *Engine) computeLink(ctx context.Context, link emission.RoadLink, date time.Time, withVKT bool) ([24]emission.Result, emission.VehicleKilometres, error) {
	var hourly [24]emission.Result
	if err := ctx.Err(); err != nil {
		return hourly, nil, err
	}

	daily, cycle, err := e.dailyVolumes(link, date)
	if err != nil {
		return hourly, nil, &LinkError{LinkID: link.ID, Date: date, Err: err}
	}
	hours, err := disaggregate(daily, cycle)
	if err != nil {
		return hourly, nil, &LinkError{LinkID: link.ID, Date: date, Err: err}
	}

	hourly, classes, err := e.emissions(link, date, hours)
	if err != nil {
		return hourly, nil, &LinkError{LinkID: link.ID, Date: date, Err: err}
	}
	if !withVKT {
		return hourly, nil, nil
	}
	return hourly, vehicleKilometres(link, hours, classes), nil
}

// Compute distributes already corrected daily volumes over the day with
// cycle, classifies every hour and applies the emission factors. It does not
// touch the cycle source.
func (e *Engine) Compute(link emission.RoadLink, date time.Time, daily emission.VehicleVolumes, cycle emission.DiurnalCycle) ([24]emission.Result, error) {
	hours, err := disaggregate(daily, cycle)
	if err != nil {
		return [24]emission.Result{}, err
	}
	hourly, _, err := e.emissions(link, date, hours)
	return hourly, err
}

// emissions applies the factors to hourly volumes and returns the congestion
// class of every hour alongside.
func (e *Engine) emissions(link emission.RoadLink, date time.Time, hours [24]emission.VehicleVolumes) ([24]emission.Result, [24]emission.CongestionClass, error) {
	var hourly [24]emission.Result
	var classes [24]emission.CongestionClass

	if math.IsNaN(link.Gradient) || math.IsInf(link.Gradient, 0) {
		return hourly, classes, fmt.Errorf("%w: gradient %v", ErrInvalidLink, link.Gradient)
	}

	gradient := hbefa.GradientLabel(link.Gradient)
	year := e.factorYear(date)
	scale := 1.0
	if e.multiplyByLength {
		scale = link.LengthKm()
	}

	for h, volumes := range hours {
		situation, class, err := e.situation(link, volumes)
		if err != nil {
			return hourly, classes, err
		}
		classes[h] = class

		result := make(emission.Result, len(emission.VehicleClasses)*len(e.pollutants))
		for _, vc := range emission.VehicleClasses {
			for _, p := range e.pollutants {
				res, err := e.factors.Lookup(hbefa.LookupKey{
					Regime:           e.regime,
					VehicleClass:     vc,
					Year:             year,
					Pollutant:        p,
					TrafficSituation: situation,
					Gradient:         gradient,
					AreaType:         e.areaType,
				})
				if err != nil {
					return hourly, classes, fmt.Errorf("hour %d: %w", h, err)
				}
				if res.Path == hbefa.PathGradientFallback {
					e.logger.Trace().
						Str("link_id", link.ID).
						Str("situation", situation).
						Str("gradient", gradient).
						Msg("using flat gradient factor")
				}
				result[emission.Key{Class: vc, Pollutant: p}] = res.Value * volumes[vc] * scale
			}
		}
		hourly[h] = result
	}

	return hourly, classes, nil
}

// LinkVehicleKilometres returns the vehicle-km driven on link per congestion
// class and vehicle class. No emission factors are needed.
func (e *Engine) LinkVehicleKilometres(ctx context.Context, link emission.RoadLink, date time.Time) (emission.VehicleKilometres, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	daily, cycle, err := e.dailyVolumes(link, date)
	if err != nil {
		return nil, &LinkError{LinkID: link.ID, Date: date, Err: err}
	}
	hours, err := disaggregate(daily, cycle)
	if err != nil {
		return nil, &LinkError{LinkID: link.ID, Date: date, Err: err}
	}

	var classes [24]emission.CongestionClass
	for h, volumes := range hours {
		_, class, err := e.situation(link, volumes)
		if err != nil {
			return nil, &LinkError{LinkID: link.ID, Date: date, Err: err}
		}
		classes[h] = class
	}
	return vehicleKilometres(link, hours, classes), nil
}

func vehicleKilometres(link emission.RoadLink, hours [24]emission.VehicleVolumes, classes [24]emission.CongestionClass) emission.VehicleKilometres {
	vkt := make(emission.VehicleKilometres)
	km := link.LengthKm()
	for h, volumes := range hours {
		class := classes[h]
		if vkt[class] == nil {
			vkt[class] = make(emission.VehicleVolumes, len(emission.VehicleClasses))
		}
		for _, vc := range emission.VehicleClasses {
			vkt[class][vc] += volumes[vc] * km
		}
	}
	return vkt
}

// VehicleKilometres sums the vehicle-km of all links on date. Links that fail
// are left out of the total and returned as *LinkError values.
func (e *Engine) VehicleKilometres(ctx context.Context, links []emission.RoadLink, date time.Time) (emission.VehicleKilometres, []error) {
	total := make(emission.VehicleKilometres)
	var failures []error
	for _, link := range links {
		vkt, err := e.LinkVehicleKilometres(ctx, link, date)
		if err != nil {
			if ctx.Err() != nil {
				return total, append(failures, err)
			}
			failures = append(failures, err)
			continue
		}
		total.Add(vkt)
	}
	return total, failures
}

// dailyVolumes fetches the cycles of date and applies the share correction
// to the link volume.
func (e *Engine) dailyVolumes(link emission.RoadLink, date time.Time) (emission.VehicleVolumes, emission.DiurnalCycle, error) {
	cycle, err := e.cycles.HourlyScalingFactors(date)
	if err != nil {
		return nil, nil, err
	}
	shares, err := e.cycles.VehicleShares(date)
	if err != nil {
		return nil, nil, err
	}
	scaling, err := e.cycles.DailyScalingFactor(link.ScalingRoadType, date)
	if err != nil {
		return nil, nil, err
	}

	linkShares, ok := shares[link.ScalingRoadType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: vehicle shares for %s on %s",
			emission.ErrMissingCycleData, link.ScalingRoadType, emission.DateKey(date))
	}

	daily, err := sharecorrection.Correct(linkShares, link.HGVCorrection, link.LCVCorrection, link.DailyTotalVolume*scaling)
	if err != nil {
		return nil, nil, err
	}
	return daily, cycle, nil
}

func (e *Engine) situation(link emission.RoadLink, volumes emission.VehicleVolumes) (string, emission.CongestionClass, error) {
	units, err := e.classifier.CarUnits(volumes)
	if err != nil {
		return "", 0, err
	}
	class, err := e.classifier.Classify(units, link.HourlyCapacity, link.RoadType)
	if err != nil {
		return "", 0, err
	}
	situation, err := e.classifier.TrafficSituation(link.RoadType, link.DesignSpeed, class)
	if err != nil {
		return "", 0, err
	}
	return situation, class, nil
}

func (e *Engine) factorYear(date time.Time) int {
	if e.year != 0 {
		return e.year
	}
	return date.Year()
}

// disaggregate multiplies each class's daily volume with its diurnal cycle.
// Both inputs must cover the same tracked vehicle classes.
func disaggregate(daily emission.VehicleVolumes, cycle emission.DiurnalCycle) ([24]emission.VehicleVolumes, error) {
	var hours [24]emission.VehicleVolumes

	for _, vc := range emission.VehicleClasses {
		_, inDaily := daily[vc]
		_, inCycle := cycle[vc]
		if inDaily != inCycle {
			return hours, fmt.Errorf("%w: %s in volumes=%t, in cycle=%t", emission.ErrInputKeyMismatch, vc, inDaily, inCycle)
		}
	}

	for h := range hours {
		hours[h] = make(emission.VehicleVolumes, len(daily))
		for vc, v := range daily {
			if !vc.Tracked() {
				continue
			}
			hours[h][vc] = v * cycle[vc][h]
		}
	}
	return hours, nil
}

func sumHours(hourly [24]emission.Result) emission.Result {
	total := make(emission.Result)
	for _, r := range hourly {
		total.Add(r)
	}
	return total
}
