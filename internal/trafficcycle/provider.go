package trafficcycle

import (
	"fmt"
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/breatheroute/emissions/internal/calendar"
	"github.com/breatheroute/emissions/internal/emission"
)

const (
	defaultReferenceYear = 2019
	defaultCacheSize     = 366
)

// ProviderConfig holds configuration for the traffic cycle provider.
type ProviderConfig struct {
	// Records are the raw counting records. They are only read during
	// construction.
	Records []CountRecord

	// Calendar resolves day types for gap filling and cycle lookup.
	Calendar calendar.Calendar

	// Logger for provider operations.
	Logger zerolog.Logger

	// ReferenceYear selects the normalization year (default: 2019).
	ReferenceYear int

	// ReferenceDayType selects the normalization day type (default: NormWeekday).
	ReferenceDayType emission.DayType

	// QuantileRange bounds the samples used for the normalization mean
	// (default: 0.025 to 0.975).
	QuantileRange [2]float64

	// CacheSize is the number of assembled day profiles kept (default: 366).
	CacheSize int
}

type cycleKey struct {
	year    int
	month   time.Month
	dayType emission.DayType
}

// Provider serves traffic cycles derived from counting data. All tables are
// computed in NewProvider and read-only afterwards, so a Provider is safe for
// concurrent use.
type Provider struct {
	calendar calendar.Calendar
	logger   zerolog.Logger

	first     time.Time
	last      time.Time
	roadTypes []string

	// scaling road type -> date key -> factor
	scaling map[string]map[string]float64
	// date key -> scaling road type -> class -> share
	shares map[string]map[string]map[emission.VehicleClass]float64
	cycles map[cycleKey]emission.DiurnalCycle

	cache *lru.Cache[string, *DayProfile]
}

// NewProvider builds all cycle tables from the counting records.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if len(cfg.Records) == 0 {
		return nil, ErrNoRecords
	}
	if cfg.Calendar == nil {
		return nil, ErrNoCalendar
	}

	refYear := cfg.ReferenceYear
	if refYear == 0 {
		refYear = defaultReferenceYear
	}

	qr := cfg.QuantileRange
	if qr == [2]float64{} {
		qr = [2]float64{0.025, 0.975}
	}
	if qr[0] < 0 || qr[1] > 1 || qr[0] >= qr[1] {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantileRange, qr)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *DayProfile](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create profile cache: %w", err)
	}

	p := &Provider{
		calendar: cfg.Calendar,
		logger:   cfg.Logger,
		cache:    cache,
	}

	p.first, p.last = dateRange(cfg.Records)
	p.roadTypes = roadTypes(cfg.Records)
	axis := newDateAxis(p.first, p.last, cfg.Calendar.DayType)

	refMeans := referenceMeans(cfg.Records, refYear, cfg.ReferenceDayType, qr)
	p.scaling = buildScaling(cfg.Records, refMeans, axis)
	p.shares = buildShares(cfg.Records, axis)
	p.cycles = buildCycles(cfg.Records)

	p.logger.Info().
		Int("records", len(cfg.Records)).
		Int("road_types", len(p.roadTypes)).
		Int("reference_series", len(refMeans)).
		Int("cycles", len(p.cycles)).
		Str("first", emission.DateKey(p.first)).
		Str("last", emission.DateKey(p.last)).
		Msg("traffic cycles prepared")

	return p, nil
}

// RoadTypes returns the scaling road types seen in the counting data.
func (p *Provider) RoadTypes() []string {
	return append([]string(nil), p.roadTypes...)
}

// Range returns the first and last counting date.
func (p *Provider) Range() (first, last time.Time) {
	return p.first, p.last
}

// DailyScalingFactor returns the normalized activity of a scaling road type.
func (p *Provider) DailyScalingFactor(roadType string, date time.Time) (float64, error) {
	profile := p.profile(date)
	f, ok := profile.Scaling[roadType]
	if !ok {
		return 0, fmt.Errorf("%w: scaling factor for %s on %s", emission.ErrMissingCycleData, roadType, emission.DateKey(date))
	}
	return f, nil
}

// DailyScalingFactors returns the normalized activity of every scaling road type.
func (p *Provider) DailyScalingFactors(date time.Time) (map[string]float64, error) {
	profile := p.profile(date)
	if len(profile.Scaling) == 0 {
		return nil, fmt.Errorf("%w: scaling factors on %s", emission.ErrMissingCycleData, emission.DateKey(date))
	}
	return profile.Scaling, nil
}

// VehicleShares returns per scaling road type the share of each vehicle class.
func (p *Provider) VehicleShares(date time.Time) (map[string]map[emission.VehicleClass]float64, error) {
	profile := p.profile(date)
	if len(profile.Shares) == 0 {
		return nil, fmt.Errorf("%w: vehicle shares on %s", emission.ErrMissingCycleData, emission.DateKey(date))
	}
	return profile.Shares, nil
}

// HourlyScalingFactors returns the diurnal cycle per vehicle class for the
// day type of date.
func (p *Provider) HourlyScalingFactors(date time.Time) (emission.DiurnalCycle, error) {
	profile := p.profile(date)
	if profile.cycleErr != nil {
		return nil, profile.cycleErr
	}
	return profile.Cycle, nil
}

// Day returns the complete profile of a date. It fails when any part of the
// profile is missing.
func (p *Provider) Day(date time.Time) (*DayProfile, error) {
	profile := p.profile(date)
	key := emission.DateKey(date)
	switch {
	case len(profile.Scaling) == 0:
		return nil, fmt.Errorf("%w: scaling factors on %s", emission.ErrMissingCycleData, key)
	case len(profile.Shares) == 0:
		return nil, fmt.Errorf("%w: vehicle shares on %s", emission.ErrMissingCycleData, key)
	case profile.cycleErr != nil:
		return nil, profile.cycleErr
	}
	return profile, nil
}

// TimeProfile combines daily scaling, vehicle shares and diurnal cycle into
// an hourly activity per vehicle class for every day in [from, to]. Days
// without complete data yield zero activity.
func (p *Provider) TimeProfile(roadType string, from, to time.Time) ([]ProfileHour, error) {
	if !p.HasRoadType(roadType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoadType, roadType)
	}

	var hours []ProfileHour
	for d := emission.Day(from); !d.After(emission.Day(to)); d = d.AddDate(0, 0, 1) {
		profile, err := p.Day(d)

		var activity float64
		var shares map[emission.VehicleClass]float64
		if err == nil {
			activity = profile.Scaling[roadType]
			shares = profile.Shares[roadType]
		}
		if err != nil || shares == nil {
			p.logger.Debug().Str("road_type", roadType).Str("date", emission.DateKey(d)).Msg("no profile data, using zero activity")
		}

		for h := 0; h < 24; h++ {
			values := make(emission.VehicleVolumes, len(emission.VehicleClasses))
			for _, vc := range emission.VehicleClasses {
				if shares == nil {
					values[vc] = 0
					continue
				}
				cycle := profile.Cycle[vc]
				values[vc] = cycle[h] * activity * shares[vc]
			}
			hours = append(hours, ProfileHour{Time: d.Add(time.Duration(h) * time.Hour), Activity: values})
		}
	}
	return hours, nil
}

// HasRoadType reports whether roadType is a scaling road type of the counting data.
func (p *Provider) HasRoadType(roadType string) bool {
	for _, rt := range p.roadTypes {
		if rt == roadType {
			return true
		}
	}
	return false
}

// profile assembles the day profile of date, serving repeated dates from
// the LRU cache.
func (p *Provider) profile(date time.Time) *DayProfile {
	date = emission.Day(date)
	key := emission.DateKey(date)
	if cached, ok := p.cache.Get(key); ok {
		return cached
	}

	profile := &DayProfile{
		Date:   date,
		Shares: p.shares[key],
	}

	for rt, series := range p.scaling {
		if v, ok := series[key]; ok {
			if profile.Scaling == nil {
				profile.Scaling = make(map[string]float64, len(p.scaling))
			}
			profile.Scaling[rt] = v
		}
	}

	profile.Cycle, profile.cycleErr = p.cycleFor(date)

	p.cache.Add(key, profile)
	return profile
}

func (p *Provider) cycleFor(date time.Time) (emission.DiurnalCycle, error) {
	dt, err := p.calendar.DayType(date)
	if err != nil {
		return nil, fmt.Errorf("%w: day type of %s: %v", emission.ErrMissingCycleData, emission.DateKey(date), err)
	}
	cycle, ok := p.cycles[cycleKey{year: date.Year(), month: date.Month(), dayType: dt}]
	if !ok || len(cycle) == 0 {
		return nil, fmt.Errorf("%w: diurnal cycle for %d-%02d %s", emission.ErrMissingCycleData, date.Year(), date.Month(), dt)
	}
	return cycle, nil
}

func dateRange(records []CountRecord) (first, last time.Time) {
	for _, r := range records {
		d := emission.Day(r.Date)
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	return first, last
}

func roadTypes(records []CountRecord) []string {
	seen := make(map[string]bool)
	var types []string
	for _, r := range records {
		if !seen[r.ScalingRoadType] {
			seen[r.ScalingRoadType] = true
			types = append(types, r.ScalingRoadType)
		}
	}
	sort.Strings(types)
	return types
}

type seriesKey struct {
	linkID string
	class  emission.VehicleClass
}

// referenceMeans computes the inter-quantile mean of every station series
// over complete reference days. Series without usable reference data are
// left out and thereby excluded from normalization.
func referenceMeans(records []CountRecord, year int, dayType emission.DayType, qr [2]float64) map[seriesKey]float64 {
	samples := make(map[seriesKey][]float64)
	for _, r := range records {
		if r.Date.Year() != year || r.DayType != dayType || !r.Complete {
			continue
		}
		k := seriesKey{r.RoadLinkID, r.VehicleClass}
		samples[k] = append(samples[k], r.DailyValue)
	}

	means := make(map[seriesKey]float64, len(samples))
	for k, values := range samples {
		m := interQuantileMean(values, qr[0], qr[1])
		if math.IsNaN(m) || m == 0 {
			continue
		}
		means[k] = m
	}
	return means
}

// buildScaling derives the daily scaling factor per scaling road type as the
// median of all normalized SUM values of that day.
func buildScaling(records []CountRecord, refMeans map[seriesKey]float64, axis *dateAxis) map[string]map[string]float64 {
	samples := make(map[string]map[string][]float64)
	for _, r := range records {
		if r.VehicleClass != emission.Sum {
			continue
		}
		mean, ok := refMeans[seriesKey{r.RoadLinkID, r.VehicleClass}]
		if !ok {
			continue
		}
		if samples[r.ScalingRoadType] == nil {
			samples[r.ScalingRoadType] = make(map[string][]float64)
		}
		key := emission.DateKey(emission.Day(r.Date))
		samples[r.ScalingRoadType][key] = append(samples[r.ScalingRoadType][key], r.DailyValue/mean)
	}

	scaling := make(map[string]map[string]float64, len(samples))
	for rt, byDate := range samples {
		if filled := axis.fill(medians(byDate)); filled != nil {
			scaling[rt] = filled
		}
	}
	return scaling
}

// buildShares derives per date and scaling road type the share of each
// tracked vehicle class from the median complete and valid daily counts.
func buildShares(records []CountRecord, axis *dateAxis) map[string]map[string]map[emission.VehicleClass]float64 {
	type shareKey struct {
		class    emission.VehicleClass
		roadType string
	}

	samples := make(map[shareKey]map[string][]float64)
	for _, r := range records {
		if !r.Complete || !r.Valid || !r.VehicleClass.Tracked() {
			continue
		}
		k := shareKey{r.VehicleClass, r.ScalingRoadType}
		if samples[k] == nil {
			samples[k] = make(map[string][]float64)
		}
		key := emission.DateKey(emission.Day(r.Date))
		samples[k][key] = append(samples[k][key], r.DailyValue)
	}

	// date -> road type -> class -> filled median count
	counts := make(map[string]map[string]map[emission.VehicleClass]float64)
	for k, byDate := range samples {
		for date, v := range axis.fill(medians(byDate)) {
			if counts[date] == nil {
				counts[date] = make(map[string]map[emission.VehicleClass]float64)
			}
			if counts[date][k.roadType] == nil {
				counts[date][k.roadType] = make(map[emission.VehicleClass]float64, len(emission.VehicleClasses))
			}
			counts[date][k.roadType][k.class] = v
		}
	}

	shares := make(map[string]map[string]map[emission.VehicleClass]float64, len(counts))
	for date, byRoadType := range counts {
		for rt, byClass := range byRoadType {
			total := emission.VehicleVolumes(byClass).Total()
			if total <= 0 {
				continue
			}
			s := make(map[emission.VehicleClass]float64, len(emission.VehicleClasses))
			for _, vc := range emission.VehicleClasses {
				s[vc] = byClass[vc] / total
			}
			if shares[date] == nil {
				shares[date] = make(map[string]map[emission.VehicleClass]float64)
			}
			shares[date][rt] = s
		}
	}
	return shares
}

// buildCycles computes the hour-wise median profile per year, month, day
// type and tracked vehicle class, normalized to a daily sum of one.
func buildCycles(records []CountRecord) map[cycleKey]emission.DiurnalCycle {
	type groupKey struct {
		cycleKey
		class emission.VehicleClass
	}

	samples := make(map[groupKey][24][]float64)
	for _, r := range records {
		if !r.VehicleClass.Tracked() {
			continue
		}
		k := groupKey{cycleKey{r.Date.Year(), r.Date.Month(), r.DayType}, r.VehicleClass}
		hours := samples[k]
		for h := range hours {
			hours[h] = append(hours[h], r.Hourly[h])
		}
		samples[k] = hours
	}

	cycles := make(map[cycleKey]emission.DiurnalCycle)
	for k, hours := range samples {
		var profile [24]float64
		for h := range hours {
			profile[h] = median(hours[h])
		}
		total := floats.Sum(profile[:])
		if total <= 0 || math.IsNaN(total) {
			continue
		}
		floats.Scale(1/total, profile[:])

		if cycles[k.cycleKey] == nil {
			cycles[k.cycleKey] = make(emission.DiurnalCycle)
		}
		cycles[k.cycleKey][k.class] = profile
	}
	return cycles
}

func medians(byDate map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(byDate))
	for date, values := range byDate {
		if m := median(values); !math.IsNaN(m) {
			out[date] = m
		}
	}
	return out
}
