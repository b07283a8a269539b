// Package meteo provides hourly ambient temperatures for cold-start
// emissions. Raw station observations are cleaned of outliers and averaged
// per hour of the day.
package meteo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/monitoring"
)

// ErrNoObservations is returned when a station reports no usable value for
// a date.
var ErrNoObservations = errors.New("no meteo observations")

// DefaultOutlierLimit is the absolute z-score from which observations are
// discarded.
const DefaultOutlierLimit = 3.0

// Observation is a single station measurement.
type Observation struct {
	Time  time.Time
	Value float64
}

// Source fetches raw observations of one parameter in [start, end).
type Source interface {
	Observations(ctx context.Context, station, parameter string, start, end time.Time) ([]Observation, error)
	Name() string
}

// Provider returns the hourly temperatures of a date.
type Provider interface {
	HourlyTemperatures(ctx context.Context, station string, date time.Time) ([24]float64, error)
}

// ServiceConfig holds configuration for the meteo service.
type ServiceConfig struct {
	Source Source

	// Parameter is the source's temperature parameter name (default: "temp").
	Parameter string

	// Location defines the local day and its hours (default: UTC).
	Location *time.Location

	// OutlierLimit is the |z| from which values are dropped
	// (default: DefaultOutlierLimit).
	OutlierLimit float64

	// CacheSize is the number of station days kept (default: 400).
	CacheSize int

	Logger zerolog.Logger
}

// Service implements Provider on top of a Source with an LRU cache of
// station days.
type Service struct {
	source       Source
	parameter    string
	location     *time.Location
	outlierLimit float64
	cache        *lru.Cache[string, [24]float64]
	logger       zerolog.Logger
}

// NewService creates a new meteo service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("meteo source is required")
	}

	parameter := cfg.Parameter
	if parameter == "" {
		parameter = "temp"
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	limit := cfg.OutlierLimit
	if limit <= 0 {
		limit = DefaultOutlierLimit
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 400
	}

	cache, err := lru.New[string, [24]float64](size)
	if err != nil {
		return nil, fmt.Errorf("creating meteo cache: %w", err)
	}

	return &Service{
		source:       cfg.Source,
		parameter:    parameter,
		location:     location,
		outlierLimit: limit,
		cache:        cache,
		logger:       cfg.Logger,
	}, nil
}

// HourlyTemperatures returns the mean temperature of every hour of date at
// station. Hours without observations are interpolated from their
// neighbours.
func (s *Service) HourlyTemperatures(ctx context.Context, station string, date time.Time) ([24]float64, error) {
	key := station + "/" + emission.DateKey(date)
	if hours, ok := s.cache.Get(key); ok {
		monitoring.RecordCacheHit("meteo")
		return hours, nil
	}
	monitoring.RecordCacheMiss("meteo")

	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.location)
	end := start.AddDate(0, 0, 1)

	s.logger.Debug().
		Str("station", station).
		Str("date", emission.DateKey(date)).
		Str("source", s.source.Name()).
		Msg("fetching meteo observations")

	obs, err := s.source.Observations(ctx, station, s.parameter, start, end)
	if err != nil {
		return [24]float64{}, fmt.Errorf("fetching %s at %s: %w", s.parameter, station, err)
	}

	kept := FilterOutliers(obs, s.outlierLimit)
	if dropped := len(obs) - len(kept); dropped > 0 {
		s.logger.Debug().
			Str("station", station).
			Int("dropped", dropped).
			Msg("discarded outlier observations")
	}

	hours, err := HourlyMeans(kept, start)
	if err != nil {
		return hours, fmt.Errorf("station %s on %s: %w", station, emission.DateKey(date), err)
	}

	s.cache.Add(key, hours)
	return hours, nil
}

// FilterOutliers drops NaN values and values whose absolute z-score is at
// least limit. The z-score uses the sample standard deviation. When the
// deviation is zero or undefined every finite value is kept.
func FilterOutliers(obs []Observation, limit float64) []Observation {
	values := make([]float64, 0, len(obs))
	finite := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		values = append(values, o.Value)
		finite = append(finite, o)
	}
	if len(values) < 2 {
		return finite
	}

	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		return finite
	}

	kept := finite[:0]
	for _, o := range finite {
		if math.Abs((o.Value-mean)/std) < limit {
			kept = append(kept, o)
		}
	}
	return kept
}

// HourlyMeans averages observations into the local clock hours of the day
// starting at dayStart, in dayStart's location. Observations outside that
// day are ignored. On DST transition days the skipped hour is empty and the
// repeated hour averages both readings. Empty hours take the linear
// interpolation of the nearest filled hours, or the nearest filled hour at
// the edges of the day.
func HourlyMeans(obs []Observation, dayStart time.Time) ([24]float64, error) {
	var (
		sums   [24]float64
		counts [24]int
		hours  [24]float64
	)

	loc := dayStart.Location()
	year, month, day := dayStart.Date()
	for _, o := range obs {
		local := o.Time.In(loc)
		if y, m, d := local.Date(); y != year || m != month || d != day {
			continue
		}
		h := local.Hour()
		sums[h] += o.Value
		counts[h]++
	}

	var filled []int
	for h := range hours {
		if counts[h] > 0 {
			hours[h] = sums[h] / float64(counts[h])
			filled = append(filled, h)
		}
	}
	if len(filled) == 0 {
		return hours, ErrNoObservations
	}

	for h := range hours {
		if counts[h] > 0 {
			continue
		}
		i := sort.SearchInts(filled, h)
		switch {
		case i == 0:
			hours[h] = hours[filled[0]]
		case i == len(filled):
			hours[h] = hours[filled[len(filled)-1]]
		default:
			lo, hi := filled[i-1], filled[i]
			w := float64(h-lo) / float64(hi-lo)
			hours[h] = hours[lo] + w*(hours[hi]-hours[lo])
		}
	}
	return hours, nil
}

var _ Provider = (*Service)(nil)
