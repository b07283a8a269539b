// Package inventory runs the emission computation over a date range and a
// road network and aggregates the results.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
)

// ErrInvalidConfig is returned for configuration values that cannot be used.
var ErrInvalidConfig = errors.New("invalid inventory configuration")

// Mode selects the temporal resolution of a run.
type Mode string

const (
	// ModeDaily reports per-link totals over the run.
	ModeDaily Mode = "daily"

	// ModeHourly additionally reports network totals per date and hour.
	ModeHourly Mode = "hourly"
)

// ParseMode parses a run mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDaily, ModeHourly:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: mode %q", ErrInvalidConfig, s)
	}
}

// ColdStartConfig enables cold-start emissions for a run.
type ColdStartConfig struct {
	// Station is the meteo station providing ambient temperatures.
	Station string

	// ScalingRoadType selects the daily scaling applied to the start counts.
	ScalingRoadType string

	// DailyStarts is the number of vehicle starts on a reference day per class.
	DailyStarts map[emission.VehicleClass]float64
}

// Enabled reports whether cold starts are computed.
func (c ColdStartConfig) Enabled() bool {
	return c.Station != "" && len(c.DailyStarts) > 0
}

// RunConfig holds configuration for inventory runs.
type RunConfig struct {
	// Concurrency is the number of dates computed in parallel.
	// Default: 4
	Concurrency int

	// Mode is the temporal resolution of the report.
	// Default: daily
	Mode Mode

	// Regime selects the HBEFA factor keying.
	// Default: los_specific
	Regime hbefa.Regime

	// MultiplyByLength turns per-km factors into absolute link masses.
	MultiplyByLength bool

	// Pollutants to compute. Empty means all HBEFA components.
	Pollutants []emission.Pollutant

	// DateTimeout bounds the computation of a single date.
	// Default: 5 minutes
	DateTimeout time.Duration

	// VehicleKilometres enables the vehicle-km summary.
	VehicleKilometres bool

	ColdStarts ColdStartConfig
}

// DefaultRunConfig returns the default run configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Concurrency:      4,
		Mode:             ModeDaily,
		Regime:           hbefa.RegimeLOSSpecific,
		MultiplyByLength: true,
		DateTimeout:      5 * time.Minute,
	}
}

// withDefaults fills zero values from DefaultRunConfig.
func (c RunConfig) withDefaults() RunConfig {
	def := DefaultRunConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Regime == "" {
		c.Regime = def.Regime
	}
	if c.DateTimeout <= 0 {
		c.DateTimeout = def.DateTimeout
	}
	return c
}

// ConfigFromEnv reads the run configuration from environment variables,
// falling back to DefaultRunConfig for unset ones.
func ConfigFromEnv() (RunConfig, error) {
	cfg := DefaultRunConfig()

	if v := os.Getenv("INVENTORY_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("%w: INVENTORY_CONCURRENCY=%q", ErrInvalidConfig, v)
		}
		cfg.Concurrency = n
	}

	if v := os.Getenv("INVENTORY_MODE"); v != "" {
		mode, err := ParseMode(v)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}

	if v := os.Getenv("INVENTORY_REGIME"); v != "" {
		regime, err := hbefa.ParseRegime(v)
		if err != nil {
			return cfg, err
		}
		cfg.Regime = regime
	}

	if v := os.Getenv("INVENTORY_MULTIPLY_BY_LENGTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: INVENTORY_MULTIPLY_BY_LENGTH=%q", ErrInvalidConfig, v)
		}
		cfg.MultiplyByLength = b
	}

	if v := os.Getenv("INVENTORY_POLLUTANTS"); v != "" {
		pollutants, err := parsePollutants(v)
		if err != nil {
			return cfg, err
		}
		cfg.Pollutants = pollutants
	}

	if v := os.Getenv("INVENTORY_DATE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: INVENTORY_DATE_TIMEOUT=%q", ErrInvalidConfig, v)
		}
		cfg.DateTimeout = d
	}

	cfg.VehicleKilometres = os.Getenv("INVENTORY_VKT") == "true"

	cfg.ColdStarts.Station = os.Getenv("INVENTORY_COLD_STATION")
	cfg.ColdStarts.ScalingRoadType = os.Getenv("INVENTORY_COLD_SCALING_ROAD_TYPE")
	for class, key := range map[emission.VehicleClass]string{
		emission.PC:  "INVENTORY_COLD_STARTS_PC",
		emission.LCV: "INVENTORY_COLD_STARTS_LCV",
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
		}
		if cfg.ColdStarts.DailyStarts == nil {
			cfg.ColdStarts.DailyStarts = make(map[emission.VehicleClass]float64)
		}
		cfg.ColdStarts.DailyStarts[class] = n
	}
	if cfg.ColdStarts.Enabled() && cfg.ColdStarts.ScalingRoadType == "" {
		return cfg, fmt.Errorf("%w: INVENTORY_COLD_SCALING_ROAD_TYPE is required with cold starts", ErrInvalidConfig)
	}

	return cfg, nil
}

func parsePollutants(s string) ([]emission.Pollutant, error) {
	known := make(map[emission.Pollutant]bool)
	for _, p := range emission.AllPollutants() {
		known[p] = true
	}

	var pollutants []emission.Pollutant
	for _, part := range strings.Split(s, ",") {
		p := emission.Pollutant(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		if !known[p] {
			return nil, fmt.Errorf("%w: unknown pollutant %q", ErrInvalidConfig, p)
		}
		pollutants = append(pollutants, p)
	}
	return pollutants, nil
}
