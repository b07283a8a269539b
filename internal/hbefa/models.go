// Package hbefa indexes HBEFA emission factor exports for hot-running and
// cold-start emissions.
package hbefa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/breatheroute/emissions/internal/emission"
)

// Table errors.
var (
	ErrUnknownRegime     = errors.New("unknown factor regime")
	ErrConflictingFactor = errors.New("conflicting emission factors for the same key")
	ErrUnknownCategory   = errors.New("unknown HBEFA vehicle category")
)

// Regime selects how hot emission factors are keyed.
type Regime string

const (
	// RegimeLOSSpecific keys factors by traffic situation and gradient.
	RegimeLOSSpecific Regime = "los_specific"

	// RegimeAggregated keys factors by area type only.
	RegimeAggregated Regime = "aggregated"
)

// ParseRegime validates a regime name.
func ParseRegime(s string) (Regime, error) {
	switch Regime(s) {
	case RegimeLOSSpecific, RegimeAggregated:
		return Regime(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRegime, s)
	}
}

// FlatGradient is the gradient label used when a specific gradient is missing.
const FlatGradient = "0%"

// FactorRow is one hot emission factor as exported from HBEFA.
type FactorRow struct {
	Regime       Regime
	VehicleClass emission.VehicleClass
	Year         int
	Pollutant    emission.Pollutant

	// TrafficSituation and Gradient are set for RegimeLOSSpecific.
	TrafficSituation string
	Gradient         string

	// AreaType is set for RegimeAggregated.
	AreaType string

	// Value is the weighted factor (EFA_weighted) in g/veh-km.
	Value float64
}

// LookupKey addresses a hot emission factor.
type LookupKey struct {
	Regime           Regime
	VehicleClass     emission.VehicleClass
	Year             int
	Pollutant        emission.Pollutant
	TrafficSituation string
	Gradient         string
	AreaType         string
}

// normalized drops the fields that are not part of the key in the regime.
func (k LookupKey) normalized() LookupKey {
	switch k.Regime {
	case RegimeAggregated:
		k.TrafficSituation = ""
		k.Gradient = ""
	default:
		k.AreaType = ""
	}
	return k
}

func (k LookupKey) String() string {
	if k.Regime == RegimeAggregated {
		return fmt.Sprintf("%s/%s/%d/%s/%s", k.Regime, k.VehicleClass, k.Year, k.AreaType, k.Pollutant)
	}
	return fmt.Sprintf("%s/%s/%d/%s/%s/%s", k.Regime, k.VehicleClass, k.Year, k.TrafficSituation, k.Gradient, k.Pollutant)
}

// LookupPath reports how a factor was found.
type LookupPath int

const (
	PathExact LookupPath = iota
	PathGradientFallback
)

func (p LookupPath) String() string {
	if p == PathGradientFallback {
		return "gradient_fallback"
	}
	return "exact"
}

// LookupResult is a found emission factor.
type LookupResult struct {
	Value float64
	Path  LookupPath
}

// MissingFactorError reports every key tried before a lookup gave up.
type MissingFactorError struct {
	Table     string
	Attempted []string
}

func (e *MissingFactorError) Error() string {
	return fmt.Sprintf("%s factor not found (tried %s)", e.Table, strings.Join(e.Attempted, ", "))
}

func (e *MissingFactorError) Unwrap() error {
	return emission.ErrMissingFactor
}

// ColdFactorRow is one cold-start excess emission factor in g/start.
type ColdFactorRow struct {
	VehicleClass   emission.VehicleClass
	Year           int
	Pollutant      emission.Pollutant
	AmbientPattern string
	Value          float64
}

// Repository loads factor tables.
type Repository interface {
	LoadHotFactors(ctx context.Context) ([]FactorRow, error)
	LoadColdFactors(ctx context.Context) ([]ColdFactorRow, error)
}

// ParseVehicleCategory maps HBEFA vehicle category names to vehicle classes.
func ParseVehicleCategory(s string) (emission.VehicleClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pc", "pass. car":
		return emission.PC, nil
	case "lcv":
		return emission.LCV, nil
	case "hgv":
		return emission.HGV, nil
	case "bus", "coach", "ubus", "urban bus":
		return emission.BUS, nil
	case "mot", "motorcycle", "2w":
		return emission.MOT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}
