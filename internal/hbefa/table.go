package hbefa

import (
	"fmt"
	"math"
	"strconv"

	"github.com/breatheroute/emissions/internal/emission"
)

// Gradients are the road gradients in percent available in HBEFA.
var Gradients = []float64{-6, -4, -2, 0, 2, 4, 6}

// GradientLabel snaps a road gradient to the nearest HBEFA gradient and
// formats it as a signed percentage such as "-2%", "0%" or "+4%". A
// gradient that is not finite yields "NaN%", which matches no factor.
func GradientLabel(gradient float64) string {
	g := emission.Nearest(Gradients, gradient)
	switch {
	case math.IsNaN(g):
		return "NaN%"
	case g > 0:
		return "+" + strconv.FormatFloat(g, 'f', -1, 64) + "%"
	case g < 0:
		return strconv.FormatFloat(g, 'f', -1, 64) + "%"
	default:
		return FlatGradient
	}
}

// Table is an immutable index of hot emission factors, safe for concurrent
// reads.
type Table struct {
	factors map[LookupKey]float64
}

// NewTable indexes rows. Identical duplicates are accepted, duplicates with
// different values are rejected.
func NewTable(rows []FactorRow) (*Table, error) {
	t := &Table{factors: make(map[LookupKey]float64, len(rows))}
	for _, r := range rows {
		if _, err := ParseRegime(string(r.Regime)); err != nil {
			return nil, err
		}
		if math.IsNaN(r.Value) {
			continue
		}
		key := LookupKey{
			Regime:           r.Regime,
			VehicleClass:     r.VehicleClass,
			Year:             r.Year,
			Pollutant:        r.Pollutant,
			TrafficSituation: r.TrafficSituation,
			Gradient:         r.Gradient,
			AreaType:         r.AreaType,
		}.normalized()

		if existing, ok := t.factors[key]; ok && existing != r.Value {
			return nil, fmt.Errorf("%w: %s (%g and %g)", ErrConflictingFactor, key, existing, r.Value)
		}
		t.factors[key] = r.Value
	}
	return t, nil
}

// Len returns the number of indexed factors.
func (t *Table) Len() int {
	return len(t.factors)
}

// Lookup finds the factor for key. A LOS specific lookup whose gradient is
// missing is retried with the flat gradient before it fails with a
// *MissingFactorError.
func (t *Table) Lookup(key LookupKey) (LookupResult, error) {
	key = key.normalized()
	if v, ok := t.factors[key]; ok {
		return LookupResult{Value: v, Path: PathExact}, nil
	}

	attempted := []string{key.String()}
	if key.Regime == RegimeLOSSpecific && key.Gradient != FlatGradient {
		flat := key
		flat.Gradient = FlatGradient
		if v, ok := t.factors[flat]; ok {
			return LookupResult{Value: v, Path: PathGradientFallback}, nil
		}
		attempted = append(attempted, flat.String())
	}

	return LookupResult{}, &MissingFactorError{Table: "hot", Attempted: attempted}
}
