package hbefa

import (
	"fmt"
	"math"
	"strconv"

	"github.com/breatheroute/emissions/internal/emission"
)

// TemperatureBuckets are the ambient temperatures in °C available in HBEFA.
var TemperatureBuckets = []float64{-10, -5, 0, 5, 10, 15, 20, 25}

// SnapTemperature returns the nearest temperature bucket. Ties resolve to
// the lower bucket.
func SnapTemperature(celsius float64) float64 {
	return emission.Nearest(TemperatureBuckets, celsius)
}

// AmbientPattern returns the HBEFA ambient condition pattern for a
// temperature, e.g. "T+25°C,tØ,dØ". Trip duration and length are always the
// average placeholders.
func AmbientPattern(celsius float64) string {
	t := SnapTemperature(celsius)
	sign := "+"
	if t < 0 {
		sign = "-"
	}
	return "T" + sign + strconv.FormatFloat(math.Abs(t), 'f', -1, 64) + "°C,tØ,dØ"
}

type coldKey struct {
	class     emission.VehicleClass
	year      int
	pollutant emission.Pollutant
	pattern   string
}

func (k coldKey) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", k.class, k.year, k.pollutant, k.pattern)
}

// ColdTable is an immutable index of cold-start factors.
type ColdTable struct {
	factors map[coldKey]float64
}

// NewColdTable indexes cold-start rows.
func NewColdTable(rows []ColdFactorRow) (*ColdTable, error) {
	t := &ColdTable{factors: make(map[coldKey]float64, len(rows))}
	for _, r := range rows {
		if math.IsNaN(r.Value) {
			continue
		}
		key := coldKey{r.VehicleClass, r.Year, r.Pollutant, r.AmbientPattern}
		if existing, ok := t.factors[key]; ok && existing != r.Value {
			return nil, fmt.Errorf("%w: %s (%g and %g)", ErrConflictingFactor, key, existing, r.Value)
		}
		t.factors[key] = r.Value
	}
	return t, nil
}

// Len returns the number of indexed factors.
func (t *ColdTable) Len() int {
	return len(t.factors)
}

// Lookup returns the cold-start factor for an ambient pattern.
func (t *ColdTable) Lookup(class emission.VehicleClass, year int, pollutant emission.Pollutant, pattern string) (float64, error) {
	key := coldKey{class, year, pollutant, pattern}
	if v, ok := t.factors[key]; ok {
		return v, nil
	}
	return 0, &MissingFactorError{Table: "cold", Attempted: []string{key.String()}}
}
