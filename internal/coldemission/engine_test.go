package coldemission_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/coldemission"
	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
)

func coldTable(t *testing.T) *hbefa.ColdTable {
	t.Helper()

	var rows []hbefa.ColdFactorRow
	for _, temp := range hbefa.TemperatureBuckets {
		for _, vc := range coldemission.SupportedClasses {
			rows = append(rows, hbefa.ColdFactorRow{
				VehicleClass:   vc,
				Year:           2019,
				Pollutant:      emission.PollutantCO,
				AmbientPattern: hbefa.AmbientPattern(temp),
				Value:          30 - temp, // colder starts emit more
			})
		}
	}

	table, err := hbefa.NewColdTable(rows)
	require.NoError(t, err)
	return table
}

func constant(v float64) [24]float64 {
	var out [24]float64
	for i := range out {
		out[i] = v
	}
	return out
}

func TestComputeHourly_SnapsTemperature(t *testing.T) {
	engine := coldemission.NewEngine(coldTable(t), []emission.Pollutant{emission.PollutantCO})

	temps := constant(23)
	temps[6] = -7.6

	hourly, err := engine.ComputeHourly(constant(10), temps, emission.PC, 2019)
	require.NoError(t, err)

	// 23 °C uses the 25 °C factor
	assert.InDelta(t, 50.0, hourly[0][emission.PollutantCO], 1e-9)
	// -7.6 °C uses the -10 °C factor
	assert.InDelta(t, 400.0, hourly[6][emission.PollutantCO], 1e-9)
}

func TestComputeDaily(t *testing.T) {
	engine := coldemission.NewEngine(coldTable(t), []emission.Pollutant{emission.PollutantCO})

	starts := constant(0)
	starts[7] = 100
	starts[17] = 50

	daily, err := engine.ComputeDaily(starts, constant(10), emission.LCV, 2019)
	require.NoError(t, err)
	assert.InDelta(t, 150*20.0, daily[emission.PollutantCO], 1e-9)
}

func TestComputeHourly_UnsupportedClass(t *testing.T) {
	engine := coldemission.NewEngine(coldTable(t), []emission.Pollutant{emission.PollutantCO})

	_, err := engine.ComputeHourly(constant(1), constant(10), emission.HGV, 2019)
	assert.ErrorIs(t, err, coldemission.ErrUnsupportedVehicleClass)
}

func TestComputeHourly_NonFiniteTemperature(t *testing.T) {
	engine := coldemission.NewEngine(coldTable(t), []emission.Pollutant{emission.PollutantCO})

	tests := []struct {
		name string
		temp float64
	}{
		{"missing reading", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temps := constant(10)
			temps[14] = tt.temp

			_, err := engine.ComputeHourly(constant(1), temps, emission.PC, 2019)
			assert.ErrorIs(t, err, coldemission.ErrInvalidTemperature)
		})
	}
}

func TestComputeHourly_MissingFactor(t *testing.T) {
	engine := coldemission.NewEngine(coldTable(t), []emission.Pollutant{emission.PollutantNOx})

	_, err := engine.ComputeHourly(constant(1), constant(10), emission.PC, 2019)
	assert.ErrorIs(t, err, emission.ErrMissingFactor)

	engine = coldemission.NewEngine(coldTable(t), []emission.Pollutant{emission.PollutantCO})
	_, err = engine.ComputeHourly(constant(1), constant(10), emission.PC, 2030)
	assert.ErrorIs(t, err, emission.ErrMissingFactor)
}
