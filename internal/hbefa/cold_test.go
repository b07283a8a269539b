package hbefa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
)

func TestSnapTemperature(t *testing.T) {
	assert.Equal(t, 25.0, hbefa.SnapTemperature(23))
	assert.Equal(t, 25.0, hbefa.SnapTemperature(23.01))
	assert.Equal(t, 20.0, hbefa.SnapTemperature(22.5))
	assert.Equal(t, -10.0, hbefa.SnapTemperature(-30))
	assert.Equal(t, 25.0, hbefa.SnapTemperature(38))

	for _, b := range hbefa.TemperatureBuckets {
		assert.Equal(t, b, hbefa.SnapTemperature(b))
	}
}

func TestAmbientPattern(t *testing.T) {
	assert.Equal(t, "T+25°C,tØ,dØ", hbefa.AmbientPattern(23))
	assert.Equal(t, "T+0°C,tØ,dØ", hbefa.AmbientPattern(-1))
	assert.Equal(t, "T-5°C,tØ,dØ", hbefa.AmbientPattern(-4))
	assert.Equal(t, "T-10°C,tØ,dØ", hbefa.AmbientPattern(-12))
}

func TestColdTable_Lookup(t *testing.T) {
	table, err := hbefa.NewColdTable([]hbefa.ColdFactorRow{
		{VehicleClass: emission.PC, Year: 2019, Pollutant: emission.PollutantCO, AmbientPattern: "T+25°C,tØ,dØ", Value: 1.2},
		{VehicleClass: emission.PC, Year: 2019, Pollutant: emission.PollutantCO, AmbientPattern: "T-5°C,tØ,dØ", Value: 6.4},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	v, err := table.Lookup(emission.PC, 2019, emission.PollutantCO, hbefa.AmbientPattern(23))
	require.NoError(t, err)
	assert.Equal(t, 1.2, v)

	_, err = table.Lookup(emission.LCV, 2019, emission.PollutantCO, hbefa.AmbientPattern(23))
	assert.ErrorIs(t, err, emission.ErrMissingFactor)
}
