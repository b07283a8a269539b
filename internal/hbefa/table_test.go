package hbefa_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
)

const situation = "URB/Local/30/Freeflow"

func testTable(t *testing.T) *hbefa.Table {
	t.Helper()

	table, err := hbefa.NewTable([]hbefa.FactorRow{
		{Regime: hbefa.RegimeLOSSpecific, VehicleClass: emission.PC, Year: 2019, Pollutant: emission.PollutantNOx,
			TrafficSituation: situation, Gradient: "0%", Value: 0.31},
		{Regime: hbefa.RegimeLOSSpecific, VehicleClass: emission.PC, Year: 2019, Pollutant: emission.PollutantNOx,
			TrafficSituation: situation, Gradient: "+2%", Value: 0.42},
		{Regime: hbefa.RegimeAggregated, VehicleClass: emission.HGV, Year: 2019, Pollutant: emission.PollutantCO2Total,
			AreaType: "Urban", Value: 812.5},
	})
	require.NoError(t, err)
	return table
}

func TestGradientLabel(t *testing.T) {
	tests := []struct {
		gradient float64
		want     string
	}{
		{0, "0%"},
		{0.9, "0%"},
		{1.5, "+2%"},
		{-2, "-2%"},
		{-3, "-4%"},
		{5.2, "+6%"},
		{12, "+6%"},
		{-9, "-6%"},
		{math.NaN(), "NaN%"},
		{math.Inf(1), "NaN%"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, hbefa.GradientLabel(tt.gradient), "gradient %v", tt.gradient)
	}
}

func TestTable_LookupExact(t *testing.T) {
	table := testTable(t)

	res, err := table.Lookup(hbefa.LookupKey{
		Regime: hbefa.RegimeLOSSpecific, VehicleClass: emission.PC, Year: 2019,
		Pollutant: emission.PollutantNOx, TrafficSituation: situation, Gradient: "+2%",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.42, res.Value)
	assert.Equal(t, hbefa.PathExact, res.Path)
}

func TestTable_GradientFallbackMatchesFlatLookup(t *testing.T) {
	table := testTable(t)

	key := hbefa.LookupKey{
		Regime: hbefa.RegimeLOSSpecific, VehicleClass: emission.PC, Year: 2019,
		Pollutant: emission.PollutantNOx, TrafficSituation: situation, Gradient: "-4%",
	}
	fallback, err := table.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, hbefa.PathGradientFallback, fallback.Path)

	key.Gradient = hbefa.FlatGradient
	flat, err := table.Lookup(key)
	require.NoError(t, err)
	assert.Equal(t, hbefa.PathExact, flat.Path)

	assert.Equal(t, flat.Value, fallback.Value)
}

func TestTable_MissingFactor(t *testing.T) {
	table := testTable(t)

	_, err := table.Lookup(hbefa.LookupKey{
		Regime: hbefa.RegimeLOSSpecific, VehicleClass: emission.PC, Year: 2019,
		Pollutant: emission.PollutantNOx, TrafficSituation: "URB/Local/30/St+Go", Gradient: "+2%",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, emission.ErrMissingFactor)

	var missing *hbefa.MissingFactorError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{
		"los_specific/PC/2019/URB/Local/30/St+Go/+2%/NOx",
		"los_specific/PC/2019/URB/Local/30/St+Go/0%/NOx",
	}, missing.Attempted)
}

func TestTable_AggregatedIgnoresSituation(t *testing.T) {
	table := testTable(t)

	res, err := table.Lookup(hbefa.LookupKey{
		Regime: hbefa.RegimeAggregated, VehicleClass: emission.HGV, Year: 2019,
		Pollutant: emission.PollutantCO2Total, AreaType: "Urban",
		TrafficSituation: situation, Gradient: "+6%",
	})
	require.NoError(t, err)
	assert.Equal(t, 812.5, res.Value)
	assert.Equal(t, hbefa.PathExact, res.Path)

	_, err = table.Lookup(hbefa.LookupKey{
		Regime: hbefa.RegimeAggregated, VehicleClass: emission.HGV, Year: 2019,
		Pollutant: emission.PollutantCO2Total, AreaType: "Rural",
	})
	assert.ErrorIs(t, err, emission.ErrMissingFactor)
}

func TestNewTable_Validation(t *testing.T) {
	_, err := hbefa.NewTable([]hbefa.FactorRow{{Regime: "weighted"}})
	assert.ErrorIs(t, err, hbefa.ErrUnknownRegime)

	row := hbefa.FactorRow{Regime: hbefa.RegimeLOSSpecific, VehicleClass: emission.PC, Year: 2019,
		Pollutant: emission.PollutantCO, TrafficSituation: situation, Gradient: "0%", Value: 1}
	table, err := hbefa.NewTable([]hbefa.FactorRow{row, row})
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	conflict := row
	conflict.Value = 2
	_, err = hbefa.NewTable([]hbefa.FactorRow{row, conflict})
	assert.ErrorIs(t, err, hbefa.ErrConflictingFactor)
}

func TestParseVehicleCategory(t *testing.T) {
	vc, err := hbefa.ParseVehicleCategory("pass. car")
	require.NoError(t, err)
	assert.Equal(t, emission.PC, vc)

	vc, err = hbefa.ParseVehicleCategory("coach")
	require.NoError(t, err)
	assert.Equal(t, emission.BUS, vc)

	_, err = hbefa.ParseVehicleCategory("tractor")
	assert.ErrorIs(t, err, hbefa.ErrUnknownCategory)
}
