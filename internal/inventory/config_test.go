package inventory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/emission"
	"github.com/breatheroute/emissions/internal/hbefa"
	"github.com/breatheroute/emissions/internal/inventory"
)

func clearInventoryEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"INVENTORY_CONCURRENCY", "INVENTORY_MODE", "INVENTORY_REGIME",
		"INVENTORY_MULTIPLY_BY_LENGTH", "INVENTORY_POLLUTANTS", "INVENTORY_DATE_TIMEOUT",
		"INVENTORY_VKT", "INVENTORY_COLD_STATION", "INVENTORY_COLD_SCALING_ROAD_TYPE",
		"INVENTORY_COLD_STARTS_PC", "INVENTORY_COLD_STARTS_LCV",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := inventory.DefaultRunConfig()

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, inventory.ModeDaily, cfg.Mode)
	assert.Equal(t, hbefa.RegimeLOSSpecific, cfg.Regime)
	assert.True(t, cfg.MultiplyByLength)
	assert.Equal(t, 5*time.Minute, cfg.DateTimeout)
	assert.False(t, cfg.ColdStarts.Enabled())
}

func TestConfigFromEnv(t *testing.T) {
	clearInventoryEnv(t)
	t.Setenv("INVENTORY_CONCURRENCY", "8")
	t.Setenv("INVENTORY_MODE", "hourly")
	t.Setenv("INVENTORY_REGIME", "aggregated")
	t.Setenv("INVENTORY_MULTIPLY_BY_LENGTH", "false")
	t.Setenv("INVENTORY_POLLUTANTS", "NOx, CO2(rep),BC (exhaust)")
	t.Setenv("INVENTORY_DATE_TIMEOUT", "90s")
	t.Setenv("INVENTORY_VKT", "true")
	t.Setenv("INVENTORY_COLD_STATION", "LMU")
	t.Setenv("INVENTORY_COLD_SCALING_ROAD_TYPE", "urban")
	t.Setenv("INVENTORY_COLD_STARTS_PC", "120000")

	cfg, err := inventory.ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, inventory.ModeHourly, cfg.Mode)
	assert.Equal(t, hbefa.RegimeAggregated, cfg.Regime)
	assert.False(t, cfg.MultiplyByLength)
	assert.Equal(t, []emission.Pollutant{
		emission.PollutantNOx, emission.PollutantCO2Rep, emission.PollutantBCExhaust,
	}, cfg.Pollutants)
	assert.Equal(t, 90*time.Second, cfg.DateTimeout)
	assert.True(t, cfg.VehicleKilometres)
	assert.True(t, cfg.ColdStarts.Enabled())
	assert.Equal(t, map[emission.VehicleClass]float64{emission.PC: 120000}, cfg.ColdStarts.DailyStarts)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	clearInventoryEnv(t)

	cfg, err := inventory.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, inventory.DefaultRunConfig(), cfg)
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"concurrency", "INVENTORY_CONCURRENCY", "zero"},
		{"negative concurrency", "INVENTORY_CONCURRENCY", "-1"},
		{"mode", "INVENTORY_MODE", "weekly"},
		{"multiply", "INVENTORY_MULTIPLY_BY_LENGTH", "maybe"},
		{"pollutant", "INVENTORY_POLLUTANTS", "NOx,SO2"},
		{"timeout", "INVENTORY_DATE_TIMEOUT", "soon"},
		{"starts", "INVENTORY_COLD_STARTS_LCV", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearInventoryEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := inventory.ConfigFromEnv()
			assert.ErrorIs(t, err, inventory.ErrInvalidConfig)
		})
	}
}

func TestConfigFromEnv_UnknownRegime(t *testing.T) {
	clearInventoryEnv(t)
	t.Setenv("INVENTORY_REGIME", "per_vehicle")

	_, err := inventory.ConfigFromEnv()
	assert.ErrorIs(t, err, hbefa.ErrUnknownRegime)
}

func TestConfigFromEnv_ColdStartsNeedRoadType(t *testing.T) {
	clearInventoryEnv(t)
	t.Setenv("INVENTORY_COLD_STATION", "LMU")
	t.Setenv("INVENTORY_COLD_STARTS_PC", "1000")

	_, err := inventory.ConfigFromEnv()
	assert.ErrorIs(t, err, inventory.ErrInvalidConfig)
}

func TestParseMode(t *testing.T) {
	mode, err := inventory.ParseMode("daily")
	require.NoError(t, err)
	assert.Equal(t, inventory.ModeDaily, mode)

	_, err = inventory.ParseMode("")
	assert.ErrorIs(t, err, inventory.ErrInvalidConfig)
}
