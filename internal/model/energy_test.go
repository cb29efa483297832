package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridStatusFor(t *testing.T) {
	tests := []struct {
		action GridAction
		want   GridStatus
	}{
		{GridBuy, GridImporting},
		{GridSell, GridExporting},
		{GridNone, GridConnected},
		{GridAction(""), GridConnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, GridStatusFor(tt.action))
		})
	}
}

func TestInitialSnapshot(t *testing.T) {
	s := InitialSnapshot()
	assert.Equal(t, 75.0, s.BatteryLevel)
	assert.Equal(t, 85.0, s.Efficiency)
	assert.Equal(t, GridConnected, s.GridStatus)
	assert.Zero(t, s.Solar)
	assert.Zero(t, s.Wind)
	assert.Zero(t, s.EVDemand)
	assert.Zero(t, s.CarbonSaved)
	assert.Nil(t, s.Decision)
}

func TestSnapshot_JSONNames(t *testing.T) {
	s := InitialSnapshot()
	s.Decision = &Decision{BatteryAction: BatteryCharge, GridAction: GridNone}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "solarGeneration")
	assert.Contains(t, raw, "batteryLevel")
	assert.Contains(t, raw, "aiDecision")
	assert.Equal(t, "Connected", raw["gridStatus"])
}

func TestSnapshot_OmitsDecisionBeforeFirstTick(t *testing.T) {
	data, err := json.Marshal(InitialSnapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "aiDecision")
}

func TestFieldCatalog(t *testing.T) {
	assert.Equal(t, "kW", FieldCatalog[FieldSolar].Unit)
	assert.Equal(t, "%", FieldCatalog[FieldBatteryLevel].Unit)
	assert.Equal(t, "kg", FieldCatalog[FieldCarbonSaved].Unit)
	assert.Len(t, FieldCatalog, 8)
}

func TestFieldOrder_CoversCatalog(t *testing.T) {
	require.Len(t, FieldOrder, len(FieldCatalog))
	for _, f := range FieldOrder {
		_, ok := FieldCatalog[f]
		assert.True(t, ok, "field %s missing from catalog", f)
	}
}
