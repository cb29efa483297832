package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid_simulator/internal/config"
)

func TestParseEfficiencies(t *testing.T) {
	effs, err := parseEfficiencies("0.95, 0.75,,0.85")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.95, 0.75, 0.85}, effs)

	for _, in := range []string{"", " , ", "abc", "0", "1.2", "-0.5"} {
		_, err := parseEfficiencies(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestRunHeadless_SameSeedReplays(t *testing.T) {
	cfg := config.Default()
	opts := &runOptions{ticks: 72, seed: 11, format: "table"}

	a, err := runHeadless(&cfg, opts)
	require.NoError(t, err)
	b, err := runHeadless(&cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a.Results, 1)
	assert.Equal(t, 72, a.Results[0].Summary.Ticks)
	assert.Equal(t, cfg.Battery.ChargeEfficiency, a.Results[0].ChargeEfficiency)
}

func TestRunHeadless_SortsEfficiencies(t *testing.T) {
	cfg := config.Default()
	r, err := runHeadless(&cfg, &runOptions{ticks: 48, seed: 3, efficiencies: "0.9,0.6", format: "json"})
	require.NoError(t, err)
	require.Len(t, r.Results, 2)
	assert.Equal(t, 0.6, r.Results[0].ChargeEfficiency)
	assert.Equal(t, 0.9, r.Results[1].ChargeEfficiency)
	assert.Equal(t, int64(3), r.Seed)
	// Weather is shared, so only battery-dependent figures differ.
	assert.Equal(t, r.Results[0].Summary.SolarKWh, r.Results[1].Summary.SolarKWh)
	assert.Equal(t, r.Results[0].Summary.DemandKWh, r.Results[1].Summary.DemandKWh)
	// The caller's config is left untouched.
	assert.Equal(t, int64(0), cfg.Simulation.Seed)
}

func TestRunHeadless_RejectsBadOptions(t *testing.T) {
	cfg := config.Default()
	_, err := runHeadless(&cfg, &runOptions{ticks: 0, format: "table"})
	assert.Error(t, err)
	_, err = runHeadless(&cfg, &runOptions{ticks: 10, format: "xml"})
	assert.Error(t, err)
	_, err = runHeadless(&cfg, &runOptions{ticks: 10, format: "table", efficiencies: "2"})
	assert.Error(t, err)
}

func TestRunCmd_JSONOutput(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--ticks", "24", "--seed", "5", "--format", "json", "--efficiencies", "0.8,0.9"})
	require.NoError(t, cmd.Execute())

	var report runReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 24, report.Ticks)
	assert.Equal(t, int64(5), report.Seed)
	require.Len(t, report.Results, 2)
	for _, r := range report.Results {
		assert.Equal(t, 24, r.Summary.Ticks)
		assert.GreaterOrEqual(t, r.Final.BatteryLevel, 0.0)
		assert.LessOrEqual(t, r.Final.BatteryLevel, 100.0)
	}
}

func TestRunCmd_TableOutput(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--ticks", "12", "--seed", "5"})
	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "Charge Efficiency Comparison")
	assert.Contains(t, s, "Ticks: 12 (0.5 days), seed: 5")
	assert.Contains(t, s, "85%")
}

func TestRootCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--config", "/nonexistent/config.yaml"})
	assert.Error(t, cmd.Execute())
}
