// Package config loads the service configuration from a YAML or JSON file
// with MG_ environment overrides.
package config

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"microgrid_simulator/internal/generator"
	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/mqtt"
	"microgrid_simulator/internal/simulator"
)

// EnvPrefix prefixes environment overrides; "__" separates nested keys,
// e.g. MG_SERVER__ADDR=":9090".
const EnvPrefix = "MG_"

const (
	OscillationSimulated = "simulated"
	OscillationWallClock = "wallclock"
)

type Config struct {
	Server     ServerConfig            `json:"server"`
	Simulation SimulationConfig        `json:"simulation"`
	Battery    simulator.BatteryConfig `json:"battery"`
	Metrics    MetricsConfig           `json:"metrics"`
	MQTT       MQTTConfig              `json:"mqtt"`
	Logging    LoggingConfig           `json:"logging"`
}

type ServerConfig struct {
	Addr        string   `json:"addr"`
	FrontendDir string   `json:"frontend_dir"`
	CORSOrigins []string `json:"cors_origins"`
}

type SimulationConfig struct {
	TickIntervalMS        int               `json:"tick_interval_ms"`
	Seed                  int64             `json:"seed"` // 0 seeds from the clock
	WindOscillation       string            `json:"wind_oscillation"`
	OscillationRadPerHour float64           `json:"oscillation_rad_per_hour"`
	MaxSessions           int               `json:"max_sessions"`
	Profile               generator.Profile `json:"profile"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type MQTTConfig struct {
	Enabled bool `json:"enabled"`
	mqtt.Config `json:",squash"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			FrontendDir: "frontend/build",
		},
		Simulation: SimulationConfig{
			TickIntervalMS:        1000,
			WindOscillation:       OscillationSimulated,
			OscillationRadPerHour: generator.DefaultRadPerHour,
			MaxSessions:           16,
			Profile:               generator.DefaultProfile(),
		},
		Battery: simulator.DefaultBatteryConfig(),
		Metrics: MetricsConfig{Addr: ":9100"},
		MQTT: MQTTConfig{Config: mqtt.Config{
			ClientID:    "microgrid-simulator",
			TopicPrefix: "microgrid",
			MaxRetries:  3,
			BackoffMS:   100,
		}},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	// MG_SIMULATION__TICK_INTERVAL_MS -> simulation.tick_interval_ms
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	if c.Simulation.TickIntervalMS <= 0 {
		return fmt.Errorf("simulation.tick_interval_ms must be positive, got %d", c.Simulation.TickIntervalMS)
	}
	switch c.Simulation.WindOscillation {
	case OscillationSimulated, OscillationWallClock:
	default:
		return fmt.Errorf("simulation.wind_oscillation must be %q or %q, got %q",
			OscillationSimulated, OscillationWallClock, c.Simulation.WindOscillation)
	}
	if c.Simulation.MaxSessions < 0 {
		return fmt.Errorf("simulation.max_sessions must not be negative")
	}
	if err := c.Battery.Validate(); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// Oscillator builds the wind oscillator selected by the configuration.
func (s SimulationConfig) Oscillator() generator.Oscillator {
	if s.WindOscillation == OscillationWallClock {
		return generator.WallClockOscillator(time.Now)
	}
	return generator.SimulatedOscillator(s.OscillationRadPerHour)
}

// EngineConfig returns the engine configuration for one session. Each call
// gets its own random source, so sessions seeded alike replay alike.
func (c Config) EngineConfig(log logger.Logger) simulator.Config {
	cfg := simulator.DefaultConfig()
	cfg.TickInterval = time.Duration(c.Simulation.TickIntervalMS) * time.Millisecond
	cfg.Profile = c.Simulation.Profile
	cfg.Battery = c.Battery
	cfg.Oscillator = c.Simulation.Oscillator()
	if c.Simulation.Seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(c.Simulation.Seed))
	}
	if log != nil {
		cfg.Logger = log
	}
	return cfg
}
