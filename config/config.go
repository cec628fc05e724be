// Package config loads the service configuration from YAML or JSON files
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/oora/tellerloop/core/coordinator"
	"github.com/oora/tellerloop/core/metrics"
	"github.com/oora/tellerloop/core/station"
	"github.com/oora/tellerloop/infra/mqtt"
)

type Config struct {
	MQTT     mqtt.Config        `json:"mqtt"`
	Dispatch coordinator.Config `json:"dispatch"`
	Station  StationConfig      `json:"station"`
	Metrics  metrics.Config     `json:"metrics"`
	History  HistoryConfig      `json:"history"`
}

// StationConfig configures a station node process.
type StationConfig struct {
	ID                int                `json:"id"`
	HeartbeatInterval time.Duration      `json:"heartbeat_interval"`
	SensorInterval    time.Duration      `json:"sensor_interval"`
	Move              station.MoveConfig `json:"move"`
}

// SetDefaults applies sane defaults.
func (c *StationConfig) SetDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.SensorInterval <= 0 {
		c.SensorInterval = 50 * time.Millisecond
	}
	c.Move.Defaults()
}

// Validate checks mandatory fields for station mode.
func (c StationConfig) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("station id must be positive")
	}
	return nil
}

// Load reads the config file at path. Environment variables prefixed with
// TL_ override file values, with __ separating nesting levels
// (TL_MQTT__BROKER overrides mqtt.broker).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
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
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("TL_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "tl_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.Defaults()
	cfg.Station.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.History.SetDefaults()
	if err := cfg.History.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
