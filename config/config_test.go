package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: tcp://broker:1883
  client_id: coordinator
  max_retries: 5
dispatch:
  ack_timeout: 90s
  heartbeat_timeout: 20s
station:
  id: 2
  heartbeat_interval: 5s
history:
  backend: jsonl
  path: /tmp/history.jsonl
metrics:
  prometheus_enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	require.Equal(t, 5, cfg.MQTT.MaxRetries)
	require.Equal(t, 90*time.Second, cfg.Dispatch.AckTimeout)
	require.Equal(t, 20*time.Second, cfg.Dispatch.HeartbeatTimeout)
	require.Equal(t, 2, cfg.Station.ID)
	require.Equal(t, "jsonl", cfg.History.Backend)
	require.True(t, cfg.Metrics.PrometheusEnabled)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: tcp://broker:1883
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, cfg.Dispatch.AckTimeout)
	require.Equal(t, 15*time.Second, cfg.Dispatch.HeartbeatTimeout)
	require.Equal(t, "sqlite", cfg.History.Backend)
	require.Equal(t, "tellerloop.db", cfg.History.Path)
	require.Equal(t, ":9090", cfg.Metrics.PrometheusAddr)
	require.Equal(t, 10*time.Second, cfg.Station.HeartbeatInterval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TL_MQTT__BROKER", "tcp://other:1883")
	path := writeConfig(t, `
mqtt:
  broker: tcp://broker:1883
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://other:1883", cfg.MQTT.Broker)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := t.TempDir() + "/config.toml"
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestHistoryConfigValidate(t *testing.T) {
	c := HistoryConfig{Backend: "csv", Path: "x"}
	require.Error(t, c.Validate())
	c = HistoryConfig{Backend: "sqlite", Path: "x"}
	require.NoError(t, c.Validate())
}
