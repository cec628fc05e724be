package simulator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StationSpec describes one simulated station in a scenario file.
type StationSpec struct {
	ID int `json:"id" yaml:"id"`
	// PodPresent controls the initial capsule bay state. Defaults to true.
	PodPresent *bool `json:"pod_present" yaml:"pod_present"`
	// SensorLatencyMS is how long a polled sensor takes to trip.
	SensorLatencyMS int `json:"sensor_latency_ms" yaml:"sensor_latency_ms"`
}

// HasPod resolves the optional PodPresent field.
func (s StationSpec) HasPod() bool {
	return s.PodPresent == nil || *s.PodPresent
}

// Scenario is a fleet of simulated stations.
type Scenario struct {
	Stations []StationSpec `json:"stations" yaml:"stations"`
}

// Validate checks for duplicate or invalid station ids.
func (s Scenario) Validate() error {
	if len(s.Stations) == 0 {
		return fmt.Errorf("scenario has no stations")
	}
	seen := make(map[int]bool, len(s.Stations))
	for _, st := range s.Stations {
		if st.ID <= 0 {
			return fmt.Errorf("invalid station id %d", st.ID)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate station id %d", st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

// LoadScenario loads a Scenario from a JSON or YAML file.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeScenario(f, ext)
}

// DecodeScenario reads from r to decode a Scenario.
func DecodeScenario(r io.Reader, format string) (Scenario, error) {
	var sc Scenario
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&sc); err != nil {
			return sc, err
		}
	case "json":
		dec := json.NewDecoder(r)
		if err := dec.Decode(&sc); err != nil {
			return sc, err
		}
	default:
		return sc, fmt.Errorf("unsupported format: %s", format)
	}
	return sc, sc.Validate()
}
