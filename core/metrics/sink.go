// Package metrics defines the sink contract for exporting tube system
// events to monitoring backends.
package metrics

import (
	"errors"

	"github.com/oora/tellerloop/core/events"
)

// Config selects and configures the metrics backends.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults fills zero fields with production values.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

// Sink receives the system's lifecycle events.
type Sink interface {
	RecordTaskQueued(ev events.TaskQueued) error
	RecordTaskAdmitted(ev events.TaskAdmitted) error
	RecordTaskFinished(ev events.TaskFinished) error
	RecordStationJoined(ev events.StationJoined) error
	RecordStationLost(ev events.StationLost) error
	RecordPodAvailability(ev events.PodAvailabilityChanged) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordTaskQueued(events.TaskQueued) error                   { return nil }
func (NopSink) RecordTaskAdmitted(events.TaskAdmitted) error               { return nil }
func (NopSink) RecordTaskFinished(events.TaskFinished) error               { return nil }
func (NopSink) RecordStationJoined(events.StationJoined) error             { return nil }
func (NopSink) RecordStationLost(events.StationLost) error                 { return nil }
func (NopSink) RecordPodAvailability(events.PodAvailabilityChanged) error { return nil }

// MultiSink fans events out to several sinks and joins their errors.
type MultiSink []Sink

func (m MultiSink) RecordTaskQueued(ev events.TaskQueued) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordTaskQueued(ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordTaskAdmitted(ev events.TaskAdmitted) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordTaskAdmitted(ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordTaskFinished(ev events.TaskFinished) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordTaskFinished(ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordStationJoined(ev events.StationJoined) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordStationJoined(ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordStationLost(ev events.StationLost) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordStationLost(ev))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordPodAvailability(ev events.PodAvailabilityChanged) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordPodAvailability(ev))
	}
	return errors.Join(errs...)
}
