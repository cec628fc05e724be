package model

import "time"

// SensorSnapshot is the latest known sensor state for a station. The
// station agent corrects polarity at the edge (the inputs are electrically
// active-low), so every channel here is a logical "active" flag: S1-S4 are
// the carrier sensors along the belt, P1-P4 the capsule position sensors.
//
// P1 is the canonical pod-presence channel: P1 inactive means the bay is
// clear and a pod is ready to be sent.
type SensorSnapshot struct {
	StationID  int       `json:"station_id"`
	S1         bool      `json:"S1"`
	S2         bool      `json:"S2"`
	S3         bool      `json:"S3"`
	S4         bool      `json:"S4"`
	P1         bool      `json:"P1"`
	P2         bool      `json:"P2"`
	P3         bool      `json:"P3"`
	P4         bool      `json:"P4"`
	ObservedAt time.Time `json:"observed_at"`
}

// PodAvailable reports whether a pod can be dispatched from the station
// this snapshot belongs to.
func (s SensorSnapshot) PodAvailable() bool {
	return !s.P1
}

// Equal compares the sensor channels of two snapshots, ignoring the
// observation time. Stations use this to publish only on change.
func (s SensorSnapshot) Equal(o SensorSnapshot) bool {
	return s.S1 == o.S1 && s.S2 == o.S2 && s.S3 == o.S3 && s.S4 == o.S4 &&
		s.P1 == o.P1 && s.P2 == o.P2 && s.P3 == o.P3 && s.P4 == o.P4
}
