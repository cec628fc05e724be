// Package station runs the motion procedures of a single tube station:
// send, receive, self test, passthrough and the maintenance jogs.
package station

import (
	"time"

	"github.com/oora/tellerloop/core/model"
)

// Direction is the belt drive direction.
type Direction int

const (
	DirLeft Direction = iota
	DirRight
)

func (d Direction) Opposite() Direction {
	if d == DirLeft {
		return DirRight
	}
	return DirLeft
}

func (d Direction) String() string {
	if d == DirRight {
		return "right"
	}
	return "left"
}

// SensorChannel identifies one of the eight station sensors. S channels
// sit along the belt and stop motor moves, P channels detect the capsule
// at the bay positions.
type SensorChannel int

const (
	SensorNone SensorChannel = iota - 1
	SensorS1
	SensorS2
	SensorS3
	SensorS4
	SensorP1
	SensorP2
	SensorP3
	SensorP4
)

func (c SensorChannel) String() string {
	switch c {
	case SensorS1:
		return "S1"
	case SensorS2:
		return "S2"
	case SensorS3:
		return "S3"
	case SensorS4:
		return "S4"
	case SensorP1:
		return "P1"
	case SensorP2:
		return "P2"
	case SensorP3:
		return "P3"
	case SensorP4:
		return "P4"
	}
	return "none"
}

// Hardware abstracts the station electronics. Sensor returns the logical
// state of a channel with electrical polarity already corrected, so true
// always means triggered. Implementations are the GPIO driver on the
// station node and the simulator.
type Hardware interface {
	Sensor(ch SensorChannel) bool
	Snapshot() model.SensorSnapshot
	SetDirection(d Direction)
	// Step emits n motor step pulses with the given per-pulse delay.
	Step(n int, delay time.Duration)
	// SetAux drives the blower relay.
	SetAux(on bool)
}

// MoveConfig holds the motion tunables. The defaults match the deployed
// stepper geometry.
type MoveConfig struct {
	StepDelay       time.Duration `json:"step_delay"`
	StepCount       int           `json:"step_count"`
	RevolutionSteps int           `json:"revolution_steps"`
	JogSteps        int           `json:"jog_steps"`
	PollInterval    time.Duration `json:"poll_interval"`
	// MaxWait bounds every sensor wait and motor move so a dead sensor
	// cannot hang a procedure forever.
	MaxWait time.Duration `json:"max_wait"`
}

// Defaults fills zero fields with production values.
func (c *MoveConfig) Defaults() {
	if c.StepDelay <= 0 {
		c.StepDelay = 300 * time.Microsecond
	}
	if c.StepCount <= 0 {
		c.StepCount = 5
	}
	if c.RevolutionSteps <= 0 {
		c.RevolutionSteps = 300
	}
	if c.JogSteps <= 0 {
		c.JogSteps = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 90 * time.Second
	}
}
