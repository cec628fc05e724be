// Package events defines the internal events fanned out on the process
// event bus. Consumers include the metrics sinks and the web/status layer.
package events

import (
	"time"

	"github.com/oora/tellerloop/core/model"
)

// TaskQueued is published when a dispatch request is accepted into a queue.
type TaskQueued struct {
	Task model.DispatchTask
}

// TaskAdmitted is published when a task becomes the in-flight dispatch.
type TaskAdmitted struct {
	Task model.DispatchTask
}

// TaskFinished is published when the in-flight task reaches a terminal
// status, whatever that status is.
type TaskFinished struct {
	Task     model.DispatchTask
	Duration time.Duration
}

// StationJoined is published when a station registers or re-registers.
type StationJoined struct {
	StationID int
	Node      string
	At        time.Time
}

// StationLost is published when a station is evicted for missed heartbeats
// or announces a disconnect.
type StationLost struct {
	StationID int
	LastSeen  time.Time
	Reason    string
}

// PodAvailabilityChanged is published when a station's pod-presence state
// flips.
type PodAvailabilityChanged struct {
	StationID int
	Available bool
	At        time.Time
}

// PositionError is published when a station reports a limit switch trip.
// The in-flight task keeps running; operators decide what to do.
type PositionError struct {
	StationID int
	At        time.Time
}
