package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority classifies a dispatch request into one of the two queue tiers.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// ParsePriority maps a request string to a tier. Unrecognized values fall
// back to the normal tier.
func ParsePriority(s string) Priority {
	if strings.EqualFold(s, "high") {
		return PriorityHigh
	}
	return PriorityNormal
}

// String returns a human-readable representation of the priority tier.
func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// TaskStatus is the lifecycle state of a dispatch task. Transitions are
// one-way: queued -> in_progress -> completed/failed/aborted.
type TaskStatus string

const (
	StatusQueued     TaskStatus = "queued"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusAborted    TaskStatus = "aborted"
)

// Terminal reports whether the status is a final one.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// DispatchTask represents one requested capsule movement between two
// stations. Tasks are owned and mutated exclusively by the coordinator;
// everything else treats them as read-only values.
type DispatchTask struct {
	ID               int64      `json:"task_id"`
	From             int        `json:"from"`
	To               int        `json:"to"`
	Priority         Priority   `json:"priority"`
	CreatedAt        time.Time  `json:"created_at"`
	Status           TaskStatus `json:"status"`
	ExecutionDetails string     `json:"execution_details,omitempty"`
}

// StationName returns the bus identity for a station id, matching the
// naming used by the station firmware.
func StationName(id int) string {
	return fmt.Sprintf("passthrough-station-%d", id)
}
