package model

import "time"

// Role tells a station which side of a dispatch it plays.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
	RoleStandby  Role = "standby"
)

// DispatchCommand instructs a station to run its side of a dispatch.
// Commands are decoded once at the bus boundary; there is no plain-string
// fallback format.
type DispatchCommand struct {
	CommandID string    `json:"command_id"`
	TaskID    int64     `json:"task_id"`
	Role      Role      `json:"role"`
	Peer      int       `json:"peer_station"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// Station operation names used in acknowledgment types.
const (
	OpSend        = "send"
	OpReceive     = "receive"
	OpSelfTest    = "self_test"
	OpPassthrough = "passthrough"
	OpJogLeft     = "jog_left"
	OpJogRight    = "jog_right"
)

// OpStop is not a procedure; a script carrying it cancels whatever the
// station is running.
const OpStop = "stop"

// AckStarting is the type of the acknowledgment emitted when a procedure
// begins. Terminal acknowledgments use "<operation>_completed".
const AckStarting = "starting"

// AckPositionError is the type of the acknowledgment a station emits when
// repeated limit switch trips indicate the belt lost its position.
const AckPositionError = "position_error"

// CompletionType builds the terminal acknowledgment type for an operation.
func CompletionType(op string) string { return op + "_completed" }

// AckDetails carries the result payload of a finished procedure.
type AckDetails struct {
	Operation string         `json:"operation"`
	Sensors   SensorSnapshot `json:"sensors"`
	Message   string         `json:"message,omitempty"`
}

// StationAck is a station-originated progress or completion report.
type StationAck struct {
	Type      string      `json:"type"`
	Station   int         `json:"station"`
	TaskID    int64       `json:"task_id"`
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Details   *AckDetails `json:"details,omitempty"`
}

// Completed reports whether the ack is a terminal one.
func (a StationAck) Completed() bool {
	return a.Type != "" && a.Type != AckStarting && a.Status != ""
}

// Succeeded reports whether a terminal ack signals success.
func (a StationAck) Succeeded() bool { return a.Status == "completed" }

// StatusBroadcast tells a station (and its dashboard) what the system
// expects of it right now.
type StatusBroadcast struct {
	Status    string    `json:"status"` // sending, receiving, standby, online, offline
	Peer      int       `json:"peer,omitempty"`
	TaskID    int64     `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScriptCommand triggers a maintenance operation on one station: a self
// test, a passthrough alignment, a jog, or a stop.
type ScriptCommand struct {
	CommandID string    `json:"command_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat is a station liveness beacon.
type Heartbeat struct {
	Station   int       `json:"station"`
	Node      string    `json:"node"`
	Timestamp time.Time `json:"timestamp"`
}

// EmptyPodRequest asks the other stations to provide an empty capsule.
type EmptyPodRequest struct {
	Requester int       `json:"requester"`
	Timestamp time.Time `json:"timestamp"`
}

// EmptyPodAccepted is a station's offer to fulfil an empty pod request.
type EmptyPodAccepted struct {
	Requester int       `json:"requester"`
	Provider  int       `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}
