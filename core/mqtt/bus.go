package mqtt

import "github.com/oora/tellerloop/core/model"

// Publisher is the coordinator's outbound view of the station message
// channel. Implementations retry transient publish failures with bounded
// attempts and fixed backoff before reporting an error.
type Publisher interface {
	// PublishCommand sends a dispatch command to one station.
	PublishCommand(stationID int, cmd model.DispatchCommand) error

	// PublishStatus sends a status broadcast to one station.
	PublishStatus(stationID int, st model.StatusBroadcast) error

	// PublishScript sends a maintenance command to one station.
	PublishScript(stationID int, cmd model.ScriptCommand) error

	// PublishEmptyPodRequest relays an empty pod request to one station.
	PublishEmptyPodRequest(stationID int, req model.EmptyPodRequest) error

	// PublishEmptyPodAccepted relays an acceptance back to the requester.
	PublishEmptyPodAccepted(stationID int, acc model.EmptyPodAccepted) error
}

// Handler consumes station-originated messages. The bus invokes these
// callbacks concurrently from independent station connections; handlers
// must be safe under concurrent invocation.
type Handler interface {
	HandleAck(ack model.StationAck)
	HandleSensorData(snap model.SensorSnapshot)
	HandleHeartbeat(hb model.Heartbeat)
	HandleEmptyPodRequest(req model.EmptyPodRequest)
	HandleEmptyPodAccepted(acc model.EmptyPodAccepted)
}
