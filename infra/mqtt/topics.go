package mqtt

import "fmt"

// Topic layout of the tube system. Station-scoped topics carry the numeric
// station id as the last level so subscribers can use a single wildcard.
const (
	topicPrefix = "PTS"

	// AckWildcard matches acknowledgments from every station.
	AckWildcard = topicPrefix + "/ACK/+"
	// SensorDataWildcard matches sensor snapshots from every station.
	SensorDataWildcard = topicPrefix + "/SENSORDATA/+"
	// HeartbeatWildcard matches liveness beacons from every station.
	HeartbeatWildcard = topicPrefix + "/HEARTBEAT/+"

	// EmptyPodRequestTopic carries requests for an empty capsule.
	EmptyPodRequestTopic = topicPrefix + "/EMPTY_POD_REQUEST"
	// EmptyPodAcceptedTopic carries offers answering an empty pod request.
	EmptyPodAcceptedTopic = topicPrefix + "/EMPTY_POD_ACCEPTED"
	// BlowerTopic drives the shared tube blower.
	BlowerTopic = topicPrefix + "/blower"
)

func DispatchTopic(stationID int) string {
	return fmt.Sprintf("%s/DISPATCH/%d", topicPrefix, stationID)
}

func StatusTopic(stationID int) string {
	return fmt.Sprintf("%s/STATUS/%d", topicPrefix, stationID)
}

func ScriptTopic(stationID int) string {
	return fmt.Sprintf("%s/SCRIPT/%d", topicPrefix, stationID)
}

func AckTopic(stationID int) string {
	return fmt.Sprintf("%s/ACK/%d", topicPrefix, stationID)
}

func SensorDataTopic(stationID int) string {
	return fmt.Sprintf("%s/SENSORDATA/%d", topicPrefix, stationID)
}

func HeartbeatTopic(stationID int) string {
	return fmt.Sprintf("%s/HEARTBEAT/%d", topicPrefix, stationID)
}

func EmptyPodRequestTopicFor(stationID int) string {
	return fmt.Sprintf("%s/EMPTY_POD_REQUEST/%d", topicPrefix, stationID)
}

func EmptyPodAcceptedTopicFor(stationID int) string {
	return fmt.Sprintf("%s/EMPTY_POD_ACCEPTED/%d", topicPrefix, stationID)
}
