package coordinator

import (
	"github.com/oora/tellerloop/core/telemetry"
)

// PodGate answers whether a station has a capsule ready to send. It is a
// pure read over the telemetry store: P1 inactive means available, and a
// station that has never reported sensors has no pod.
type PodGate struct {
	store telemetry.Store
}

func NewPodGate(store telemetry.Store) *PodGate {
	return &PodGate{store: store}
}

// PodAvailable reports whether stationID can act as a sender right now.
func (g *PodGate) PodAvailable(stationID int) bool {
	snap, ok := g.store.Latest(stationID)
	if !ok {
		return false
	}
	return snap.PodAvailable()
}
