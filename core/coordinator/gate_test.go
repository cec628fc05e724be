package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/telemetry"
)

func TestPodGate(t *testing.T) {
	store := telemetry.NewMemoryStore()
	gate := NewPodGate(store)

	// No snapshot yet means no pod.
	require.False(t, gate.PodAvailable(1))

	store.Upsert(model.SensorSnapshot{StationID: 1, P1: false, ObservedAt: time.Now()})
	require.True(t, gate.PodAvailable(1))

	store.Upsert(model.SensorSnapshot{StationID: 1, P1: true, ObservedAt: time.Now()})
	require.False(t, gate.PodAvailable(1))
}
