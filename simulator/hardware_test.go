package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oora/tellerloop/core/station"
)

func TestSensorTripsAfterLatency(t *testing.T) {
	hw := NewSimHardware(1, 20*time.Millisecond)

	// First poll arms the channel, it trips once the latency has passed
	// and then re-arms.
	require.False(t, hw.Sensor(station.SensorP1))
	require.Eventually(t, func() bool {
		return hw.Sensor(station.SensorP1)
	}, time.Second, 2*time.Millisecond)
	require.False(t, hw.Sensor(station.SensorP1))
}

func TestPinnedSensorOverridesSimulation(t *testing.T) {
	hw := NewSimHardware(1, time.Millisecond)

	hw.SetSensor(station.SensorS2, true)
	require.True(t, hw.Sensor(station.SensorS2))
	require.True(t, hw.Sensor(station.SensorS2), "pinned channels do not reset")

	hw.ClearSensor(station.SensorS2)
	require.False(t, hw.Sensor(station.SensorS2))
}

func TestSnapshotReflectsPins(t *testing.T) {
	hw := NewSimHardware(4, time.Millisecond)
	require.True(t, hw.Snapshot().PodAvailable())

	hw.SetSensor(station.SensorP1, true)
	snap := hw.Snapshot()
	require.Equal(t, 4, snap.StationID)
	require.True(t, snap.P1)
	require.False(t, snap.PodAvailable())
}

func TestStepAndAuxBookkeeping(t *testing.T) {
	hw := NewSimHardware(1, time.Millisecond)

	var blower []bool
	hw.OnAux(func(on bool) { blower = append(blower, on) })

	hw.SetDirection(station.DirRight)
	hw.Step(7, 0)
	hw.Step(3, 0)
	require.Equal(t, int64(10), hw.Steps())

	hw.SetAux(true)
	hw.SetAux(false)
	require.False(t, hw.Aux())
	require.Equal(t, []bool{true, false}, blower)
}
