package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/internal/eventbus"
)

func TestRegistryHeartbeatFromUnknownIsIgnored(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	r.OnHeartbeat(4)
	require.False(t, r.Alive(4))
	require.Empty(t, r.List())
}

func TestRegistryJoinAndSweep(t *testing.T) {
	r := NewRegistry(15*time.Second, nil)
	now := time.Now()
	r.now = func() time.Time { return now }

	r.OnJoin(1, "passthrough-station-1")
	r.OnJoin(2, "passthrough-station-2")
	require.True(t, r.Alive(1))
	require.Len(t, r.List(), 2)

	// Station 2 keeps beating, station 1 goes silent.
	now = now.Add(10 * time.Second)
	r.OnHeartbeat(2)
	now = now.Add(10 * time.Second)

	evicted := r.Sweep()
	require.Equal(t, []int{1}, evicted)
	require.False(t, r.Alive(1))
	require.True(t, r.Alive(2))
}

func TestRegistryDisconnectPublishesEvent(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	r := NewRegistry(time.Minute, bus)

	r.OnJoin(3, "passthrough-station-3")
	r.OnDisconnect(3)
	require.False(t, r.Alive(3))

	var lost bool
	for len(sub) > 0 {
		if _, ok := (<-sub).(events.StationLost); ok {
			lost = true
		}
	}
	require.True(t, lost)
}

func TestRegistryRejoinKeepsJoinTime(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	now := time.Now()
	r.now = func() time.Time { return now }

	r.OnJoin(5, "passthrough-station-5")
	joined := r.List()[0].JoinedAt

	now = now.Add(30 * time.Second)
	r.OnJoin(5, "passthrough-station-5")
	require.Equal(t, joined, r.List()[0].JoinedAt)
	require.Equal(t, now, r.List()[0].LastSeen)
}
