package station

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/core/model"
)

type fakeAcks struct {
	mu    sync.Mutex
	acks  []model.StationAck
	snaps []model.SensorSnapshot
}

func (f *fakeAcks) PublishAck(ack model.StationAck) error {
	f.mu.Lock()
	f.acks = append(f.acks, ack)
	f.mu.Unlock()
	return nil
}

func (f *fakeAcks) PublishSensors(snap model.SensorSnapshot) error {
	f.mu.Lock()
	f.snaps = append(f.snaps, snap)
	f.mu.Unlock()
	return nil
}

func (f *fakeAcks) all() []model.StationAck {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.StationAck, len(f.acks))
	copy(out, f.acks)
	return out
}

func TestEngineRunsJog(t *testing.T) {
	hw := newFakeHardware()
	acks := &fakeAcks{}
	eng := NewEngine(3, hw, testMoveConfig(), acks, logger.NopLogger{})

	require.NoError(t, eng.Start(context.Background(), model.OpJogLeft, 0))
	require.Eventually(t, func() bool { return !eng.Busy() }, time.Second, time.Millisecond)
	eng.Stop()

	got := acks.all()
	require.Len(t, got, 2)
	require.Equal(t, model.AckStarting, got[0].Type)
	require.Equal(t, 3, got[0].Station)
	require.Equal(t, model.CompletionType(model.OpJogLeft), got[1].Type)
	require.Equal(t, "completed", got[1].Status)
	require.Equal(t, 10, hw.steps)
}

func TestEngineRejectsConcurrentStart(t *testing.T) {
	hw := newFakeHardware()
	acks := &fakeAcks{}
	eng := NewEngine(1, hw, testMoveConfig(), acks, logger.NopLogger{})

	// Send blocks waiting for a capsule at the bay.
	require.NoError(t, eng.Start(context.Background(), model.OpSend, 42))
	require.Eventually(t, func() bool { return eng.Busy() }, time.Second, time.Millisecond)

	require.ErrorIs(t, eng.Start(context.Background(), model.OpReceive, 43), ErrBusy)
	eng.Stop()
}

func TestEngineStopFailsProcedure(t *testing.T) {
	hw := newFakeHardware()
	acks := &fakeAcks{}
	cfg := testMoveConfig()
	cfg.MaxWait = 10 * time.Second
	eng := NewEngine(2, hw, cfg, acks, logger.NopLogger{})

	require.NoError(t, eng.Start(context.Background(), model.OpSend, 7))
	require.Eventually(t, func() bool { return eng.Busy() }, time.Second, time.Millisecond)
	eng.Stop()

	require.Eventually(t, func() bool {
		for _, ack := range acks.all() {
			if ack.Type == model.CompletionType(model.OpSend) && ack.Status == "failed" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	require.False(t, eng.Busy())
}

type panicHardware struct{ *fakeHardware }

func (panicHardware) Sensor(SensorChannel) bool { panic("sensor bus gone") }

func TestEngineRecoversFromPanic(t *testing.T) {
	hw := newFakeHardware()
	acks := &fakeAcks{}
	eng := NewEngine(7, panicHardware{hw}, testMoveConfig(), acks, logger.NopLogger{})

	// Send polls a sensor right away, which blows up in the fake.
	require.NoError(t, eng.Start(context.Background(), model.OpSend, 12))
	require.Eventually(t, func() bool { return !eng.Busy() }, time.Second, time.Millisecond)

	got := acks.all()
	require.Len(t, got, 2)
	require.Equal(t, model.CompletionType(model.OpSend), got[1].Type)
	require.Equal(t, "failed", got[1].Status)
	require.Equal(t, int64(12), got[1].TaskID)
	require.Contains(t, got[1].Details.Message, "panic")

	// The station is idle again and accepts the next procedure. A jog
	// never touches the sensors, so it runs through.
	require.NoError(t, eng.Start(context.Background(), model.OpJogLeft, 0))
	require.Eventually(t, func() bool { return !eng.Busy() }, time.Second, time.Millisecond)
	eng.Stop()
}

func TestEngineLimitTripInvertsDirection(t *testing.T) {
	hw := newFakeHardware()
	eng := NewEngine(5, hw, testMoveConfig(), &fakeAcks{}, logger.NopLogger{})

	eng.TripLimit(SideLeft)
	require.NoError(t, eng.Start(context.Background(), model.OpJogLeft, 0))
	require.Eventually(t, func() bool { return !eng.Busy() }, time.Second, time.Millisecond)
	eng.Stop()

	require.Equal(t, []Direction{DirRight}, hw.dirs)
}

func TestEngineRepeatLimitTripRaisesPositionError(t *testing.T) {
	hw := newFakeHardware()
	acks := &fakeAcks{}
	eng := NewEngine(6, hw, testMoveConfig(), acks, logger.NopLogger{})

	eng.TripLimit(SideRight)
	eng.TripLimit(SideRight)

	got := acks.all()
	require.Len(t, got, 1)
	require.Equal(t, "position_error", got[0].Type)
	require.Equal(t, "failed", got[0].Status)
	require.Contains(t, got[0].Details.Message, "right limit")
}

func TestEngineFailureAckCarriesTimeout(t *testing.T) {
	hw := newFakeHardware()
	acks := &fakeAcks{}
	cfg := testMoveConfig()
	cfg.MaxWait = 10 * time.Millisecond
	eng := NewEngine(4, hw, cfg, acks, logger.NopLogger{})

	require.NoError(t, eng.Start(context.Background(), model.OpSend, 9))
	require.Eventually(t, func() bool { return !eng.Busy() }, time.Second, time.Millisecond)
	eng.Stop()

	got := acks.all()
	require.Len(t, got, 2)
	require.Equal(t, "failed", got[1].Status)
	require.Contains(t, got[1].Details.Message, "timed out")
	require.Equal(t, int64(9), got[1].TaskID)
}
