package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/station"
)

type recordBus struct {
	mu    sync.Mutex
	acks  []model.StationAck
	snaps []model.SensorSnapshot
	beats int
}

func (b *recordBus) PublishAck(ack model.StationAck) error {
	b.mu.Lock()
	b.acks = append(b.acks, ack)
	b.mu.Unlock()
	return nil
}

func (b *recordBus) PublishSensors(snap model.SensorSnapshot) error {
	b.mu.Lock()
	b.snaps = append(b.snaps, snap)
	b.mu.Unlock()
	return nil
}

func (b *recordBus) PublishHeartbeat() error {
	b.mu.Lock()
	b.beats++
	b.mu.Unlock()
	return nil
}

func (b *recordBus) ackTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, a := range b.acks {
		out = append(out, a.Type+":"+a.Status)
	}
	return out
}

func fastMove() station.MoveConfig {
	return station.MoveConfig{
		StepDelay:       time.Microsecond,
		StepCount:       5,
		RevolutionSteps: 20,
		JogSteps:        10,
		PollInterval:    time.Millisecond,
		MaxWait:         2 * time.Second,
	}
}

func TestAgentRunsSendCommand(t *testing.T) {
	hw := NewSimHardware(1, 5*time.Millisecond)
	bus := &recordBus{}
	agent := NewAgent(1, hw, bus, fastMove(), logger.NopLogger{})

	agent.HandleCommand(model.DispatchCommand{TaskID: 3, Role: model.RoleSender, Peer: 2})

	require.Eventually(t, func() bool {
		for _, typ := range bus.ackTypes() {
			if typ == "send_completed:completed" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, hw.Aux(), "blower should be running after send")
}

func TestAgentRefusesWhenBusy(t *testing.T) {
	hw := NewSimHardware(1, 50*time.Millisecond)
	// Keep the engine stuck waiting for an inbound capsule.
	hw.SetSensor(station.SensorP3, false)
	bus := &recordBus{}
	agent := NewAgent(1, hw, bus, fastMove(), logger.NopLogger{})

	agent.HandleCommand(model.DispatchCommand{TaskID: 5, Role: model.RoleReceiver, Peer: 2})
	require.Eventually(t, func() bool {
		return len(bus.ackTypes()) > 0
	}, time.Second, 5*time.Millisecond)

	agent.HandleCommand(model.DispatchCommand{TaskID: 6, Role: model.RoleSender, Peer: 3})
	require.Eventually(t, func() bool {
		for _, a := range bus.ackTypes() {
			if a == "send_completed:failed" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestAgentRunsScriptCommand(t *testing.T) {
	hw := NewSimHardware(3, 5*time.Millisecond)
	bus := &recordBus{}
	agent := NewAgent(3, hw, bus, fastMove(), logger.NopLogger{})

	agent.HandleScript(model.ScriptCommand{Operation: model.OpJogLeft, Timestamp: time.Now()})

	require.Eventually(t, func() bool {
		for _, typ := range bus.ackTypes() {
			if typ == "jog_left_completed:completed" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestAgentScriptStopCancelsProcedure(t *testing.T) {
	hw := NewSimHardware(1, 50*time.Millisecond)
	// Keep the engine stuck waiting for an inbound capsule.
	hw.SetSensor(station.SensorP3, false)
	bus := &recordBus{}
	agent := NewAgent(1, hw, bus, fastMove(), logger.NopLogger{})

	agent.HandleCommand(model.DispatchCommand{TaskID: 11, Role: model.RoleReceiver, Peer: 2})
	require.Eventually(t, func() bool {
		return len(bus.ackTypes()) > 0
	}, time.Second, 5*time.Millisecond)

	agent.HandleScript(model.ScriptCommand{Operation: model.OpStop, Timestamp: time.Now()})
	require.Eventually(t, func() bool {
		for _, typ := range bus.ackTypes() {
			if typ == "receive_completed:failed" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestAgentStandbyIsIgnored(t *testing.T) {
	hw := NewSimHardware(1, time.Millisecond)
	bus := &recordBus{}
	agent := NewAgent(1, hw, bus, fastMove(), logger.NopLogger{})

	agent.HandleCommand(model.DispatchCommand{TaskID: 9, Role: model.RoleStandby})
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, bus.ackTypes())
}

func TestAgentPublishesSensorChanges(t *testing.T) {
	hw := NewSimHardware(2, time.Hour)
	bus := &recordBus{}
	agent := NewAgent(2, hw, bus, fastMove(), logger.NopLogger{})
	agent.SetIntervals(time.Hour, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.snaps) == 1 && bus.beats == 1
	}, time.Second, 5*time.Millisecond)

	hw.SetSensor(station.SensorP1, true)
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.snaps) == 2 && bus.snaps[1].P1
	}, time.Second, 5*time.Millisecond)
}
