package simulator

import (
	"context"
	"errors"
	"time"

	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/station"
)

// AgentBus is the slice of the station bus the agent needs.
type AgentBus interface {
	station.AckPublisher
	PublishHeartbeat() error
}

// Agent is a complete software station: it reacts to dispatch commands,
// runs procedures on its hardware and reports sensors and heartbeats the
// same way the station firmware does.
type Agent struct {
	id     int
	hw     *SimHardware
	engine *station.Engine
	bus    AgentBus
	log    logger.Logger

	heartbeatInterval time.Duration
	sensorInterval    time.Duration
}

// NewAgent builds an agent for one simulated station.
func NewAgent(id int, hw *SimHardware, bus AgentBus, move station.MoveConfig, log logger.Logger) *Agent {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Agent{
		id:                id,
		hw:                hw,
		engine:            station.NewEngine(id, hw, move, bus, log),
		bus:               bus,
		log:               log,
		heartbeatInterval: 10 * time.Second,
		sensorInterval:    50 * time.Millisecond,
	}
}

// SetIntervals overrides the heartbeat and sensor publish cadence.
func (a *Agent) SetIntervals(heartbeat, sensor time.Duration) {
	if heartbeat > 0 {
		a.heartbeatInterval = heartbeat
	}
	if sensor > 0 {
		a.sensorInterval = sensor
	}
}

// Hardware exposes the simulated electronics for scenario setup.
func (a *Agent) Hardware() *SimHardware { return a.hw }

// HandleCommand maps a dispatch command onto the local procedure engine.
// A busy station refuses with a failed ack so the coordinator can decide.
func (a *Agent) HandleCommand(cmd model.DispatchCommand) {
	var op string
	switch cmd.Role {
	case model.RoleSender:
		op = model.OpSend
	case model.RoleReceiver:
		op = model.OpReceive
	case model.RoleStandby:
		return
	default:
		a.log.Warnf("station %d: unknown role %q", a.id, cmd.Role)
		return
	}

	err := a.engine.Start(context.Background(), op, cmd.TaskID)
	if err == nil {
		return
	}
	if errors.Is(err, station.ErrBusy) {
		a.log.Warnf("station %d: refusing %s for task %d, busy", a.id, op, cmd.TaskID)
	} else {
		a.log.Errorf("station %d: cannot start %s: %v", a.id, op, err)
	}
	ack := model.StationAck{
		Type:      model.CompletionType(op),
		Station:   a.id,
		TaskID:    cmd.TaskID,
		Status:    "failed",
		Timestamp: time.Now(),
		Details:   &model.AckDetails{Operation: op, Sensors: a.hw.Snapshot(), Message: err.Error()},
	}
	if perr := a.bus.PublishAck(ack); perr != nil {
		a.log.Errorf("station %d: ack publish failed: %v", a.id, perr)
	}
}

// HandleStatus reacts to coordinator status broadcasts. The simulator only
// logs them; the hardware station also drives its display from these.
func (a *Agent) HandleStatus(st model.StatusBroadcast) {
	a.log.Debugf("station %d: status %s (task %d)", a.id, st.Status, st.TaskID)
}

// RunMaintenance starts a maintenance operation (self test, passthrough or
// a jog) on the local engine.
func (a *Agent) RunMaintenance(ctx context.Context, op string) error {
	return a.engine.Start(ctx, op, 0)
}

// HandleScript runs a remote maintenance command. Stop cancels whatever is
// running; every other operation starts the named procedure.
func (a *Agent) HandleScript(cmd model.ScriptCommand) {
	if cmd.Operation == model.OpStop {
		a.log.Infof("station %d: stop requested", a.id)
		a.engine.Stop()
		return
	}
	if err := a.RunMaintenance(context.Background(), cmd.Operation); err != nil {
		a.log.Warnf("station %d: script %s refused: %v", a.id, cmd.Operation, err)
	}
}

// Run publishes heartbeats and sensor changes until ctx is done.
func (a *Agent) Run(ctx context.Context) {
	if err := a.bus.PublishHeartbeat(); err != nil {
		a.log.Warnf("station %d: heartbeat publish failed: %v", a.id, err)
	}
	last := a.hw.Snapshot()
	if err := a.bus.PublishSensors(last); err != nil {
		a.log.Warnf("station %d: sensor publish failed: %v", a.id, err)
	}

	hb := time.NewTicker(a.heartbeatInterval)
	defer hb.Stop()
	sensors := time.NewTicker(a.sensorInterval)
	defer sensors.Stop()
	for {
		select {
		case <-ctx.Done():
			a.engine.Stop()
			return
		case <-hb.C:
			if err := a.bus.PublishHeartbeat(); err != nil {
				a.log.Warnf("station %d: heartbeat publish failed: %v", a.id, err)
			}
		case <-sensors.C:
			snap := a.hw.Snapshot()
			if snap.Equal(last) {
				continue
			}
			last = snap
			if err := a.bus.PublishSensors(snap); err != nil {
				a.log.Warnf("station %d: sensor publish failed: %v", a.id, err)
			}
		}
	}
}
