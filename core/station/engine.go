package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/core/model"
)

// ErrBusy is returned when a procedure is requested while another one is
// still running.
var ErrBusy = errors.New("station is busy")

// AckPublisher is the engine's outbound channel for acknowledgments and
// sensor snapshots.
type AckPublisher interface {
	PublishAck(ack model.StationAck) error
	PublishSensors(snap model.SensorSnapshot) error
}

// Engine serializes procedure execution on one station. At most one
// procedure runs at a time; Stop cancels the running one.
type Engine struct {
	stationID int
	hw        Hardware
	cfg       MoveConfig
	acks      AckPublisher
	log       logger.Logger
	now       func() time.Time

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
	done   sync.WaitGroup

	limits *LimitSwitch
}

// NewEngine builds a procedure engine for one station.
func NewEngine(stationID int, hw Hardware, cfg MoveConfig, acks AckPublisher, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NopLogger{}
	}
	cfg.Defaults()
	e := &Engine{
		stationID: stationID,
		hw:        hw,
		cfg:       cfg,
		acks:      acks,
		log:       log,
		now:       time.Now,
	}
	e.limits = NewLimitSwitch(0, e.onPositionError)
	return e
}

// TripLimit records an end-of-travel switch hit. Subsequent moves run with
// the belt direction reversed; a repeat trip raises a position error.
func (e *Engine) TripLimit(side Side) {
	e.limits.Trip(side)
	e.log.Warnf("station %d: %s limit switch tripped", e.stationID, side)
}

func (e *Engine) onPositionError(side Side) {
	e.log.Errorf("station %d: position error on %s limit", e.stationID, side)
	e.publishAck(model.StationAck{
		Type:      model.AckPositionError,
		Station:   e.stationID,
		Status:    "failed",
		Timestamp: e.now(),
		Details: &model.AckDetails{
			Sensors: e.hw.Snapshot(),
			Message: "position error: repeated " + side.String() + " limit trigger",
		},
	})
}

// limitAwareHardware routes direction changes through the limit switch
// inversion state.
type limitAwareHardware struct {
	Hardware
	limits *LimitSwitch
}

func (h limitAwareHardware) SetDirection(d Direction) {
	h.Hardware.SetDirection(h.limits.Apply(d))
}

// Busy reports whether a procedure is currently running.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Start launches the named operation asynchronously. It returns ErrBusy
// when a procedure is already running; the caller decides whether to
// report that upstream.
func (e *Engine) Start(ctx context.Context, op string, taskID int64) error {
	proc, err := ProcedureFor(op)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.busy = true
	e.cancel = cancel
	e.done.Add(1)
	e.mu.Unlock()

	e.publishAck(model.StationAck{
		Type:      model.AckStarting,
		Station:   e.stationID,
		TaskID:    taskID,
		Status:    "in_progress",
		Timestamp: e.now(),
		Details:   &model.AckDetails{Operation: proc.Op, Sensors: e.hw.Snapshot()},
	})

	go e.run(runCtx, cancel, proc, taskID)
	return nil
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, proc Procedure, taskID int64) {
	// The station must come back to idle no matter how the procedure ends,
	// including a panic in a phase or the hardware layer.
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("station %d: %s panicked: %v", e.stationID, proc.Op, r)
			e.publishAck(model.StationAck{
				Type:      model.CompletionType(proc.Op),
				Station:   e.stationID,
				TaskID:    taskID,
				Status:    "failed",
				Timestamp: e.now(),
				Details:   &model.AckDetails{Operation: proc.Op, Message: fmt.Sprintf("panic: %v", r)},
			})
		}
		cancel()
		e.mu.Lock()
		e.busy = false
		e.cancel = nil
		e.mu.Unlock()
		e.done.Done()
	}()
	err := proc.Run(ctx, limitAwareHardware{e.hw, e.limits}, e.cfg, e.log)

	ack := model.StationAck{
		Type:      model.CompletionType(proc.Op),
		Station:   e.stationID,
		TaskID:    taskID,
		Status:    "completed",
		Timestamp: e.now(),
		Details:   &model.AckDetails{Operation: proc.Op, Sensors: e.hw.Snapshot()},
	}
	if err != nil {
		ack.Status = "failed"
		ack.Details.Message = err.Error()
		e.log.Errorf("station %d: %s failed: %v", e.stationID, proc.Op, err)
	} else {
		e.log.Infof("station %d: %s completed", e.stationID, proc.Op)
	}
	e.publishAck(ack)

	if e.acks != nil {
		if perr := e.acks.PublishSensors(e.hw.Snapshot()); perr != nil {
			e.log.Warnf("station %d: sensor publish failed: %v", e.stationID, perr)
		}
	}
}

// Stop cancels the running procedure, if any, and waits for it to wind
// down.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.done.Wait()
}

func (e *Engine) publishAck(ack model.StationAck) {
	if e.acks == nil {
		return
	}
	if err := e.acks.PublishAck(ack); err != nil {
		e.log.Errorf("station %d: ack publish failed: %v", e.stationID, err)
	}
}
