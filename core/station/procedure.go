package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oora/tellerloop/core/logger"
)

// ErrSensorTimeout is returned when a sensor wait or a motor move does
// not see its stop condition within MoveConfig.MaxWait.
var ErrSensorTimeout = errors.New("sensor wait timed out")

// phase is one step of a procedure. Phases block until done, the context
// is cancelled, or the wait bound expires.
type phase interface {
	run(ctx context.Context, hw Hardware, cfg MoveConfig) error
	message() string
}

// Procedure is an ordered motion sequence with a wire operation name.
type Procedure struct {
	Op string
	// SkipWhen short-circuits the whole sequence when the channel is
	// already active. SensorNone disables the check.
	SkipWhen SensorChannel
	phases   []phase
}

// Run executes the phases in order. The blower is forced off on any
// failure so an aborted procedure cannot leave it running.
func (p Procedure) Run(ctx context.Context, hw Hardware, cfg MoveConfig, log logger.Logger) error {
	if p.SkipWhen != SensorNone && hw.Sensor(p.SkipWhen) {
		log.Infof("%s: already in target state (%s active)", p.Op, p.SkipWhen)
		return nil
	}
	for _, ph := range p.phases {
		if err := ph.run(ctx, hw, cfg); err != nil {
			hw.SetAux(false)
			return fmt.Errorf("%s: %s: %w", p.Op, ph.message(), err)
		}
		log.Debugf("%s: %s", p.Op, ph.message())
	}
	return nil
}

// waitPhase blocks until the sensor goes active.
type waitPhase struct {
	sensor SensorChannel
	msg    string
}

func (w waitPhase) message() string { return w.msg }

func (w waitPhase) run(ctx context.Context, hw Hardware, cfg MoveConfig) error {
	deadline := time.Now().Add(cfg.MaxWait)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for !hw.Sensor(w.sensor) {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrSensorTimeout, w.sensor)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// movePhase drives the belt until the stop sensor has been seen triggers
// times. The first trigger is deliberately overshot by one revolution at
// reduced speed and then backed up onto the sensor again, which takes the
// mechanical backlash out of the stop position. With extraBackward set the
// second trigger adds a slow half-revolution reverse nudge.
type movePhase struct {
	dir           Direction
	stop          SensorChannel
	triggers      int
	extraBackward bool
	msg           string
}

func (m movePhase) message() string { return m.msg }

func (m movePhase) run(ctx context.Context, hw Hardware, cfg MoveConfig) error {
	hw.SetDirection(m.dir)
	deadline := time.Now().Add(cfg.MaxWait)
	count := 0
	for count < m.triggers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %d/%d triggers", ErrSensorTimeout, m.stop, count, m.triggers)
		}
		if hw.Sensor(m.stop) {
			count++
			if count == 1 {
				hw.Step(cfg.RevolutionSteps, cfg.StepDelay*4)
				hw.SetDirection(m.dir.Opposite())
				for !hw.Sensor(m.stop) {
					if err := ctx.Err(); err != nil {
						return err
					}
					if time.Now().After(deadline) {
						return fmt.Errorf("%w: %s during backlash return", ErrSensorTimeout, m.stop)
					}
					hw.Step(cfg.StepCount, cfg.StepDelay*4)
				}
				hw.SetDirection(m.dir)
			}
			if count == 2 && m.extraBackward {
				hw.SetDirection(m.dir.Opposite())
				hw.Step(cfg.RevolutionSteps/2, cfg.StepDelay*4)
				hw.SetDirection(m.dir)
			}
		}
		hw.Step(cfg.StepCount, cfg.StepDelay)
	}
	return nil
}

// auxPhase switches the blower relay.
type auxPhase struct {
	on  bool
	msg string
}

func (a auxPhase) message() string { return a.msg }

func (a auxPhase) run(_ context.Context, hw Hardware, _ MoveConfig) error {
	hw.SetAux(a.on)
	return nil
}

// pausePhase waits for a fixed settle time.
type pausePhase struct {
	d   time.Duration
	msg string
}

func (p pausePhase) message() string { return p.msg }

func (p pausePhase) run(ctx context.Context, _ Hardware, _ MoveConfig) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.d):
		return nil
	}
}

// jogPhase is a short fixed-length move for manual belt positioning.
type jogPhase struct {
	dir Direction
	msg string
}

func (j jogPhase) message() string { return j.msg }

func (j jogPhase) run(ctx context.Context, hw Hardware, cfg MoveConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hw.SetDirection(j.dir)
	hw.Step(cfg.JogSteps, cfg.StepDelay)
	return nil
}
