// Package simulator provides a software station for development and
// integration testing: simulated electronics plus an agent that speaks
// the real wire protocol.
package simulator

import (
	"sync"
	"time"

	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/station"
)

// SimHardware is a station.Hardware implementation without electronics.
// A sensor trips a configurable latency after it is first polled and then
// resets, which makes every wait and motor move eventually succeed, so a
// full procedure plays out in roughly real time. Individual channels can
// be pinned with SetSensor to model a stuck capsule or an empty bay.
type SimHardware struct {
	stationID int
	latency   time.Duration

	mu     sync.Mutex
	armed  map[station.SensorChannel]time.Time
	pinned map[station.SensorChannel]bool
	dir    station.Direction
	steps  int64
	aux    bool
	onAux  func(on bool)
}

// NewSimHardware builds simulated electronics for one station.
func NewSimHardware(stationID int, latency time.Duration) *SimHardware {
	if latency <= 0 {
		latency = 200 * time.Millisecond
	}
	return &SimHardware{
		stationID: stationID,
		latency:   latency,
		armed:     map[station.SensorChannel]time.Time{},
		pinned:    map[station.SensorChannel]bool{},
	}
}

// OnAux registers a callback invoked on every blower relay change.
func (h *SimHardware) OnAux(fn func(on bool)) {
	h.mu.Lock()
	h.onAux = fn
	h.mu.Unlock()
}

// SetSensor pins a channel to a fixed state, overriding the simulation.
func (h *SimHardware) SetSensor(ch station.SensorChannel, active bool) {
	h.mu.Lock()
	h.pinned[ch] = active
	h.mu.Unlock()
}

// ClearSensor removes a pin set by SetSensor.
func (h *SimHardware) ClearSensor(ch station.SensorChannel) {
	h.mu.Lock()
	delete(h.pinned, ch)
	h.mu.Unlock()
}

func (h *SimHardware) Sensor(ch station.SensorChannel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.pinned[ch]; ok {
		return v
	}
	now := time.Now()
	armedAt, ok := h.armed[ch]
	if !ok {
		h.armed[ch] = now
		return false
	}
	if now.Sub(armedAt) >= h.latency {
		delete(h.armed, ch)
		return true
	}
	return false
}

func (h *SimHardware) Snapshot() model.SensorSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return model.SensorSnapshot{
		StationID:  h.stationID,
		S1:         h.pinned[station.SensorS1],
		S2:         h.pinned[station.SensorS2],
		S3:         h.pinned[station.SensorS3],
		S4:         h.pinned[station.SensorS4],
		P1:         h.pinned[station.SensorP1],
		P2:         h.pinned[station.SensorP2],
		P3:         h.pinned[station.SensorP3],
		P4:         h.pinned[station.SensorP4],
		ObservedAt: time.Now(),
	}
}

func (h *SimHardware) SetDirection(d station.Direction) {
	h.mu.Lock()
	h.dir = d
	h.mu.Unlock()
}

func (h *SimHardware) Step(n int, delay time.Duration) {
	h.mu.Lock()
	h.steps += int64(n)
	h.mu.Unlock()
	time.Sleep(time.Duration(n) * delay)
}

func (h *SimHardware) SetAux(on bool) {
	h.mu.Lock()
	h.aux = on
	fn := h.onAux
	h.mu.Unlock()
	if fn != nil {
		fn(on)
	}
}

// Steps returns the total motor steps driven so far.
func (h *SimHardware) Steps() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.steps
}

// Aux returns the current blower relay state.
func (h *SimHardware) Aux() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aux
}
