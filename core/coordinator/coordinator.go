// Package coordinator owns the dispatch lifecycle: admission, the single
// in-flight task, completion and abort, plus station liveness.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/core/history"
	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/mqtt"
	"github.com/oora/tellerloop/internal/eventbus"
)

// Config holds the coordinator tunables.
type Config struct {
	// AckTimeout bounds how long an admitted task may run without a
	// terminal acknowledgment before it is failed.
	AckTimeout time.Duration `json:"ack_timeout"`
	// HeartbeatTimeout is the liveness window for registered stations.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout"`
	// SweepInterval is how often stale stations are evicted.
	SweepInterval time.Duration `json:"sweep_interval"`
}

// Defaults fills zero fields with production values.
func (c *Config) Defaults() {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 2 * time.Minute
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 15 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
}

// Coordinator serializes capsule dispatches over the shared tube. At most
// one task is in flight at any time; everything else waits in the two-tier
// queue. It also consumes the inbound station messages, so it implements
// mqtt.Handler.
type Coordinator struct {
	cfg      Config
	pub      mqtt.Publisher
	gate     *PodGate
	registry *Registry
	hist     history.Store
	telem    telemetryUpserter
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	queue    *taskQueue
	inflight *model.DispatchTask
	started  time.Time
	ackTimer *time.Timer

	persist chan func(context.Context) error
}

// telemetryUpserter is the slice of the telemetry store the coordinator
// needs for inbound sensor data.
type telemetryUpserter interface {
	Upsert(model.SensorSnapshot)
	Latest(stationID int) (model.SensorSnapshot, bool)
}

// New builds a coordinator. All dependencies are required except bus.
func New(cfg Config, pub mqtt.Publisher, gate *PodGate, registry *Registry, hist history.Store, telem telemetryUpserter, bus eventbus.EventBus, log logger.Logger) (*Coordinator, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("pod gate is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if hist == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if telem == nil {
		return nil, fmt.Errorf("telemetry store is required")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	cfg.Defaults()
	c := &Coordinator{
		cfg:      cfg,
		pub:      pub,
		gate:     gate,
		registry: registry,
		hist:     hist,
		telem:    telem,
		bus:      bus,
		log:      log,
		now:      time.Now,
		queue:    newTaskQueue(),
		persist:  make(chan func(context.Context) error, 128),
	}
	go c.persistLoop()
	return c, nil
}

// Run blocks until ctx is done, sweeping stale stations in the background.
func (c *Coordinator) Run(ctx context.Context) {
	c.registry.Run(ctx.Done(), c.cfg.SweepInterval)
	c.mu.Lock()
	if c.ackTimer != nil {
		c.ackTimer.Stop()
	}
	c.mu.Unlock()
}

// RequestDispatch validates and enqueues a capsule movement. The returned
// task carries the persistent id assigned by the history store. The task
// may already be in flight by the time this returns.
func (c *Coordinator) RequestDispatch(ctx context.Context, from, to int, priority model.Priority) (model.DispatchTask, error) {
	if from == to {
		admissionRejected.WithLabelValues("same_station").Inc()
		return model.DispatchTask{}, ErrSameStation
	}
	if !c.registry.Alive(from) || !c.registry.Alive(to) {
		admissionRejected.WithLabelValues("unknown_station").Inc()
		return model.DispatchTask{}, fmt.Errorf("dispatch %d -> %d: %w", from, to, ErrUnknownStation)
	}
	if !c.gate.PodAvailable(from) {
		admissionRejected.WithLabelValues("no_pod").Inc()
		return model.DispatchTask{}, fmt.Errorf("station %d: %w", from, ErrPodUnavailable)
	}

	task := model.DispatchTask{
		From:      from,
		To:        to,
		Priority:  priority,
		CreatedAt: c.now(),
		Status:    model.StatusQueued,
	}
	id, err := c.hist.AppendTask(ctx, task)
	if err != nil {
		return model.DispatchTask{}, fmt.Errorf("persist task: %w", err)
	}
	task.ID = id

	c.mu.Lock()
	t := task
	c.queue.push(&t)
	queueDepth.WithLabelValues(priority.String()).Set(float64(c.tierLenLocked(priority)))
	if c.bus != nil {
		c.bus.Publish(events.TaskQueued{Task: t})
	}
	c.log.Infof("task %d queued: %d -> %d (%s)", t.ID, from, to, priority)
	c.admitNextLocked()
	snapshot := t
	c.mu.Unlock()
	return snapshot, nil
}

func (c *Coordinator) tierLenLocked(p model.Priority) int {
	if p == model.PriorityHigh {
		return len(c.queue.high)
	}
	return len(c.queue.normal)
}

// admitNextLocked promotes the next eligible queued task to in flight.
// Tasks whose preconditions no longer hold are failed and skipped so one
// bad request cannot wedge the queue. Caller holds c.mu.
func (c *Coordinator) admitNextLocked() {
	if c.inflight != nil {
		return
	}
	for {
		t, ok := c.queue.pop()
		if !ok {
			return
		}
		queueDepth.WithLabelValues(t.Priority.String()).Set(float64(c.tierLenLocked(t.Priority)))

		if !c.registry.Alive(t.From) || !c.registry.Alive(t.To) {
			c.failSkippedLocked(t, "station went offline before admission")
			continue
		}
		if !c.gate.PodAvailable(t.From) {
			c.failSkippedLocked(t, "pod no longer available at source")
			continue
		}
		if err := c.publishDispatch(t); err != nil {
			c.log.Errorf("task %d: dispatch publish failed: %v", t.ID, err)
			c.failSkippedLocked(t, "command delivery failed: "+err.Error())
			continue
		}

		t.Status = model.StatusInProgress
		c.inflight = t
		c.started = c.now()
		c.persistTask(*t)
		if c.bus != nil {
			c.bus.Publish(events.TaskAdmitted{Task: *t})
		}
		c.log.Infof("task %d in flight: %d -> %d", t.ID, t.From, t.To)

		id := t.ID
		c.ackTimer = time.AfterFunc(c.cfg.AckTimeout, func() { c.onAckTimeout(id) })
		return
	}
}

// failSkippedLocked finalizes a task that never made it in flight.
func (c *Coordinator) failSkippedLocked(t *model.DispatchTask, details string) {
	t.Status = model.StatusFailed
	t.ExecutionDetails = details
	c.persistTask(*t)
	tasksFinished.WithLabelValues(string(model.StatusFailed)).Inc()
	if c.bus != nil {
		c.bus.Publish(events.TaskFinished{Task: *t})
	}
	c.log.Warnf("task %d failed before admission: %s", t.ID, details)
}

// publishDispatch sends the role commands to both endpoints and status
// broadcasts to every registered station.
func (c *Coordinator) publishDispatch(t *model.DispatchTask) error {
	now := c.now()
	send := model.DispatchCommand{
		CommandID: uuid.NewString(),
		TaskID:    t.ID,
		Role:      model.RoleSender,
		Peer:      t.To,
		Priority:  t.Priority.String(),
		Timestamp: now,
	}
	recv := model.DispatchCommand{
		CommandID: uuid.NewString(),
		TaskID:    t.ID,
		Role:      model.RoleReceiver,
		Peer:      t.From,
		Priority:  t.Priority.String(),
		Timestamp: now,
	}
	if err := c.pub.PublishCommand(t.From, send); err != nil {
		return fmt.Errorf("sender command: %w", err)
	}
	if err := c.pub.PublishCommand(t.To, recv); err != nil {
		return fmt.Errorf("receiver command: %w", err)
	}
	for _, rec := range c.registry.List() {
		st := model.StatusBroadcast{Status: "standby", TaskID: t.ID, Timestamp: now}
		switch rec.StationID {
		case t.From:
			st.Status = "sending"
			st.Peer = t.To
		case t.To:
			st.Status = "receiving"
			st.Peer = t.From
		}
		if err := c.pub.PublishStatus(rec.StationID, st); err != nil {
			c.log.Warnf("status broadcast to station %d failed: %v", rec.StationID, err)
		}
	}
	return nil
}

// ReportCompletion finalizes the in-flight task. Reports for a task that
// is not in flight are logged and discarded, which makes completion
// idempotent against duplicate or late acknowledgments.
func (c *Coordinator) ReportCompletion(stationID int, taskID int64, success bool, details string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.inflight
	if t == nil || t.ID != taskID {
		c.log.Debugf("stale completion for task %d from station %d ignored", taskID, stationID)
		return
	}
	if success && stationID == t.From {
		// The sender finishing only means the capsule left. The dispatch
		// is done when the receiver has it.
		if details != "" {
			t.ExecutionDetails = details
			c.persistTask(*t)
		}
		c.log.Debugf("task %d: sender %d finished", taskID, stationID)
		return
	}
	status := model.StatusCompleted
	if !success {
		status = model.StatusFailed
	}
	c.finishLocked(status, details)
}

// AbortCurrent forces the in-flight task into the aborted state and frees
// the tube for the next queued task. With nothing in flight there is
// nothing to abort and ErrNoTaskInFlight comes back; callers treating
// abort as fire-and-forget can ignore it.
func (c *Coordinator) AbortCurrent(details string) (model.DispatchTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return model.DispatchTask{}, ErrNoTaskInFlight
	}
	aborted := *c.inflight
	c.finishLocked(model.StatusAborted, details)
	aborted.Status = model.StatusAborted
	aborted.ExecutionDetails = details
	return aborted, nil
}

// finishLocked moves the in-flight task to a terminal status, persists it,
// publishes the lifecycle event and admits the next task. Caller holds c.mu.
func (c *Coordinator) finishLocked(status model.TaskStatus, details string) {
	t := c.inflight
	t.Status = status
	if details != "" {
		t.ExecutionDetails = details
	}
	if c.ackTimer != nil {
		c.ackTimer.Stop()
		c.ackTimer = nil
	}
	c.inflight = nil
	dur := c.now().Sub(c.started)
	c.persistTask(*t)
	tasksFinished.WithLabelValues(string(status)).Inc()
	dispatchDuration.WithLabelValues(string(status)).Observe(dur.Seconds())
	if c.bus != nil {
		c.bus.Publish(events.TaskFinished{Task: *t, Duration: dur})
	}
	c.log.Infof("task %d finished: %s (%s)", t.ID, status, dur.Round(time.Millisecond))
	c.admitNextLocked()

	// With nothing left to admit, return every station to standby.
	if c.inflight == nil {
		st := model.StatusBroadcast{Status: "standby", Timestamp: c.now()}
		for _, rec := range c.registry.List() {
			if err := c.pub.PublishStatus(rec.StationID, st); err != nil {
				c.log.Warnf("standby broadcast to station %d failed: %v", rec.StationID, err)
			}
		}
	}
}

// onAckTimeout fails the in-flight task if it is still the one the timer
// was armed for.
func (c *Coordinator) onAckTimeout(taskID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil || c.inflight.ID != taskID {
		return
	}
	c.log.Errorf("task %d: no completion within %s", taskID, c.cfg.AckTimeout)
	c.finishLocked(model.StatusFailed, "acknowledgment timeout")
}

// persistLoop is the single history writer. Funneling every write through
// one goroutine keeps the stored lifecycle in the order the coordinator
// produced it; a terminal status is never overwritten by an earlier
// in_progress write.
func (c *Coordinator) persistLoop() {
	for fn := range c.persist {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := fn(ctx); err != nil {
			c.log.Errorf("history persist failed: %v", err)
		}
		cancel()
	}
}

// persistTask queues a task state write on the history writer without
// holding up the dispatch path.
func (c *Coordinator) persistTask(t model.DispatchTask) {
	c.persist <- func(ctx context.Context) error {
		if err := c.hist.UpdateTask(ctx, t); err != nil {
			return fmt.Errorf("task %d: %w", t.ID, err)
		}
		return nil
	}
}

// RunScript sends a maintenance operation to one station: a self test,
// passthrough alignment, a jog or a stop. Dispatch roles are not
// scriptable; capsule movements go through RequestDispatch.
func (c *Coordinator) RunScript(stationID int, op string) error {
	switch op {
	case model.OpSelfTest, model.OpPassthrough, model.OpJogLeft, model.OpJogRight, model.OpStop:
	default:
		return fmt.Errorf("%q: %w", op, ErrUnknownOperation)
	}
	if !c.registry.Alive(stationID) {
		return fmt.Errorf("station %d: %w", stationID, ErrUnknownStation)
	}
	cmd := model.ScriptCommand{
		CommandID: uuid.NewString(),
		Operation: op,
		Timestamp: c.now(),
	}
	c.log.Infof("station %d: script %s", stationID, op)
	return c.pub.PublishScript(stationID, cmd)
}

// InFlight returns a copy of the running task, if any.
func (c *Coordinator) InFlight() (model.DispatchTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return model.DispatchTask{}, false
	}
	return *c.inflight, true
}

// Queued returns the waiting tasks in admission order.
func (c *Coordinator) Queued() []model.DispatchTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.snapshot()
}

// Stations returns the registered station records.
func (c *Coordinator) Stations() []StationRecord {
	return c.registry.List()
}
