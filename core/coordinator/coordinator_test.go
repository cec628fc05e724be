package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/telemetry"
	"github.com/oora/tellerloop/internal/eventbus"
)

type sentCommand struct {
	station int
	cmd     model.DispatchCommand
}

type fakePublisher struct {
	mu       sync.Mutex
	commands []sentCommand
	statuses map[int][]model.StatusBroadcast
	scripts  map[int][]model.ScriptCommand
	podReqs  []int
	podAccs  []int
	fail     bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		statuses: map[int][]model.StatusBroadcast{},
		scripts:  map[int][]model.ScriptCommand{},
	}
}

func (p *fakePublisher) PublishCommand(stationID int, cmd model.DispatchCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return context.DeadlineExceeded
	}
	p.commands = append(p.commands, sentCommand{station: stationID, cmd: cmd})
	return nil
}

func (p *fakePublisher) PublishStatus(stationID int, st model.StatusBroadcast) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[stationID] = append(p.statuses[stationID], st)
	return nil
}

func (p *fakePublisher) PublishScript(stationID int, cmd model.ScriptCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[stationID] = append(p.scripts[stationID], cmd)
	return nil
}

func (p *fakePublisher) PublishEmptyPodRequest(stationID int, _ model.EmptyPodRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.podReqs = append(p.podReqs, stationID)
	return nil
}

func (p *fakePublisher) PublishEmptyPodAccepted(stationID int, _ model.EmptyPodAccepted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.podAccs = append(p.podAccs, stationID)
	return nil
}

func (p *fakePublisher) sent() []sentCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sentCommand, len(p.commands))
	copy(out, p.commands)
	return out
}

func (p *fakePublisher) statusLog(stationID int) []model.StatusBroadcast {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.StatusBroadcast, len(p.statuses[stationID]))
	copy(out, p.statuses[stationID])
	return out
}

type memHistory struct {
	mu      sync.Mutex
	nextID  int64
	updates int
	tasks   map[int64]model.DispatchTask

	// slowInProgress delays in_progress writes to provoke reordering.
	slowInProgress time.Duration
}

func newMemHistory() *memHistory {
	return &memHistory{tasks: map[int64]model.DispatchTask{}}
}

func (h *memHistory) AppendTask(_ context.Context, t model.DispatchTask) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	t.ID = h.nextID
	h.tasks[t.ID] = t
	return t.ID, nil
}

func (h *memHistory) UpdateTask(_ context.Context, t model.DispatchTask) error {
	if t.Status == model.StatusInProgress && h.slowInProgress > 0 {
		time.Sleep(h.slowInProgress)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates++
	h.tasks[t.ID] = t
	return nil
}

func (h *memHistory) RecentTasks(_ context.Context, limit int) ([]model.DispatchTask, error) {
	return nil, nil
}

func (h *memHistory) AppendSensors(_ context.Context, _ model.SensorSnapshot) error { return nil }

func (h *memHistory) LatestSensors(_ context.Context, _ int) (model.SensorSnapshot, bool, error) {
	return model.SensorSnapshot{}, false, nil
}

func (h *memHistory) Close() error { return nil }

type fixture struct {
	coord *Coordinator
	pub   *fakePublisher
	telem *telemetry.MemoryStore
	reg   *Registry
	hist  *memHistory
}

func newFixture(t *testing.T, cfg Config, stations ...int) *fixture {
	t.Helper()
	ResetMetrics(nil)
	pub := newFakePublisher()
	telem := telemetry.NewMemoryStore()
	reg := NewRegistry(time.Minute, nil)
	hist := newMemHistory()
	coord, err := New(cfg, pub, NewPodGate(telem), reg, hist, telem, nil, logger.NopLogger{})
	require.NoError(t, err)
	for _, id := range stations {
		reg.OnJoin(id, model.StationName(id))
		telem.Upsert(model.SensorSnapshot{StationID: id, ObservedAt: time.Now()})
	}
	return &fixture{coord: coord, pub: pub, telem: telem, reg: reg, hist: hist}
}

func (f *fixture) removePod(stationID int) {
	f.telem.Upsert(model.SensorSnapshot{StationID: stationID, P1: true, ObservedAt: time.Now()})
}

func TestRequestDispatchValidation(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2)

	_, err := f.coord.RequestDispatch(context.Background(), 1, 1, model.PriorityNormal)
	require.ErrorIs(t, err, ErrSameStation)

	_, err = f.coord.RequestDispatch(context.Background(), 1, 9, model.PriorityNormal)
	require.ErrorIs(t, err, ErrUnknownStation)

	f.removePod(1)
	_, err = f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.ErrorIs(t, err, ErrPodUnavailable)
}

func TestSingleTaskInFlight(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3)

	first, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)
	second, err := f.coord.RequestDispatch(context.Background(), 3, 2, model.PriorityNormal)
	require.NoError(t, err)

	running, ok := f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, first.ID, running.ID)
	require.Len(t, f.coord.Queued(), 1)

	// Only the first task's commands went out.
	cmds := f.pub.sent()
	require.Len(t, cmds, 2)
	require.Equal(t, 1, cmds[0].station)
	require.Equal(t, model.RoleSender, cmds[0].cmd.Role)
	require.Equal(t, 2, cmds[1].station)
	require.Equal(t, model.RoleReceiver, cmds[1].cmd.Role)

	// Receiver completion frees the tube and admits the next task.
	f.coord.ReportCompletion(2, first.ID, true, "delivered")
	running, ok = f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, second.ID, running.ID)
	require.Empty(t, f.coord.Queued())
}

func TestHighPriorityDrainsFirst(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3, 4)

	blocker, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)

	n1, err := f.coord.RequestDispatch(context.Background(), 2, 3, model.PriorityNormal)
	require.NoError(t, err)
	n2, err := f.coord.RequestDispatch(context.Background(), 3, 4, model.PriorityNormal)
	require.NoError(t, err)
	h1, err := f.coord.RequestDispatch(context.Background(), 4, 1, model.PriorityHigh)
	require.NoError(t, err)

	queued := f.coord.Queued()
	require.Equal(t, []int64{h1.ID, n1.ID, n2.ID}, []int64{queued[0].ID, queued[1].ID, queued[2].ID})

	finish := func(id int64, receiver int) {
		f.coord.ReportCompletion(receiver, id, true, "")
	}
	finish(blocker.ID, 2)

	running, _ := f.coord.InFlight()
	require.Equal(t, h1.ID, running.ID)
	finish(h1.ID, 1)

	running, _ = f.coord.InFlight()
	require.Equal(t, n1.ID, running.ID)
	finish(n1.ID, 3)

	running, _ = f.coord.InFlight()
	require.Equal(t, n2.ID, running.ID)
}

func TestCompletionIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3)

	first, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)
	second, err := f.coord.RequestDispatch(context.Background(), 2, 3, model.PriorityNormal)
	require.NoError(t, err)

	f.coord.ReportCompletion(2, first.ID, true, "")
	running, ok := f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, second.ID, running.ID)

	// A duplicate completion for the finished task must not touch the new
	// in-flight task.
	f.coord.ReportCompletion(2, first.ID, true, "")
	running, ok = f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, second.ID, running.ID)
}

func TestSenderCompletionDoesNotFinish(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2)

	task, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)

	f.coord.ReportCompletion(1, task.ID, true, "capsule left bay")
	running, ok := f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, task.ID, running.ID)

	f.coord.ReportCompletion(2, task.ID, true, "")
	_, ok = f.coord.InFlight()
	require.False(t, ok)
}

func TestFailureReportFailsTask(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2)

	task, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)

	f.coord.ReportCompletion(2, task.ID, false, "jam at receiver")
	_, ok := f.coord.InFlight()
	require.False(t, ok)

	require.Eventually(t, func() bool {
		f.hist.mu.Lock()
		defer f.hist.mu.Unlock()
		return f.hist.tasks[task.ID].Status == model.StatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestAbortCurrent(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3)

	_, err := f.coord.AbortCurrent("operator")
	require.ErrorIs(t, err, ErrNoTaskInFlight)

	first, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)
	second, err := f.coord.RequestDispatch(context.Background(), 2, 3, model.PriorityNormal)
	require.NoError(t, err)

	aborted, err := f.coord.AbortCurrent("operator abort")
	require.NoError(t, err)
	require.Equal(t, first.ID, aborted.ID)
	require.Equal(t, model.StatusAborted, aborted.Status)

	running, ok := f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, second.ID, running.ID)
}

func TestAckTimeoutFailsTask(t *testing.T) {
	f := newFixture(t, Config{AckTimeout: 30 * time.Millisecond}, 1, 2, 3)

	first, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)
	second, err := f.coord.RequestDispatch(context.Background(), 2, 3, model.PriorityNormal)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		running, ok := f.coord.InFlight()
		return ok && running.ID == second.ID
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		f.hist.mu.Lock()
		defer f.hist.mu.Unlock()
		return f.hist.tasks[first.ID].Status == model.StatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestAdmissionSkipsStaleTask(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3)

	first, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)
	stale, err := f.coord.RequestDispatch(context.Background(), 2, 3, model.PriorityNormal)
	require.NoError(t, err)
	third, err := f.coord.RequestDispatch(context.Background(), 3, 1, model.PriorityNormal)
	require.NoError(t, err)

	// The pod at station 2 is gone by the time its task would be admitted.
	f.removePod(2)
	f.coord.ReportCompletion(2, first.ID, true, "")

	running, ok := f.coord.InFlight()
	require.True(t, ok)
	require.Equal(t, third.ID, running.ID)

	require.Eventually(t, func() bool {
		f.hist.mu.Lock()
		defer f.hist.mu.Unlock()
		return f.hist.tasks[stale.ID].Status == model.StatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestHandleAckRoutesCompletions(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2)

	task, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)

	f.coord.HandleAck(model.StationAck{
		Type: model.AckStarting, Station: 2, TaskID: task.ID, Status: "in_progress",
	})
	_, ok := f.coord.InFlight()
	require.True(t, ok)

	f.coord.HandleAck(model.StationAck{
		Type: model.CompletionType(model.OpReceive), Station: 2, TaskID: task.ID, Status: "completed",
	})
	_, ok = f.coord.InFlight()
	require.False(t, ok)
}

func TestHandleHeartbeatRegistersUnknown(t *testing.T) {
	f := newFixture(t, Config{})

	f.coord.HandleHeartbeat(model.Heartbeat{Station: 7, Node: model.StationName(7), Timestamp: time.Now()})
	require.True(t, f.reg.Alive(7))
}

func TestPersistedLifecycleNeverReverts(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2)
	f.hist.slowInProgress = 50 * time.Millisecond

	task, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)
	f.coord.ReportCompletion(2, task.ID, true, "")

	// Wait for both the slow in_progress write and the completion write,
	// then check the completion came out on top.
	require.Eventually(t, func() bool {
		f.hist.mu.Lock()
		defer f.hist.mu.Unlock()
		return f.hist.updates >= 2
	}, time.Second, 5*time.Millisecond)
	f.hist.mu.Lock()
	defer f.hist.mu.Unlock()
	require.Equal(t, model.StatusCompleted, f.hist.tasks[task.ID].Status)
}

func TestDispatchStatusBroadcasts(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3)

	task, err := f.coord.RequestDispatch(context.Background(), 1, 2, model.PriorityNormal)
	require.NoError(t, err)

	sending := f.pub.statusLog(1)
	require.Len(t, sending, 1)
	require.Equal(t, "sending", sending[0].Status)
	require.Equal(t, 2, sending[0].Peer)
	require.Equal(t, task.ID, sending[0].TaskID)

	receiving := f.pub.statusLog(2)
	require.Len(t, receiving, 1)
	require.Equal(t, "receiving", receiving[0].Status)
	require.Equal(t, 1, receiving[0].Peer)

	bystander := f.pub.statusLog(3)
	require.Len(t, bystander, 1)
	require.Equal(t, "standby", bystander[0].Status)

	// Once the queue drains every station returns to standby.
	f.coord.ReportCompletion(2, task.ID, true, "")
	for _, id := range []int{1, 2, 3} {
		log := f.pub.statusLog(id)
		require.Equal(t, "standby", log[len(log)-1].Status)
	}
}

func TestConcurrentDispatchKeepsOneInFlight(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3, 4)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := i%4 + 1
			to := (i+1)%4 + 1
			_, err := f.coord.RequestDispatch(context.Background(), from, to, model.PriorityNormal)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, ok := f.coord.InFlight()
	require.True(t, ok)
	require.Len(t, f.coord.Queued(), n-1)
	// Exactly one task was admitted, so exactly one command pair went out.
	require.Len(t, f.pub.sent(), 2)
}

func TestRunScriptValidatesAndPublishes(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2)

	require.ErrorIs(t, f.coord.RunScript(9, model.OpSelfTest), ErrUnknownStation)
	require.ErrorIs(t, f.coord.RunScript(1, "reboot"), ErrUnknownOperation)
	require.ErrorIs(t, f.coord.RunScript(1, model.OpSend), ErrUnknownOperation)

	require.NoError(t, f.coord.RunScript(1, model.OpSelfTest))
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.scripts[1], 1)
	require.Equal(t, model.OpSelfTest, f.pub.scripts[1][0].Operation)
	require.NotEmpty(t, f.pub.scripts[1][0].CommandID)
}

func TestHandleAckPositionError(t *testing.T) {
	ResetMetrics(nil)
	pub := newFakePublisher()
	telem := telemetry.NewMemoryStore()
	bus := eventbus.New()
	defer bus.Close()
	coord, err := New(Config{}, pub, NewPodGate(telem), NewRegistry(time.Minute, nil), newMemHistory(), telem, bus, logger.NopLogger{})
	require.NoError(t, err)

	posErrs, stop := eventbus.SubscribeTyped[events.PositionError](bus)
	defer stop()

	// Detection keys on the ack type, not on the message wording.
	coord.HandleAck(model.StationAck{
		Type:      model.AckPositionError,
		Station:   4,
		Status:    "failed",
		Timestamp: time.Now(),
		Details:   &model.AckDetails{Message: "repeated left limit trigger"},
	})

	select {
	case ev := <-posErrs:
		require.Equal(t, 4, ev.StationID)
	case <-time.After(time.Second):
		t.Fatal("no position error event published")
	}
}

func TestEmptyPodRelay(t *testing.T) {
	f := newFixture(t, Config{}, 1, 2, 3)

	f.coord.HandleEmptyPodRequest(model.EmptyPodRequest{Requester: 1, Timestamp: time.Now()})
	f.pub.mu.Lock()
	reqs := append([]int(nil), f.pub.podReqs...)
	f.pub.mu.Unlock()
	require.ElementsMatch(t, []int{2, 3}, reqs)

	f.coord.HandleEmptyPodAccepted(model.EmptyPodAccepted{Requester: 1, Provider: 3, Timestamp: time.Now()})
	f.pub.mu.Lock()
	accs := append([]int(nil), f.pub.podAccs...)
	f.pub.mu.Unlock()
	require.Equal(t, []int{1}, accs)
}
