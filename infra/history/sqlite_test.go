package history

import (
	"context"
	"testing"
	"time"

	"github.com/oora/tellerloop/core/model"
)

func TestSQLiteStoreTaskLifecycle(t *testing.T) {
	store, err := NewSQLiteStore("file:tasks.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()

	task := model.DispatchTask{
		From: 1, To: 2,
		Priority:  model.PriorityHigh,
		CreatedAt: time.Now(),
		Status:    model.StatusQueued,
	}
	id, err := store.AppendTask(context.Background(), task)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected a generated id")
	}

	task.ID = id
	task.Status = model.StatusCompleted
	task.ExecutionDetails = "delivered"
	if err := store.UpdateTask(context.Background(), task); err != nil {
		t.Fatalf("update: %v", err)
	}

	out, err := store.RecentTasks(context.Background(), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 task, got %d", len(out))
	}
	if out[0].Status != model.StatusCompleted || out[0].Priority != model.PriorityHigh {
		t.Fatalf("unexpected task %+v", out[0])
	}
}

func TestSQLiteStoreSensors(t *testing.T) {
	store, err := NewSQLiteStore("file:sensors.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()

	_, ok, err := store.LatestSensors(context.Background(), 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot")
	}

	first := model.SensorSnapshot{StationID: 1, P1: true, ObservedAt: time.Now().Add(-time.Minute)}
	second := model.SensorSnapshot{StationID: 1, P1: false, S2: true, ObservedAt: time.Now()}
	if err := store.AppendSensors(context.Background(), first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendSensors(context.Background(), second); err != nil {
		t.Fatalf("append: %v", err)
	}

	snap, ok, err := store.LatestSensors(context.Background(), 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !ok || snap.P1 || !snap.S2 {
		t.Fatalf("expected newest snapshot, got %+v ok=%v", snap, ok)
	}
}
