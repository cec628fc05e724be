package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/oora/tellerloop/core/model"
)

// record is the JSONL envelope. Exactly one of the payload fields is set.
type record struct {
	Kind    string                `json:"kind"`
	Task    *model.DispatchTask   `json:"task,omitempty"`
	Sensors *model.SensorSnapshot `json:"sensors,omitempty"`
}

// JSONLStore is an append-only file store. Task updates append a new line
// with the same id; reads resolve to the latest line per task. It suits
// deployments without a database and keeps a full audit trail for free.
type JSONLStore struct {
	path   string
	mu     sync.Mutex
	nextID int64
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	// Resume the id sequence from the existing file.
	var maxID int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if r.Task != nil && r.Task.ID > maxID {
			maxID = r.Task.ID
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &JSONLStore{path: path, nextID: maxID}, nil
}

func (s *JSONLStore) append(r record) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(r)
}

func (s *JSONLStore) AppendTask(_ context.Context, t model.DispatchTask) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	if err := s.append(record{Kind: "task", Task: &t}); err != nil {
		s.nextID--
		return 0, err
	}
	return t.ID, nil
}

func (s *JSONLStore) UpdateTask(_ context.Context, t model.DispatchTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(record{Kind: "task", Task: &t})
}

func (s *JSONLStore) RecentTasks(_ context.Context, limit int) ([]model.DispatchTask, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, order, err := s.scanTasks()
	if err != nil {
		return nil, err
	}
	var res []model.DispatchTask
	for i := len(order) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, latest[order[i]])
	}
	return res, nil
}

// scanTasks returns the latest state per task id plus first-seen order.
func (s *JSONLStore) scanTasks() (map[int64]model.DispatchTask, []int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()
	latest := map[int64]model.DispatchTask{}
	var order []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || r.Task == nil {
			continue
		}
		if _, seen := latest[r.Task.ID]; !seen {
			order = append(order, r.Task.ID)
		}
		latest[r.Task.ID] = *r.Task
	}
	return latest, order, scanner.Err()
}

func (s *JSONLStore) AppendSensors(_ context.Context, snap model.SensorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(record{Kind: "sensors", Sensors: &snap})
}

func (s *JSONLStore) LatestSensors(_ context.Context, stationID int) (model.SensorSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return model.SensorSnapshot{}, false, err
	}
	defer func() { _ = f.Close() }()
	var last *model.SensorSnapshot
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || r.Sensors == nil {
			continue
		}
		if r.Sensors.StationID == stationID {
			snap := *r.Sensors
			last = &snap
		}
	}
	if err := scanner.Err(); err != nil {
		return model.SensorSnapshot{}, false, err
	}
	if last == nil {
		return model.SensorSnapshot{}, false, nil
	}
	return *last, true, nil
}

func (s *JSONLStore) Close() error { return nil }
