// Package telemetry keeps the latest sensor snapshot per station.
package telemetry

import (
	"sort"
	"sync"

	"github.com/oora/tellerloop/core/model"
)

// Store holds the freshest sensor snapshot for each station.
type Store interface {
	Upsert(model.SensorSnapshot)
	Latest(stationID int) (model.SensorSnapshot, bool)
	All() []model.SensorSnapshot
}

// MemoryStore is the default Store implementation. Last write wins; there
// is no history here, the history store persists the full stream.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[int]model.SensorSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[int]model.SensorSnapshot{}}
}

func (s *MemoryStore) Upsert(snap model.SensorSnapshot) {
	s.mu.Lock()
	s.data[snap.StationID] = snap
	s.mu.Unlock()
}

func (s *MemoryStore) Latest(stationID int) (model.SensorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[stationID]
	return snap, ok
}

func (s *MemoryStore) All() []model.SensorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.SensorSnapshot, 0, len(s.data))
	for _, snap := range s.data {
		res = append(res, snap)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StationID < res[j].StationID })
	return res
}
