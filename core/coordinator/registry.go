package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/internal/eventbus"
)

// StationRecord is the liveness bookkeeping for one registered station.
type StationRecord struct {
	StationID int       `json:"station_id"`
	Node      string    `json:"node"`
	JoinedAt  time.Time `json:"joined_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Registry tracks which stations are registered and alive. Heartbeats from
// unknown stations do not register them; only an explicit join does.
type Registry struct {
	mu      sync.RWMutex
	records map[int]StationRecord
	timeout time.Duration
	bus     eventbus.EventBus
	now     func() time.Time
}

// NewRegistry builds a registry that evicts stations silent for longer
// than timeout. bus may be nil.
func NewRegistry(timeout time.Duration, bus eventbus.EventBus) *Registry {
	return &Registry{
		records: map[int]StationRecord{},
		timeout: timeout,
		bus:     bus,
		now:     time.Now,
	}
}

// OnJoin registers or re-registers a station.
func (r *Registry) OnJoin(stationID int, node string) {
	now := r.now()
	r.mu.Lock()
	rec, known := r.records[stationID]
	if !known {
		rec = StationRecord{StationID: stationID, Node: node, JoinedAt: now}
	}
	rec.Node = node
	rec.LastSeen = now
	r.records[stationID] = rec
	r.mu.Unlock()
	if !known && r.bus != nil {
		r.bus.Publish(events.StationJoined{StationID: stationID, Node: node, At: now})
	}
}

// OnHeartbeat refreshes the last-seen time of a registered station. A
// heartbeat from an unknown station is ignored.
func (r *Registry) OnHeartbeat(stationID int) {
	r.mu.Lock()
	if rec, ok := r.records[stationID]; ok {
		rec.LastSeen = r.now()
		r.records[stationID] = rec
	}
	r.mu.Unlock()
}

// OnDisconnect removes a station that announced it is going away.
func (r *Registry) OnDisconnect(stationID int) {
	r.mu.Lock()
	rec, ok := r.records[stationID]
	if ok {
		delete(r.records, stationID)
	}
	r.mu.Unlock()
	if ok && r.bus != nil {
		r.bus.Publish(events.StationLost{StationID: stationID, LastSeen: rec.LastSeen, Reason: "disconnect"})
	}
}

// Alive reports whether the station is registered and inside the liveness
// window.
func (r *Registry) Alive(stationID int) bool {
	r.mu.RLock()
	rec, ok := r.records[stationID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.now().Sub(rec.LastSeen) <= r.timeout
}

// Sweep evicts every station whose last heartbeat is older than the
// timeout and returns the evicted ids.
func (r *Registry) Sweep() []int {
	now := r.now()
	var evicted []StationRecord
	r.mu.Lock()
	for id, rec := range r.records {
		if now.Sub(rec.LastSeen) > r.timeout {
			delete(r.records, id)
			evicted = append(evicted, rec)
		}
	}
	r.mu.Unlock()

	ids := make([]int, 0, len(evicted))
	for _, rec := range evicted {
		ids = append(ids, rec.StationID)
		if r.bus != nil {
			r.bus.Publish(events.StationLost{StationID: rec.StationID, LastSeen: rec.LastSeen, Reason: "heartbeat timeout"})
		}
	}
	sort.Ints(ids)
	return ids
}

// List returns all registered stations ordered by id.
func (r *Registry) List() []StationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]StationRecord, 0, len(r.records))
	for _, rec := range r.records {
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StationID < res[j].StationID })
	return res
}

// Run sweeps at the given interval until the context is cancelled.
func (r *Registry) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
