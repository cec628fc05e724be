// Package history defines the persistence contract for dispatch tasks and
// the raw sensor stream.
package history

import (
	"context"

	"github.com/oora/tellerloop/core/model"
)

// Store persists dispatch tasks and sensor readings. Implementations must
// be safe for concurrent use.
type Store interface {
	// AppendTask inserts a new task and returns its assigned id.
	AppendTask(ctx context.Context, t model.DispatchTask) (int64, error)
	// UpdateTask overwrites the stored status and execution details of a
	// task by id.
	UpdateTask(ctx context.Context, t model.DispatchTask) error
	// RecentTasks returns up to limit tasks, newest first.
	RecentTasks(ctx context.Context, limit int) ([]model.DispatchTask, error)
	// AppendSensors records a sensor snapshot.
	AppendSensors(ctx context.Context, s model.SensorSnapshot) error
	// LatestSensors returns the most recent snapshot persisted for a
	// station, if any.
	LatestSensors(ctx context.Context, stationID int) (model.SensorSnapshot, bool, error)
	Close() error
}
