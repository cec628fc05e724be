// Package history provides the persistent implementations of the core
// history store.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oora/tellerloop/core/model"
)

// SQLiteStore persists dispatch tasks and the sensor stream to SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS history (
        task_id INTEGER PRIMARY KEY AUTOINCREMENT,
        from_station INTEGER NOT NULL,
        to_station INTEGER NOT NULL,
        priority TEXT NOT NULL,
        status TEXT NOT NULL,
        execution_details TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL
    );
    CREATE TABLE IF NOT EXISTS sensor_data (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        station_id INTEGER NOT NULL,
        s1 INTEGER, s2 INTEGER, s3 INTEGER, s4 INTEGER,
        p1 INTEGER, p2 INTEGER, p3 INTEGER, p4 INTEGER,
        observed_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_sensor_station ON sensor_data (station_id, observed_at);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// AppendTask inserts a new task and returns the generated id.
func (s *SQLiteStore) AppendTask(ctx context.Context, t model.DispatchTask) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history (from_station, to_station, priority, status, execution_details, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		t.From, t.To, t.Priority.String(), string(t.Status), t.ExecutionDetails, t.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateTask overwrites the status and execution details of a task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.DispatchTask) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE history SET status = ?, execution_details = ? WHERE task_id = ?`,
		string(t.Status), t.ExecutionDetails, t.ID)
	return err
}

// RecentTasks returns up to limit tasks, newest first.
func (s *SQLiteStore) RecentTasks(ctx context.Context, limit int) ([]model.DispatchTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, from_station, to_station, priority, status, execution_details, created_at
         FROM history ORDER BY task_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.DispatchTask
	for rows.Next() {
		var t model.DispatchTask
		var prio, status string
		var created int64
		if err := rows.Scan(&t.ID, &t.From, &t.To, &prio, &status, &t.ExecutionDetails, &created); err != nil {
			return nil, err
		}
		t.Priority = model.ParsePriority(prio)
		t.Status = model.TaskStatus(status)
		t.CreatedAt = time.Unix(created, 0)
		res = append(res, t)
	}
	return res, rows.Err()
}

// AppendSensors records a sensor snapshot.
func (s *SQLiteStore) AppendSensors(ctx context.Context, snap model.SensorSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_data (station_id, s1, s2, s3, s4, p1, p2, p3, p4, observed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.StationID,
		boolInt(snap.S1), boolInt(snap.S2), boolInt(snap.S3), boolInt(snap.S4),
		boolInt(snap.P1), boolInt(snap.P2), boolInt(snap.P3), boolInt(snap.P4),
		snap.ObservedAt.UnixMilli())
	return err
}

// LatestSensors returns the most recent snapshot for a station.
func (s *SQLiteStore) LatestSensors(ctx context.Context, stationID int) (model.SensorSnapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT station_id, s1, s2, s3, s4, p1, p2, p3, p4, observed_at
         FROM sensor_data WHERE station_id = ? ORDER BY id DESC LIMIT 1`, stationID)
	var snap model.SensorSnapshot
	var s1, s2, s3, s4, p1, p2, p3, p4 int
	var observed int64
	err := row.Scan(&snap.StationID, &s1, &s2, &s3, &s4, &p1, &p2, &p3, &p4, &observed)
	if err == sql.ErrNoRows {
		return model.SensorSnapshot{}, false, nil
	}
	if err != nil {
		return model.SensorSnapshot{}, false, err
	}
	snap.S1, snap.S2, snap.S3, snap.S4 = s1 != 0, s2 != 0, s3 != 0, s4 != 0
	snap.P1, snap.P2, snap.P3, snap.P4 = p1 != 0, p2 != 0, p3 != 0, p4 != 0
	snap.ObservedAt = time.UnixMilli(observed)
	return snap, true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
