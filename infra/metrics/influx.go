package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/oora/tellerloop/core/events"
	coremetrics "github.com/oora/tellerloop/core/metrics"
	"github.com/oora/tellerloop/infra/logger"
)

// InfluxSink writes tube system events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) writePoint(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordTaskQueued(ev events.TaskQueued) error {
	p := write.NewPointWithMeasurement("tube_task").
		AddTag("event", "queued").
		AddTag("task_id", strconv.FormatInt(ev.Task.ID, 10)).
		AddTag("priority", ev.Task.Priority.String()).
		AddField("from_station", ev.Task.From).
		AddField("to_station", ev.Task.To).
		SetTime(ev.Task.CreatedAt)
	return s.writePoint(p)
}

func (s *InfluxSink) RecordTaskAdmitted(ev events.TaskAdmitted) error {
	p := write.NewPointWithMeasurement("tube_task").
		AddTag("event", "admitted").
		AddTag("task_id", strconv.FormatInt(ev.Task.ID, 10)).
		AddTag("priority", ev.Task.Priority.String()).
		AddField("from_station", ev.Task.From).
		AddField("to_station", ev.Task.To).
		SetTime(time.Now())
	return s.writePoint(p)
}

func (s *InfluxSink) RecordTaskFinished(ev events.TaskFinished) error {
	p := write.NewPointWithMeasurement("tube_task").
		AddTag("event", "finished").
		AddTag("task_id", strconv.FormatInt(ev.Task.ID, 10)).
		AddTag("priority", ev.Task.Priority.String()).
		AddTag("status", string(ev.Task.Status)).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		AddField("details", ev.Task.ExecutionDetails).
		SetTime(time.Now())
	return s.writePoint(p)
}

func (s *InfluxSink) RecordStationJoined(ev events.StationJoined) error {
	p := write.NewPointWithMeasurement("tube_station").
		AddTag("station", strconv.Itoa(ev.StationID)).
		AddTag("event", "joined").
		AddField("node", ev.Node).
		SetTime(ev.At)
	return s.writePoint(p)
}

func (s *InfluxSink) RecordStationLost(ev events.StationLost) error {
	p := write.NewPointWithMeasurement("tube_station").
		AddTag("station", strconv.Itoa(ev.StationID)).
		AddTag("event", "lost").
		AddField("reason", ev.Reason).
		SetTime(time.Now())
	return s.writePoint(p)
}

func (s *InfluxSink) RecordPodAvailability(ev events.PodAvailabilityChanged) error {
	p := write.NewPointWithMeasurement("tube_pod").
		AddTag("station", strconv.Itoa(ev.StationID)).
		AddField("available", ev.Available).
		SetTime(ev.At)
	return s.writePoint(p)
}

// Close shuts the underlying client down.
func (s *InfluxSink) Close() { s.client.Close() }
