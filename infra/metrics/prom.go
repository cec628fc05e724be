package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oora/tellerloop/core/events"
	coremetrics "github.com/oora/tellerloop/core/metrics"
)

// PromSink records tube system events in Prometheus metrics.
type PromSink struct {
	taskEvents *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	stationUp  *prometheus.GaugeVec
	podAvail   *prometheus.GaugeVec
}

// NewPromSink registers tube metrics on the default Prometheus registerer.
// The Prometheus server should be started separately.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	taskEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tube_task_events_total",
		Help: "Total number of task lifecycle events",
	}, []string{"event", "priority", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tube_task_duration_seconds",
		Help:    "Time between task admission and terminal status",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	stationUp := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tube_station_up",
		Help: "Whether a station is registered and alive",
	}, []string{"station"})
	podAvail := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tube_pod_available",
		Help: "Whether a station has a capsule ready to send",
	}, []string{"station"})

	collectors := []prometheus.Collector{taskEvents, duration, stationUp, podAvail}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}
	taskEvents = collectors[0].(*prometheus.CounterVec)
	duration = collectors[1].(*prometheus.HistogramVec)
	stationUp = collectors[2].(*prometheus.GaugeVec)
	podAvail = collectors[3].(*prometheus.GaugeVec)

	return &PromSink{taskEvents: taskEvents, duration: duration, stationUp: stationUp, podAvail: podAvail}, nil
}

func (s *PromSink) RecordTaskQueued(ev events.TaskQueued) error {
	s.taskEvents.WithLabelValues("queued", ev.Task.Priority.String(), string(ev.Task.Status)).Inc()
	return nil
}

func (s *PromSink) RecordTaskAdmitted(ev events.TaskAdmitted) error {
	s.taskEvents.WithLabelValues("admitted", ev.Task.Priority.String(), string(ev.Task.Status)).Inc()
	return nil
}

func (s *PromSink) RecordTaskFinished(ev events.TaskFinished) error {
	s.taskEvents.WithLabelValues("finished", ev.Task.Priority.String(), string(ev.Task.Status)).Inc()
	s.duration.WithLabelValues(string(ev.Task.Status)).Observe(ev.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordStationJoined(ev events.StationJoined) error {
	s.stationUp.WithLabelValues(strconv.Itoa(ev.StationID)).Set(1)
	return nil
}

func (s *PromSink) RecordStationLost(ev events.StationLost) error {
	s.stationUp.WithLabelValues(strconv.Itoa(ev.StationID)).Set(0)
	return nil
}

func (s *PromSink) RecordPodAvailability(ev events.PodAvailabilityChanged) error {
	v := 0.0
	if ev.Available {
		v = 1
	}
	s.podAvail.WithLabelValues(strconv.Itoa(ev.StationID)).Set(v)
	return nil
}
