package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchDuration   *prometheus.HistogramVec
	tasksFinished      *prometheus.CounterVec
	queueDepth         *prometheus.GaugeVec
	stationsRegistered prometheus.Gauge
	admissionRejected  *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.GaugeVec, prometheus.Gauge, *prometheus.CounterVec) {
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Duration of dispatch tasks from admission to terminal status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	fin := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_total",
			Help: "Number of dispatch tasks reaching a terminal status",
		},
		[]string{"status"},
	)
	depth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of tasks waiting per priority tier",
		},
		[]string{"priority"},
	)
	reg := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stations_registered",
			Help: "Number of stations currently registered and alive",
		},
	)
	rej := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_rejected_total",
			Help: "Number of dispatch requests rejected at admission",
		},
		[]string{"reason"},
	)
	return dur, fin, depth, reg, rej
}

func init() {
	dispatchDuration, tasksFinished, queueDepth, stationsRegistered, admissionRejected = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers coordinator metrics on the provided
// registry. If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchDuration, tasksFinished, queueDepth, stationsRegistered, admissionRejected)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchDuration, tasksFinished, queueDepth, stationsRegistered, admissionRejected = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
