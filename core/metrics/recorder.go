package metrics

import (
	"context"

	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/core/logger"
	"github.com/oora/tellerloop/internal/eventbus"
)

// Recorder drains the event bus into a sink. Sink errors are logged, not
// propagated; monitoring must never stall the dispatch path.
type Recorder struct {
	bus  eventbus.EventBus
	sink Sink
	log  logger.Logger
}

func NewRecorder(bus eventbus.EventBus, sink Sink, log logger.Logger) *Recorder {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Recorder{bus: bus, sink: sink, log: log}
}

// Run consumes events until ctx is done or the bus closes.
func (r *Recorder) Run(ctx context.Context) {
	sub := r.bus.Subscribe()
	defer r.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			r.record(ev)
		}
	}
}

func (r *Recorder) record(ev eventbus.Event) {
	var err error
	switch e := ev.(type) {
	case events.TaskQueued:
		err = r.sink.RecordTaskQueued(e)
	case events.TaskAdmitted:
		err = r.sink.RecordTaskAdmitted(e)
	case events.TaskFinished:
		err = r.sink.RecordTaskFinished(e)
	case events.StationJoined:
		err = r.sink.RecordStationJoined(e)
	case events.StationLost:
		err = r.sink.RecordStationLost(e)
	case events.PodAvailabilityChanged:
		err = r.sink.RecordPodAvailability(e)
	}
	if err != nil {
		r.log.Warnf("metrics sink error: %v", err)
	}
}
