package coordinator

import (
	"context"
	"fmt"

	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/core/model"
)

// The coordinator is the sole consumer of station-originated traffic, so
// it implements the bus Handler directly. The bus invokes these callbacks
// from its own goroutines.

// HandleAck routes terminal acknowledgments into the dispatch lifecycle.
// Progress acks and maintenance completions are only logged.
func (c *Coordinator) HandleAck(ack model.StationAck) {
	if ack.Type == model.AckPositionError {
		c.log.Errorf("station %d reported a position error", ack.Station)
		if c.bus != nil {
			c.bus.Publish(events.PositionError{StationID: ack.Station, At: c.now()})
		}
		return
	}
	if !ack.Completed() {
		c.log.Debugf("station %d ack: %s (task %d)", ack.Station, ack.Type, ack.TaskID)
		return
	}
	details := ""
	if ack.Details != nil {
		details = ack.Details.Message
	}
	switch ack.Type {
	case model.CompletionType(model.OpSend), model.CompletionType(model.OpReceive):
		c.ReportCompletion(ack.Station, ack.TaskID, ack.Succeeded(), details)
	default:
		// self tests, passthroughs and jogs do not touch the dispatch
		// queue.
		c.log.Infof("station %d finished %s: %s", ack.Station, ack.Type, ack.Status)
	}
}

// HandleSensorData refreshes the telemetry store, persists the reading and
// publishes availability flips.
func (c *Coordinator) HandleSensorData(snap model.SensorSnapshot) {
	prev, had := c.telem.Latest(snap.StationID)
	c.telem.Upsert(snap)

	c.persist <- func(ctx context.Context) error {
		if err := c.hist.AppendSensors(ctx, snap); err != nil {
			return fmt.Errorf("station %d sensors: %w", snap.StationID, err)
		}
		return nil
	}

	if c.bus != nil && (!had || prev.PodAvailable() != snap.PodAvailable()) {
		c.bus.Publish(events.PodAvailabilityChanged{
			StationID: snap.StationID,
			Available: snap.PodAvailable(),
			At:        snap.ObservedAt,
		})
	}
}

// HandleHeartbeat keeps the registry fresh. A beacon from an unknown
// station registers it, which covers stations that restart silently.
func (c *Coordinator) HandleHeartbeat(hb model.Heartbeat) {
	if c.registry.Alive(hb.Station) {
		c.registry.OnHeartbeat(hb.Station)
	} else {
		c.registry.OnJoin(hb.Station, hb.Node)
	}
	stationsRegistered.Set(float64(len(c.registry.List())))
}

// HandleEmptyPodRequest relays the request to every other live station.
func (c *Coordinator) HandleEmptyPodRequest(req model.EmptyPodRequest) {
	for _, rec := range c.registry.List() {
		if rec.StationID == req.Requester {
			continue
		}
		if err := c.pub.PublishEmptyPodRequest(rec.StationID, req); err != nil {
			c.log.Warnf("empty pod request relay to station %d failed: %v", rec.StationID, err)
		}
	}
}

// HandleEmptyPodAccepted relays the acceptance back to the requester.
func (c *Coordinator) HandleEmptyPodAccepted(acc model.EmptyPodAccepted) {
	if err := c.pub.PublishEmptyPodAccepted(acc.Requester, acc); err != nil {
		c.log.Warnf("empty pod acceptance relay to station %d failed: %v", acc.Requester, err)
	}
}
