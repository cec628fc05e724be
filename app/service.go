// Package app assembles the coordinator service from its parts.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/oora/tellerloop/config"
	"github.com/oora/tellerloop/core/coordinator"
	"github.com/oora/tellerloop/core/history"
	coremetrics "github.com/oora/tellerloop/core/metrics"
	"github.com/oora/tellerloop/core/model"
	coremqtt "github.com/oora/tellerloop/core/mqtt"
	"github.com/oora/tellerloop/core/telemetry"
	infrahistory "github.com/oora/tellerloop/infra/history"
	"github.com/oora/tellerloop/infra/logger"
	"github.com/oora/tellerloop/infra/metrics"
	"github.com/oora/tellerloop/infra/mqtt"
	"github.com/oora/tellerloop/internal/eventbus"
)

// Service orchestrates the coordinator, the MQTT bus and the metrics
// pipeline.
type Service struct {
	Coordinator *coordinator.Coordinator
	bus         *mqtt.CoordinatorBus
	events      eventbus.EventBus
	recorder    *coremetrics.Recorder
	hist        history.Store
	log         logger.Logger
	promEnabled bool
	promAddr    string
}

// handlerProxy breaks the construction cycle between the MQTT bus and
// the coordinator: the bus needs a handler before the coordinator, which
// needs the bus as publisher, exists. Messages arriving before Bind are
// dropped; stations re-announce themselves on the next heartbeat.
type handlerProxy struct {
	mu sync.RWMutex
	h  coremqtt.Handler
}

func (p *handlerProxy) Bind(h coremqtt.Handler) {
	p.mu.Lock()
	p.h = h
	p.mu.Unlock()
}

func (p *handlerProxy) target() coremqtt.Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.h
}

func (p *handlerProxy) HandleAck(ack model.StationAck) {
	if h := p.target(); h != nil {
		h.HandleAck(ack)
	}
}

func (p *handlerProxy) HandleSensorData(snap model.SensorSnapshot) {
	if h := p.target(); h != nil {
		h.HandleSensorData(snap)
	}
}

func (p *handlerProxy) HandleHeartbeat(hb model.Heartbeat) {
	if h := p.target(); h != nil {
		h.HandleHeartbeat(hb)
	}
}

func (p *handlerProxy) HandleEmptyPodRequest(req model.EmptyPodRequest) {
	if h := p.target(); h != nil {
		h.HandleEmptyPodRequest(req)
	}
}

func (p *handlerProxy) HandleEmptyPodAccepted(acc model.EmptyPodAccepted) {
	if h := p.target(); h != nil {
		h.HandleEmptyPodAccepted(acc)
	}
}

// newHistoryStore builds the configured history backend.
func newHistoryStore(cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case "jsonl":
		return infrahistory.NewJSONLStore(cfg.Path)
	default:
		return infrahistory.NewSQLiteStore(cfg.Path)
	}
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	hist, err := newHistoryStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.MultiSink(sinks)
	}

	events := eventbus.New()
	telem := telemetry.NewMemoryStore()
	registry := coordinator.NewRegistry(cfg.Dispatch.HeartbeatTimeout, events)
	gate := coordinator.NewPodGate(telem)

	proxy := &handlerProxy{}
	bus, err := mqtt.NewCoordinatorBus(cfg.MQTT, proxy)
	if err != nil {
		return nil, fmt.Errorf("mqtt bus: %w", err)
	}

	coord, err := coordinator.New(cfg.Dispatch, bus, gate, registry, hist, telem, events, logger.New("coordinator"))
	if err != nil {
		bus.Disconnect()
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	proxy.Bind(coord)

	return &Service{
		Coordinator: coord,
		bus:         bus,
		events:      events,
		recorder:    coremetrics.NewRecorder(events, sink, logger.New("metrics")),
		hist:        hist,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

// Events exposes the lifecycle event bus for observers.
func (s *Service) Events() eventbus.EventBus { return s.events }

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.recorder.Run(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.log.Infof("coordinator running")
	s.Coordinator.Run(ctx)
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Disconnect()
	s.events.Close()
	return s.hist.Close()
}
