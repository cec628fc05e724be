package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oora/tellerloop/config"
	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/core/station"
	"github.com/oora/tellerloop/infra/logger"
	"github.com/oora/tellerloop/infra/mqtt"
	"github.com/oora/tellerloop/simulator"
)

var (
	scenarioPath    string
	stationSelfTest bool
)

var stationCmd = &cobra.Command{
	Use:   "station",
	Short: "Run one or more simulated station agents",
	RunE:  runStations,
}

func init() {
	stationCmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario file describing multiple stations")
	stationCmd.Flags().BoolVar(&stationSelfTest, "self-test", false, "run a self test on startup")
	rootCmd.AddCommand(stationCmd)
}

func runStations(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var specs []simulator.StationSpec
	if scenarioPath != "" {
		sc, err := simulator.LoadScenario(scenarioPath)
		if err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
		specs = sc.Stations
	} else {
		if err := cfg.Station.Validate(); err != nil {
			return err
		}
		specs = []simulator.StationSpec{{ID: cfg.Station.ID}}
	}

	var wg sync.WaitGroup
	for _, spec := range specs {
		agent, bus, err := startStation(cfg, spec)
		if err != nil {
			return fmt.Errorf("station %d: %w", spec.ID, err)
		}
		defer bus.Disconnect()
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent.Run(ctx)
		}()
		if stationSelfTest {
			if err := agent.RunMaintenance(ctx, model.OpSelfTest); err != nil {
				logger.New("station-command").Errorf("station %d self test: %v", spec.ID, err)
			}
		}
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// startStation connects one simulated station to the broker and wires the
// inbound topics to its agent.
func startStation(cfg *config.Config, spec simulator.StationSpec) (*simulator.Agent, *mqtt.StationBus, error) {
	log := logger.New(fmt.Sprintf("station-%d", spec.ID))

	latency := time.Duration(spec.SensorLatencyMS) * time.Millisecond
	hw := simulator.NewSimHardware(spec.ID, latency)
	if !spec.HasPod() {
		hw.SetSensor(station.SensorP1, true)
	}

	// The bus must exist before the agent it feeds; messages arriving in
	// the gap are dropped.
	var agentRef atomic.Pointer[simulator.Agent]
	var busRef atomic.Pointer[mqtt.StationBus]
	bus, err := mqtt.NewStationBus(stationMQTTConfig(cfg, spec.ID), spec.ID, mqtt.StationHandlers{
		OnCommand: func(cmd model.DispatchCommand) {
			if a := agentRef.Load(); a != nil {
				a.HandleCommand(cmd)
			}
		},
		OnStatus: func(st model.StatusBroadcast) {
			if a := agentRef.Load(); a != nil {
				a.HandleStatus(st)
			}
		},
		OnScript: func(cmd model.ScriptCommand) {
			if a := agentRef.Load(); a != nil {
				a.HandleScript(cmd)
			}
		},
		OnEmptyPodRequest: func(req model.EmptyPodRequest) {
			b := busRef.Load()
			if b == nil || !hw.Snapshot().PodAvailable() {
				return
			}
			if err := b.AcceptEmptyPod(req); err != nil {
				log.Warnf("empty pod acceptance failed: %v", err)
			}
		},
		OnEmptyPodAccepted: func(acc model.EmptyPodAccepted) {
			log.Infof("station %d offers an empty pod", acc.Provider)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	busRef.Store(bus)

	hw.OnAux(func(on bool) {
		if err := bus.PublishBlower(on); err != nil {
			log.Warnf("blower publish failed: %v", err)
		}
	})

	agent := simulator.NewAgent(spec.ID, hw, bus, cfg.Station.Move, log)
	agent.SetIntervals(cfg.Station.HeartbeatInterval, cfg.Station.SensorInterval)
	agentRef.Store(agent)
	return agent, bus, nil
}

// stationMQTTConfig derives a per-station client identity from the shared
// broker settings.
func stationMQTTConfig(cfg *config.Config, stationID int) mqtt.Config {
	c := cfg.MQTT
	c.ClientID = fmt.Sprintf("station-%d-%s", stationID, uuid.NewString()[:8])
	return c
}
