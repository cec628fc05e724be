package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oora/tellerloop/app"
	"github.com/oora/tellerloop/config"
	"github.com/oora/tellerloop/core/events"
	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/infra/logger"
	"github.com/oora/tellerloop/internal/eventbus"
)

var (
	dispatchFrom     int
	dispatchTo       int
	dispatchPriority string
	dispatchWait     time.Duration
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Inject a capsule dispatch request",
	RunE:  dispatchTask,
}

func init() {
	dispatchCmd.Flags().IntVar(&dispatchFrom, "from", 0, "sending station id")
	dispatchCmd.Flags().IntVar(&dispatchTo, "to", 0, "receiving station id")
	dispatchCmd.Flags().StringVar(&dispatchPriority, "priority", "normal", "dispatch priority (normal or high)")
	dispatchCmd.Flags().DurationVar(&dispatchWait, "wait", 10*time.Second, "how long to wait for stations to announce themselves")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dispatchFrom <= 0 || dispatchTo <= 0 {
		return fmt.Errorf("--from and --to are required")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The command is its own short-lived coordinator; it must not fight
	// over the metrics port with a running service.
	cfg.Metrics.PrometheusEnabled = false
	if cfg.MQTT.ClientID != "" {
		cfg.MQTT.ClientID = fmt.Sprintf("%s-dispatch-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])
	}

	logg := logger.New("dispatch-command")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := svc.Run(runCtx); err != nil {
			logg.Errorf("service: %v", err)
		}
	}()

	if err := waitForStations(ctx, svc, dispatchFrom, dispatchTo, dispatchWait); err != nil {
		return err
	}

	finished, stopSub := eventbus.SubscribeTyped[events.TaskFinished](svc.Events())
	defer stopSub()

	task, err := svc.Coordinator.RequestDispatch(ctx, dispatchFrom, dispatchTo, model.ParsePriority(dispatchPriority))
	if err != nil {
		return fmt.Errorf("dispatch rejected: %w", err)
	}
	logg.Infof("task %d queued: %d -> %d", task.ID, task.From, task.To)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-finished:
			if !ok {
				return fmt.Errorf("event bus closed before task %d finished", task.ID)
			}
			if ev.Task.ID != task.ID {
				continue
			}
			fmt.Printf("task %d %s\n", ev.Task.ID, ev.Task.Status)
			if ev.Task.Status != model.StatusCompleted {
				return fmt.Errorf("task %d ended %s: %s", ev.Task.ID, ev.Task.Status, ev.Task.ExecutionDetails)
			}
			return nil
		}
	}
}

// waitForStations polls the registry until both endpoints have joined.
func waitForStations(ctx context.Context, svc *app.Service, from, to int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		alive := map[int]bool{}
		for _, rec := range svc.Coordinator.Stations() {
			alive[rec.StationID] = true
		}
		if alive[from] && alive[to] {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("stations %d and %d not seen within %s", from, to, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
