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
	"github.com/oora/tellerloop/infra/logger"
)

var (
	scriptStation int
	scriptOp      string
	scriptWait    time.Duration
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Trigger a maintenance operation on one station",
	RunE:  runScript,
}

func init() {
	scriptCmd.Flags().IntVar(&scriptStation, "station", 0, "target station id")
	scriptCmd.Flags().StringVar(&scriptOp, "op", "", "operation (self_test, passthrough, jog_left, jog_right, stop)")
	scriptCmd.Flags().DurationVar(&scriptWait, "wait", 10*time.Second, "how long to wait for the station to announce itself")
	rootCmd.AddCommand(scriptCmd)
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scriptStation <= 0 {
		return fmt.Errorf("--station is required")
	}
	if scriptOp == "" {
		return fmt.Errorf("--op is required")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The command is its own short-lived coordinator; it must not fight
	// over the metrics port with a running service.
	cfg.Metrics.PrometheusEnabled = false
	if cfg.MQTT.ClientID != "" {
		cfg.MQTT.ClientID = fmt.Sprintf("%s-script-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])
	}

	logg := logger.New("script-command")
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

	if err := waitForStations(ctx, svc, scriptStation, scriptStation, scriptWait); err != nil {
		return err
	}

	// The station acknowledges over its ACK topic; the script itself is
	// fire and forget.
	if err := svc.Coordinator.RunScript(scriptStation, scriptOp); err != nil {
		return fmt.Errorf("script rejected: %w", err)
	}
	fmt.Printf("script %s sent to station %d\n", scriptOp, scriptStation)
	return nil
}
