package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/agent"
	"github.com/aholstad/berth/internal/docker"
	"github.com/aholstad/berth/internal/supervisor"
)

var (
	agentListen      string
	agentInterval    time.Duration
	agentHealthFails int
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the reconcile loop with a status API",
	Long: `Agent keeps the project converged: every interval it reapplies the
declared state and restarts services that stay unhealthy. It also serves a
small HTTP API with service status, recent events and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		j := openJournal()
		if j == nil {
			return fmt.Errorf("agent needs the event journal")
		}
		defer j.Close()

		sup := supervisor.New(cfg, mgr)
		sup.Events = j.Recorder(cfg.Name)

		a := agent.New(cfg, sup, j, agent.Options{
			Listen:      agentListen,
			Interval:    agentInterval,
			HealthFails: agentHealthFails,
			Version:     version,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentListen, "listen", "127.0.0.1:8787", "address for the status API")
	agentCmd.Flags().DurationVar(&agentInterval, "interval", 30*time.Second, "time between reconcile runs")
	agentCmd.Flags().IntVar(&agentHealthFails, "health-fails", 3, "consecutive unhealthy checks before a restart")
	rootCmd.AddCommand(agentCmd)
}
