package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var (
	upPull    bool
	upTimeout time.Duration
)

var upCmd = &cobra.Command{
	Use:   "up [service...]",
	Short: "Create and start the project's services",
	Long: `Up brings the project to its declared state: networks and volumes are
created, images pulled or built, and services started in dependency order.
Containers whose configuration or image changed are recreated. With service
arguments only those services and their dependencies are touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			err := sup.Up(ctx, supervisor.UpOptions{
				Services: args,
				Pull:     upPull,
				Timeout:  upTimeout,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Project %s is up.\n", cfg.Name)
			return nil
		})
	},
}

func init() {
	upCmd.Flags().BoolVar(&upPull, "pull", false, "pull images even if present locally")
	upCmd.Flags().DurationVar(&upTimeout, "timeout", supervisor.DefaultHealthTimeout, "how long to wait for services to become healthy")
	rootCmd.AddCommand(upCmd)
}
