package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var downVolumes bool

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the project's containers and networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			if err := sup.Down(ctx, supervisor.DownOptions{Volumes: downVolumes}); err != nil {
				return err
			}
			fmt.Printf("Project %s is down.\n", cfg.Name)
			return nil
		})
	},
}

func init() {
	downCmd.Flags().BoolVar(&downVolumes, "volumes", false, "also remove named volumes (data is lost)")
	rootCmd.AddCommand(downCmd)
}
