package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var stopCmd = &cobra.Command{
	Use:   "stop [service...]",
	Short: "Stop running containers without removing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			return sup.Stop(ctx, args)
		})
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
