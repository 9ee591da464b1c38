package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the latest images for all services",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			return sup.Pull(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
