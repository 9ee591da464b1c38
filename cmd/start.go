package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var startCmd = &cobra.Command{
	Use:   "start [service...]",
	Short: "Start existing containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			return sup.Start(ctx, args)
		})
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
