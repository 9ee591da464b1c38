package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var restartCmd = &cobra.Command{
	Use:   "restart [service...]",
	Short: "Restart services in dependency order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			return sup.Restart(ctx, args)
		})
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
