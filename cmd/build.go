package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/supervisor"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build images for services with a build context",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProject(func(ctx context.Context, sup *supervisor.Supervisor) error {
			return sup.Build(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
