package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the project file and print its normalized form",
	Long: `Config parses the project file, applies environment interpolation and
defaults, checks it for errors and prints the result. A zero exit status means
the file is valid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Render()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
