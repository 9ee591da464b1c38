package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var eventsCount int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent lifecycle events for the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		j := openJournal()
		if j == nil {
			return fmt.Errorf("event journal unavailable")
		}
		defer j.Close()

		events, err := j.List(context.Background(), eventsCount)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tSERVICE\tACTION\tDETAIL")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				ev.Time.Local().Format("2006-01-02 15:04:05"), orDash(ev.Service), ev.Action, ev.Detail)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsCount, "count", "n", 20, "number of events to show")
	rootCmd.AddCommand(eventsCmd)
}
