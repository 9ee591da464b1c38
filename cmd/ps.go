package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/docker"
	"github.com/aholstad/berth/internal/supervisor"
)

var psCmd = &cobra.Command{
	Use:     "ps",
	Aliases: []string{"status"},
	Short:   "Show the state of the project's services",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		sup := supervisor.New(cfg, mgr)
		statuses, err := sup.Status(context.Background())
		if err != nil {
			return err
		}

		// Use tabwriter to print pretty columns
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tIMAGE\tSTATE\tHEALTH\tUPTIME\tPORTS")
		for _, st := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				st.Name, st.Image, stateColumn(st), orDash(st.Health), uptimeColumn(st), orDash(strings.Join(st.Ports, ", ")))
		}
		return w.Flush()
	},
}

func stateColumn(st supervisor.ServiceStatus) string {
	if !st.Exists {
		return "missing"
	}
	state := st.Status
	if state == "" {
		state = "created"
	}
	if st.Drifted {
		state += " (drift)"
	}
	return state
}

func uptimeColumn(st supervisor.ServiceStatus) string {
	if !st.Running || st.StartedAt.IsZero() {
		return "-"
	}
	return units.HumanDuration(time.Since(st.StartedAt))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(psCmd)
}
