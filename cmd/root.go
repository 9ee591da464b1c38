package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/config"
	"github.com/aholstad/berth/internal/docker"
	"github.com/aholstad/berth/internal/journal"
	"github.com/aholstad/berth/internal/supervisor"
)

// Loaded project configuration, shared by all commands.
var cfg *config.Config

var configFile string

var rootCmd = &cobra.Command{
	Use:   "berth",
	Short: "Berth: declarative services for a single host",
	Long: `Berth reads a project file describing your services (a reverse proxy,
an application, a database, ...) and drives the local container runtime to
match it: networks, volumes, startup order, health checks, restarts.`,
	SilenceUsage: true,
	// The file flag lives on the root command only, so subcommands are free
	// to reuse -f (berth logs -f). TraverseChildren makes cobra parse it in
	// place: berth -f other.yaml up.
	TraverseChildren: true,
	// PersistentPreRunE runs before ANY command (up, down, etc.)
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsConfig(cmd) {
			return nil
		}
		loadedConfig, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loadedConfig
		return nil
	},
}

// skipsConfig reports whether a command runs without a project file.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "init", "version", "completion", "help", "__complete":
			return true
		}
	}
	return false
}

// withProject wires up the runtime manager, the event journal and the
// supervisor, then runs fn and cleans up.
func withProject(fn func(ctx context.Context, sup *supervisor.Supervisor) error) error {
	mgr, err := docker.NewManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	sup := supervisor.New(cfg, mgr)
	if j := openJournal(); j != nil {
		defer j.Close()
		sup.Events = j.Recorder(cfg.Name)
	}
	return fn(context.Background(), sup)
}

// openJournal opens the project's event journal. A journal that cannot be
// opened disables event recording but never blocks the actual work.
func openJournal() *journal.Journal {
	path, err := journal.DefaultPath(cfg.Name)
	if err == nil {
		var j *journal.Journal
		if j, err = journal.Open(context.Background(), path); err == nil {
			return j
		}
	}
	log.Printf("warning: event journal unavailable: %v", err)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "file", "f", "berth.yaml", "project file to use")
}
