package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestFileFlagDefault(t *testing.T) {
	f := rootCmd.Flags().Lookup("file")
	if f == nil {
		t.Fatal("root command has no --file flag")
	}
	if f.DefValue != "berth.yaml" {
		t.Fatalf("--file default = %q, want berth.yaml", f.DefValue)
	}
	if f.Shorthand != "f" {
		t.Fatalf("--file shorthand = %q, want f", f.Shorthand)
	}
}

func TestMissingConfigPointsAtInit(t *testing.T) {
	old := configFile
	configFile = filepath.Join(t.TempDir(), "berth.yaml")
	defer func() { configFile = old }()

	err := rootCmd.PersistentPreRunE(psCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "berth init") {
		t.Fatalf("want an error suggesting berth init, got %v", err)
	}
}

func TestSkipsConfig(t *testing.T) {
	for _, c := range []*cobra.Command{initCmd, versionCmd} {
		if !skipsConfig(c) {
			t.Errorf("%s should run without a project file", c.Name())
		}
	}
	for _, c := range []*cobra.Command{upCmd, downCmd, psCmd, backupCmd, agentCmd} {
		if skipsConfig(c) {
			t.Errorf("%s must not run without a project file", c.Name())
		}
	}
}
