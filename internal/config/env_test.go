package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestServiceEnvMergeOrder(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "app.env")
	content := "# comment\n\nPORT=3000\nMODE=file\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("writing env file: %v", err)
	}

	cfg := Config{BaseDir: dir}
	s := Service{
		EnvFile:     []string{"app.env"},
		Environment: []string{"MODE=inline"},
	}
	env, err := cfg.ServiceEnv(s)
	if err != nil {
		t.Fatalf("materializing env: %v", err)
	}
	// File entries first, inline after: the runtime keeps the last
	// occurrence, so inline wins.
	want := []string{"PORT=3000", "MODE=file", "MODE=inline"}
	if !reflect.DeepEqual(env, want) {
		t.Fatalf("got env %v, expected %v", env, want)
	}
}

func TestReadEnvFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "bad.env")
	if err := os.WriteFile(envFile, []byte("NOT A PAIR\n"), 0o644); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	if _, err := readEnvFile(envFile); err == nil {
		t.Fatal("expected error for a line without =")
	}
}
