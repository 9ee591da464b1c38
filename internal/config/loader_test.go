package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "berth.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const sampleConfig = `
name: homeserver
services:
  proxy:
    image: nginx:1.25
    ports: ["80:80"]
    depends_on: [app]
  app:
    build:
      context: ./app
    environment: ["PORT=3000", "TOKEN=${APP_TOKEN}", "HOST=${APP_HOST:-localhost}"]
    volumes: ["appdata:/data"]
    networks: [default, backend]
    restart: unless-stopped
    healthcheck:
      test: ["CMD", "curl", "-f", "http://localhost:3000/"]
      interval: 10s
  db:
    image: postgres:16
    volumes: ["pgdata:/var/lib/postgresql/data"]
    networks: [backend]
    secrets: [db-password]
volumes:
  appdata: {}
  pgdata: {}
networks:
  backend: {}
secrets:
  db-password:
    file: ./secrets/db_password
`

func TestLoad(t *testing.T) {
	t.Setenv("APP_TOKEN", "sekrit")
	os.Unsetenv("APP_HOST")

	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Name != "homeserver" {
		t.Errorf("got project name %q, expected homeserver", cfg.Name)
	}
	if len(cfg.Services) != 3 {
		t.Fatalf("got %d services, expected 3", len(cfg.Services))
	}
	if cfg.BaseDir != filepath.Dir(path) {
		t.Errorf("got base dir %q, expected %q", cfg.BaseDir, filepath.Dir(path))
	}

	app := cfg.Services["app"]
	if app.Build == nil || app.Build.Context != "./app" {
		t.Fatalf("app build not decoded: %+v", app.Build)
	}
	if app.Build.Dockerfile != "Dockerfile" {
		t.Errorf("got dockerfile %q, expected default Dockerfile", app.Build.Dockerfile)
	}
	if app.Restart != "unless-stopped" {
		t.Errorf("got restart %q", app.Restart)
	}
	if app.Healthcheck == nil || app.Healthcheck.Interval != "10s" {
		t.Errorf("healthcheck not decoded: %+v", app.Healthcheck)
	}

	// Interpolation: set variable, and default for an unset one.
	env, err := cfg.ServiceEnv(app)
	if err != nil {
		t.Fatalf("materializing env: %v", err)
	}
	joined := strings.Join(env, "\n")
	if !strings.Contains(joined, "TOKEN=sekrit") {
		t.Errorf("missing interpolated TOKEN in %q", joined)
	}
	if !strings.Contains(joined, "HOST=localhost") {
		t.Errorf("missing defaulted HOST in %q", joined)
	}

	// Normalization: the implicit default network exists, declared one kept.
	if _, ok := cfg.Networks[DefaultNetwork]; !ok {
		t.Error("default network not added during normalization")
	}
	if n := cfg.Networks["backend"]; n.Driver != "bridge" {
		t.Errorf("got backend driver %q, expected bridge", n.Driver)
	}

	// Default network membership.
	if nets := cfg.Services["proxy"].ServiceNetworks(); len(nets) != 1 || nets[0] != DefaultNetwork {
		t.Errorf("got proxy networks %v", nets)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "berth.yaml"))
	if err == nil || !strings.Contains(err.Error(), "berth init") {
		t.Fatalf("got %v, expected a hint to run berth init", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"no project name",
			"services:\n  a:\n    image: x\n",
			"project name is required",
		},
		{
			"no services",
			"name: p\n",
			"no services",
		},
		{
			"image and build",
			"name: p\nservices:\n  a:\n    image: x\n    build:\n      context: .\n",
			"mutually exclusive",
		},
		{
			"neither image nor build",
			"name: p\nservices:\n  a:\n    ports: [\"80:80\"]\n",
			"needs image or build",
		},
		{
			"bad restart policy",
			"name: p\nservices:\n  a:\n    image: x\n    restart: sometimes\n",
			"unknown restart policy",
		},
		{
			"bad port",
			"name: p\nservices:\n  a:\n    image: x\n    ports: [\"eighty:80\"]\n",
			"invalid port mapping",
		},
		{
			"duplicate host port",
			"name: p\nservices:\n  a:\n    image: x\n    ports: [\"80:80\"]\n  b:\n    image: y\n    ports: [\"80:8080\"]\n",
			"already published",
		},
		{
			"self dependency",
			"name: p\nservices:\n  a:\n    image: x\n    depends_on: [a]\n",
			"depends on itself",
		},
		{
			"unknown dependency",
			"name: p\nservices:\n  a:\n    image: x\n    depends_on: [b]\n",
			"unknown service",
		},
		{
			"undeclared named volume",
			"name: p\nservices:\n  a:\n    image: x\n    volumes: [\"data:/data\"]\n",
			"not declared under volumes",
		},
		{
			"unknown network",
			"name: p\nservices:\n  a:\n    image: x\n    networks: [lan]\n",
			"unknown network",
		},
		{
			"unknown secret",
			"name: p\nservices:\n  a:\n    image: x\n    secrets: [tls-key]\n",
			"unknown secret",
		},
		{
			"healthcheck without test",
			"name: p\nservices:\n  a:\n    image: x\n    healthcheck:\n      interval: 5s\n",
			"needs a test command",
		},
		{
			"bad healthcheck duration",
			"name: p\nservices:\n  a:\n    image: x\n    healthcheck:\n      test: [\"CMD\", \"true\"]\n      interval: soon\n",
			"invalid healthcheck duration",
		},
		{
			"missing env file",
			"name: p\nservices:\n  a:\n    image: x\n    env_file: [missing.env]\n",
			"env_file",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got %q, expected it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestServiceHashChanges(t *testing.T) {
	s := Service{Image: "nginx:1.25", Ports: []string{"80:80"}}
	h1, err := ServiceHash("proxy", s, []string{"A=1"}, "nginx:1.25")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	h2, err := ServiceHash("proxy", s, []string{"A=1"}, "nginx:1.25")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	if h1 != h2 {
		t.Error("hash is not stable for identical input")
	}
	h3, _ := ServiceHash("proxy", s, []string{"A=2"}, "nginx:1.25")
	if h1 == h3 {
		t.Error("hash ignored environment change")
	}
	s.Ports = []string{"8080:80"}
	h4, _ := ServiceHash("proxy", s, []string{"A=1"}, "nginx:1.25")
	if h1 == h4 {
		t.Error("hash ignored port change")
	}
}

func TestRenderRoundTrips(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	out, err := cfg.Render()
	if err != nil {
		t.Fatalf("rendering: %v", err)
	}
	for _, want := range []string{"name: homeserver", "image: nginx:1.25", "db-password", "driver: bridge"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("rendered config missing %q:\n%s", want, out)
		}
	}
}
