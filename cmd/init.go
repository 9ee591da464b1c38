package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const starterConfig = `name: homeserver

services:
  proxy:
    image: nginx:1.27
    ports:
      - "80:80"
    volumes:
      - ./proxy/default.conf:/etc/nginx/conf.d/default.conf:ro
    depends_on:
      - app
    restart: unless-stopped

  app:
    image: traefik/whoami:v1.10
    environment:
      - WHOAMI_NAME=${BERTH_HOST:-homeserver}
    networks:
      - default
      - backend
    depends_on:
      - db
    restart: unless-stopped

  db:
    image: postgres:16
    environment:
      - POSTGRES_DB=app
      - POSTGRES_PASSWORD_FILE=/run/secrets/db-password
    volumes:
      - pgdata:/var/lib/postgresql/data
    networks:
      - backend
    secrets:
      - db-password
    healthcheck:
      test: ["CMD-SHELL", "pg_isready -U postgres"]
      interval: 10s
      timeout: 3s
      retries: 5
    restart: unless-stopped

networks:
  backend: {}

volumes:
  pgdata: {}

secrets:
  db-password:
    file: ./secrets/db-password
`

const starterProxyConf = `server {
    listen 80;
    server_name _;

    location / {
        proxy_pass http://app:80;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter project file",
	Long: `Init scaffolds a small but realistic project: an nginx reverse proxy in
front of an app, and a postgres database on its own network with a generated
password secret. Edit the file, then run 'berth up'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite it", configFile)
		}

		dir := filepath.Dir(configFile)
		if err := writeStarter(filepath.Join(dir, "proxy", "default.conf"), []byte(starterProxyConf), 0644); err != nil {
			return err
		}
		secret := make([]byte, 16)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		password := hex.EncodeToString(secret) + "\n"
		if err := writeStarter(filepath.Join(dir, "secrets", "db-password"), []byte(password), 0600); err != nil {
			return err
		}
		if err := os.WriteFile(configFile, []byte(starterConfig), 0644); err != nil {
			return err
		}

		fmt.Printf("Wrote %s with services proxy, app and db.\n", configFile)
		fmt.Println("Start everything with: berth up")
		return nil
	},
}

// writeStarter creates a scaffold file, leaving any existing one alone.
func writeStarter(path string, data []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

func init() {
	rootCmd.AddCommand(initCmd)
}
