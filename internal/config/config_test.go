package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTP.Address)
	assert.Equal(t, ":9090", cfg.Server.GRPC.Address)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "data/advantage.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "Adversary", cfg.Auth.OwnerLabel)
	assert.Empty(t, cfg.Auth.OwnerPassphraseHash)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, 20, cfg.Session.NotificationLimit)
	assert.Equal(t, 60*time.Second, cfg.Server.WebSocket.PongWait)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  http:
    address: "127.0.0.1:9000"
storage:
  driver: memory
auth:
  owner_label: "The Horde"
session:
  notification_limit: 5
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.HTTP.Address)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "The Horde", cfg.Auth.OwnerLabel)
	assert.Equal(t, 5, cfg.Session.NotificationLimit)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.Server.GRPC.Address, "unset keys keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o600))

	t.Setenv("GA_STORAGE_DRIVER", "postgres")
	t.Setenv("GA_STORAGE_POSTGRES_DSN", "postgres://localhost/advantage")
	t.Setenv("GA_SESSION_IDLE_TTL", "5m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/advantage", cfg.Storage.Postgres.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Session.IdleTTL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{
				HTTP:      HTTPConfig{Address: ":8080"},
				WebSocket: WebSocketConfig{PingPeriod: time.Second, PongWait: 2 * time.Second},
			},
			Storage: StorageConfig{Driver: DriverMemory},
			Session: SessionConfig{NotificationLimit: 10},
			Logging: LoggingConfig{Format: "console"},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing http address", func(c *Config) { c.Server.HTTP.Address = "" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"pong not after ping", func(c *Config) { c.Server.WebSocket.PongWait = time.Second }},
		{"zero notification limit", func(c *Config) { c.Session.NotificationLimit = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
