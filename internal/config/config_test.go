package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-env", cfg.AI.APIKey)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, int64(5<<20), cfg.Image.MaxBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Database.Driver)
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("COWHEALTH_API_KEYS", "ui:abc, cli:def")
	path := writeConfig(t, `
server:
  port: 9000
ai:
  provider: Gemini
  model: gemini-2.0-flash
  timeout: 90s
database:
  driver: postgres
  host: db
  user: cow
  password: moo
  name: herd
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "gm-key", cfg.AI.APIKey)
	assert.Equal(t, 90*time.Second, cfg.AI.Timeout)
	assert.Equal(t, map[string]string{"ui": "abc", "cli": "def"}, cfg.Auth.APIKeys)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "host=db port=5432 user=cow password=moo dbname=herd sslmode=disable", cfg.PostgresDSN())
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "ai:\n  provider: llama\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown ai.provider")
}

func TestMySQLDSN(t *testing.T) {
	var cfg Config
	cfg.Database.User = "u"
	cfg.Database.Password = "p"
	cfg.Database.Host = "h"
	cfg.Database.Port = 3306
	cfg.Database.Name = "n"
	assert.Equal(t, "u:p@tcp(h:3306)/n?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}

func TestLoadSQLiteAndRedis(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("REDIS_ADDR", "redis:6379")
	path := writeConfig(t, "database:\n  driver: sqlite\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cowhealth.db", cfg.Database.Path)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}
