package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, key := range []string{
		"DB_SOURCE", "STORE_DRIVER", "SERVER_PORT", "ENVIRONMENT", "LOG_LEVEL",
		"ADMIN_JWT_SECRET", "CORS_ALLOWED_ORIGINS", "DB_MAX_CONNS", "BCRYPT_COST",
		"HISTORY_LIMIT_DEFAULT", "MIGRATE_ON_START", "SERVER_READ_TIMEOUT",
		"SERVER_WRITE_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, kv[key])
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{
		"DB_SOURCE":        "postgres://localhost/custodia",
		"ADMIN_JWT_SECRET": "0123456789abcdef",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, 15*time.Second, cfg.WriteTimeout)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_DRIVER":          "memory",
		"ADMIN_JWT_SECRET":      "0123456789abcdef",
		"ENVIRONMENT":           "production",
		"HISTORY_LIMIT_DEFAULT": "50",
		"MIGRATE_ON_START":      "false",
		"SERVER_READ_TIMEOUT":   "3s",
		"CORS_ALLOWED_ORIGINS":  "https://a.example, https://b.example,",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing db source": {"ADMIN_JWT_SECRET": "0123456789abcdef"},
		"missing secret":    {"STORE_DRIVER": "memory"},
		"unknown driver":    {"STORE_DRIVER": "sqlite", "ADMIN_JWT_SECRET": "0123456789abcdef"},
		"bad int":           {"STORE_DRIVER": "memory", "ADMIN_JWT_SECRET": "0123456789abcdef", "BCRYPT_COST": "high"},
		"bad duration":      {"STORE_DRIVER": "memory", "ADMIN_JWT_SECRET": "0123456789abcdef", "SERVER_WRITE_TIMEOUT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setEnv(t, env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
