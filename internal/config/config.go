package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource    string
	DBMaxConns  int32
	StoreDriver string
	Port        string
	Env         string
	LogLevel    string

	AdminJWTSecret string
	BcryptCost     int
	HistoryLimit   int
	MigrateOnStart bool
	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		DBSource:       os.Getenv("DB_SOURCE"),
		StoreDriver:    valueOrDefault("STORE_DRIVER", DriverPostgres),
		Port:           valueOrDefault("SERVER_PORT", "8080"),
		Env:            valueOrDefault("ENVIRONMENT", "development"),
		LogLevel:       valueOrDefault("LOG_LEVEL", "info"),
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		AllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	var err error
	if cfg.StoreDriver != DriverPostgres && cfg.StoreDriver != DriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.StoreDriver)
	}
	if cfg.StoreDriver == DriverPostgres && cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if cfg.AdminJWTSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET environment variable is required")
	}

	maxConns, err := intOrDefault("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(maxConns)

	if cfg.BcryptCost, err = intOrDefault("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = intOrDefault("HISTORY_LIMIT_DEFAULT", 20); err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart, err = boolOrDefault("MIGRATE_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout, err = durationOrDefault("SERVER_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = durationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func boolOrDefault(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return b, nil
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
