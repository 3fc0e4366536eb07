package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Ledger storage backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	LogFormat           string // "console" for human-readable output, JSON otherwise
	LedgerBackend       string // memory, sql or redis
	DatabaseURL         string // postgres DSN, or "sqlite:<path>" for local runs
	RedisURL            string
	LedgerRedisPrefix   string
	SubmitMaxRetries    uint64 // resubmissions after a read conflict
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LEDGER_BACKEND", BackendMemory)
	v.SetDefault("LEDGER_REDIS_PREFIX", "ledger")
	v.SetDefault("SUBMIT_MAX_RETRIES", 3)

	cfg := &Config{
		Env:                 v.GetString("APP_ENV"),
		Port:                v.GetString("PORT"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		LedgerBackend:       strings.ToLower(strings.TrimSpace(v.GetString("LEDGER_BACKEND"))),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		LedgerRedisPrefix:   v.GetString("LEDGER_REDIS_PREFIX"),
		SubmitMaxRetries:    v.GetUint64("SUBMIT_MAX_RETRIES"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendSQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: LEDGER_BACKEND=sql requires DATABASE_URL")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: LEDGER_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	return nil
}
