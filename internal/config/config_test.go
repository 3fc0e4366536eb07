package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("PORT", "")
	t.Setenv("SUBMIT_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, uint64(3), cfg.SubmitMaxRetries)
	assert.Equal(t, "ledger", cfg.LedgerRedisPrefix)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "SQL")
	t.Setenv("DATABASE_URL", "sqlite:ledger.db")
	t.Setenv("SUBMIT_MAX_RETRIES", "7")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQL, cfg.LedgerBackend)
	assert.Equal(t, "sqlite:ledger.db", cfg.DatabaseURL)
	assert.Equal(t, uint64(7), cfg.SubmitMaxRetries)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_BackendRequirements(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")
	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("LEDGER_BACKEND", "sql")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("LEDGER_BACKEND", "couchdb")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown LEDGER_BACKEND")
}
