package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "DATABASE_URL", "SERVICE_NAME", "LOG_LEVEL", "LOG_FORMAT", "BLOCKED_PERSON_IDS",
	"LOAN_PERIOD_MONTHS", "REGISTRATION_RATE_PER_MINUTE", "REGISTRATION_BURST", "NATIONAL_ID_PEPPER",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "RABBITMQ_URL", "RABBITMQ_EXCHANGE", "NOTIFY_TIMEOUT",
	"CORS_ALLOWED_ORIGINS", "SHUTDOWN_TIMEOUT", "SEED_DATA", "FAULT_BLAST_RADIUS", "FAULT_SEED",
}

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []int64{2}, cfg.BlockedPersonIDs)
	assert.Equal(t, 1, cfg.LoanPeriodMonths)
	assert.Equal(t, 5, cfg.RegistrationRatePerMinute)
	assert.Equal(t, 5, cfg.RegistrationBurst)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.SeedData)
	assert.Zero(t, cfg.FaultBlastRadius)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("BLOCKED_PERSON_IDS", "2, 7,11")
	t.Setenv("LOAN_PERIOD_MONTHS", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SEED_DATA", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []int64{2, 7, 11}, cfg.BlockedPersonIDs)
	assert.Equal(t, 3, cfg.LoanPeriodMonths)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.SeedData)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadEmptyBlockList(t *testing.T) {
	clearEnv(t)
	t.Setenv("BLOCKED_PERSON_IDS", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, cfg.BlockedPersonIDs)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=6000\nLOAN_PERIOD_MONTHS=2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, 2, cfg.LoanPeriodMonths)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"LOAN_PERIOD_MONTHS": "zero",
		"BLOCKED_PERSON_IDS": "2,x",
		"SHUTDOWN_TIMEOUT":   "soon",
		"SEED_DATA":          "maybe",
		"LOG_FORMAT":         "xml",
		"FAULT_BLAST_RADIUS": "1.5",
		"FAULT_SEED":         "-1",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadFaultInjection(t *testing.T) {
	clearEnv(t)
	t.Setenv("FAULT_BLAST_RADIUS", "0.25")
	t.Setenv("FAULT_SEED", "42")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.FaultBlastRadius)
	assert.Equal(t, uint64(42), cfg.FaultSeed)
}
