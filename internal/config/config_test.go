package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "@every 5m", cfg.SweepSchedule)
	assert.Equal(t, 2*time.Minute, cfg.SweepLockTTL)
	assert.Equal(t, "compound", cfg.Pricing.Composition)
	assert.Equal(t, "500.00", cfg.Pricing.Fees["project_BONE"])
	assert.Equal(t, "25.00", cfg.Pricing.Fees["job_ADA"])
	assert.Equal(t, DefaultPricing(), cfg.Pricing)
	assert.True(t, cfg.SweepEnabled)
	assert.False(t, cfg.AutoMigrate)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_URL", "sqlite:boneboard.db")
	t.Setenv("PRICING_COMPOSITION", "Additive")
	t.Setenv("PRICING_FEE_JOB_BONE", "300.00")
	t.Setenv("SWEEP_LOCK_TTL", "30s")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_boneboard")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "sqlite:boneboard.db", cfg.DatabaseURL)
	assert.Equal(t, "additive", cfg.Pricing.Composition)
	assert.Equal(t, "300.00", cfg.Pricing.Fees["job_BONE"])
	assert.Equal(t, "500.00", cfg.Pricing.Fees["project_BONE"])
	assert.Equal(t, 30*time.Second, cfg.SweepLockTTL)
	assert.False(t, cfg.SweepEnabled)
	assert.True(t, cfg.AutoMigrate)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "whsec_boneboard", cfg.WebhookSecret)
}

// chdirTemp keeps a developer's .env out of the test.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
