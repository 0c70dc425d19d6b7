package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"qrattend/internal/token"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("RECORD_BACKEND", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("SEED_DATABASE", "")
	cfg := Load()
	assert.Equal(t, token.DefaultTTL, cfg.TokenTTL)
	assert.Equal(t, 300*time.Second, cfg.TokenTTL)
	assert.Equal(t, "sql", cfg.RecordBackend)
	assert.Equal(t, "pgx", cfg.DatabaseDriver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_TTL", "90s")
	t.Setenv("RECORD_BACKEND", "memory")
	t.Setenv("DIRECTORY_SEED_FILE", "seed.yaml")
	t.Setenv("SEED_DATABASE", "true")
	t.Setenv("SCAN_RATE_LIMIT_PER_MIN", "7")
	t.Setenv("APP_ENV", "prod")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.TokenTTL)
	assert.Equal(t, "memory", cfg.RecordBackend)
	assert.True(t, cfg.SeedDatabase)
	assert.Equal(t, 7, cfg.ScanRateLimitPerMin)
	assert.True(t, cfg.Production())
	assert.NoError(t, cfg.Validate())
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("TOKEN_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")
	t.Setenv("SEED_DATABASE", "maybe")

	cfg := Load()
	assert.Equal(t, 300*time.Second, cfg.TokenTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.False(t, cfg.SeedDatabase)
}

func TestValidate(t *testing.T) {
	base := App{RecordBackend: "sql", DatabaseDriver: "pgx", TokenTTL: time.Minute}
	assert.NoError(t, base.Validate())

	bad := base
	bad.RecordBackend = "mongo"
	assert.Error(t, bad.Validate())

	bad = base
	bad.RecordBackend = "redis"
	assert.Error(t, bad.Validate())

	bad = base
	bad.DatabaseDriver = "mysql"
	assert.Error(t, bad.Validate())

	bad = base
	bad.SeedDatabase = true
	assert.Error(t, bad.Validate())

	bad = base
	bad.TokenTTL = 0
	assert.Error(t, bad.Validate())
}
