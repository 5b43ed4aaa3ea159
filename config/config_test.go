package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PERMISSION_CACHE_TTL_SEC", "")
	t.Setenv("DB_LOG_LEVEL", "")
	t.Setenv("JWT_ISSUER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, "warn", cfg.Database.LogLevel)
	assert.Equal(t, "cpd-backoffice", cfg.JWT.Issuer)
	assert.Equal(t, 5*time.Minute, cfg.RBAC.PermissionCacheTTL)
	assert.Equal(t, "admin@example.com", cfg.Seed.AdminEmail)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("PERMISSION_CACHE_TTL_SEC", "0")
	t.Setenv("JWT_EXPIRE_HOURS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Zero(t, cfg.RBAC.PermissionCacheTTL)
	assert.Equal(t, 2, cfg.JWT.ExpireHours)
}

func TestLoad_RejectsNonPositiveExpiry(t *testing.T) {
	t.Setenv("JWT_EXPIRE_HOURS", "-1")
	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: "5432", DBName: "backoffice", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/backoffice?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}
