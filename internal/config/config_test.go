package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviciomed/serviciomed/internal/programs"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{
		"SERVER_ENVIRONMENT", "DATABASE_DRIVER", "DATABASE_URL", "MONGODB_URI",
		"STORAGE_BACKEND", "SESSION_BACKEND", "SESSION_SECRET", "REDIS_HOST",
		"CONFIG_FILE", "UPLOAD_MAX_BYTES", "SESSION_TTL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, int64(16<<20), cfg.Intake.MaxUploadBytes)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr())
	assert.True(t, cfg.Server.IsDevelopment())
	assert.False(t, cfg.Session.CookieSecure)
	assert.Len(t, cfg.Session.Secret, 64, "development generates a secret")
	assert.Equal(t, programs.Default, cfg.Programs)
	assert.Equal(t, "", cfg.Redis.Addr())
}

func TestLoadConfig_Overrides(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, int64(1024), cfg.Intake.MaxUploadBytes)
}

func TestLoadConfig_ProductionRequiresSecret(t *testing.T) {
	isolate(t)
	t.Setenv("SERVER_ENVIRONMENT", "production")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "SESSION_SECRET")

	t.Setenv("SESSION_SECRET", "s3cret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Session.CookieSecure)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"driver":          {"DATABASE_DRIVER": "oracle"},
		"postgres url":    {"DATABASE_DRIVER": "postgres"},
		"mongo uri":       {"DATABASE_DRIVER": "mongodb"},
		"storage":         {"STORAGE_BACKEND": "ftp"},
		"session backend": {"SESSION_BACKEND": "memcached"},
		"redis sessions":  {"SESSION_BACKEND": "redis"},
		"upload size":     {"UPLOAD_MAX_BYTES": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_ProgramsFile(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "serviciomed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
programs:
  - name: Arquitectura
    prefix: ARQ
  - name: Ingeniería Civil
    prefix: IC
`), 0o600))
	t.Setenv("CONFIG_FILE", file)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []programs.Program{
		{Name: "Arquitectura", Prefix: "ARQ"},
		{Name: "Ingeniería Civil", Prefix: "IC"},
	}, cfg.Programs)

	require.NoError(t, os.WriteFile(file, []byte("programs:\n  - name: Bad\n    prefix: b1\n"), 0o600))
	_, err = LoadConfig()
	require.ErrorContains(t, err, "program catalog")
}
