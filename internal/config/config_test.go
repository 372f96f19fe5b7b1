package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DSN", "DB_TIMEOUT", "LOG_LEVEL", "SEED_DEFAULTS", "MIGRATIONS_DIR"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultDSN, cfg.DatabaseDSN)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.SeedDefaults)
	assert.Equal(t, "db/migrations", cfg.MigrationsDir)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://u:p@db:5432/x")
	t.Setenv("DB_TIMEOUT", "750ms")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SEED_DEFAULTS", "false")
	t.Setenv("MIGRATIONS_DIR", "/custom/migrations")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DatabaseDSN)
	assert.Equal(t, 750*time.Millisecond, cfg.DBTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.SeedDefaults)
	assert.Equal(t, "/custom/migrations", cfg.MigrationsDir)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DB_TIMEOUT", "soon"},
		{"DB_TIMEOUT", "-1s"},
		{"LOG_LEVEL", "loud"},
		{"SEED_DEFAULTS", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFiles_DoesNotOverrideExistingEnv(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, ".env")

	if err := os.WriteFile(p, []byte("DB_DSN=from_file\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("DB_DSN", "from_env")

	cwd, _ := os.Getwd()
	_ = os.Chdir(tmp)
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	LoadEnvFiles()

	if got := os.Getenv("DB_DSN"); got != "from_env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}
