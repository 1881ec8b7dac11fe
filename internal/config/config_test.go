package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvedBackupPath_DefaultsToConfiguredDir(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "./backups", cfg.ResolvedBackupPath())
}

func TestResolvedBackupPath_UsesConfiguredValue(t *testing.T) {
	cfg := Config{BackupPath: " /tmp/custom-backups "}
	require.Equal(t, "/tmp/custom-backups", cfg.ResolvedBackupPath())
}

func TestRelationalPathAndVectorDir(t *testing.T) {
	cfg := Config{DBPath: "/data/memory"}
	require.Equal(t, "/data/memory/memory.sqlite", cfg.RelationalPath())
	require.Equal(t, "/data/memory/chroma", cfg.VectorDir())
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, "./memory_db", cfg.DBPath)
	require.Equal(t, 5, cfg.DefaultMaxResults)
	require.Equal(t, 500, cfg.TinyContentThreshold)
	require.Equal(t, 2000, cfg.SmallContentThreshold)
	require.True(t, cfg.EnableAutoBackup)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/custom-db")
	t.Setenv("DEFAULT_MAX_RESULTS", "10")
	t.Setenv("ENABLE_AUTO_BACKUP", "false")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-db", cfg.DBPath)
	require.Equal(t, 10, cfg.DefaultMaxResults)
	require.False(t, cfg.EnableAutoBackup)
}

func TestLoadFromEnv_InvalidInt(t *testing.T) {
	t.Setenv("DEFAULT_MAX_RESULTS", "not-a-number")
	_, err := LoadFromEnv()
	require.Error(t, err)
}
