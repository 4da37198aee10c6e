package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 30*time.Minute, cfg.TransitionDeadline)
	assert.Equal(t, 3*time.Hour, cfg.Expiry().NapCeiling)
	assert.Equal(t, 11*time.Hour, cfg.Expiry().NightFallback)
	assert.True(t, cfg.RecurrenceCache)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "storage: file\ndata_dir: /var/lib/routine\nscan_interval: 1m\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routine.yaml"), []byte(yaml), 0o644))

	t.Setenv("ROUTINE_LOG_LEVEL", "warn")
	t.Setenv("ROUTINE_TRANSITION_DEADLINE", "45m")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, StorageFile, cfg.Storage)
	assert.Equal(t, "/var/lib/routine", cfg.DataDir)
	assert.Equal(t, time.Minute, cfg.ScanInterval)
	assert.Equal(t, "warn", cfg.LogLevel, "environment beats the file")
	assert.Equal(t, 45*time.Minute, cfg.TransitionDeadline)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ROUTINE_REDIS_DB=3\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ROUTINE_REDIS_DB") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("ROUTINE_STORAGE", "floppy")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	bad := *cfg
	bad.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ScanInterval = time.Millisecond
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.LogLevel = "chatty"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.TransitionRetention = time.Hour
	assert.Error(t, bad.Validate(), "a dismissed transition must outlive its day")
}

func TestValidate_Expiry(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name string
		set  func(c *Config)
	}{
		{"nap ceiling", func(c *Config) { c.NapCeiling = 0 }},
		{"night ceiling", func(c *Config) { c.NightCeiling = -time.Hour }},
		{"nap fallback", func(c *Config) { c.NapFallback = 0 }},
		{"night fallback", func(c *Config) { c.NightFallback = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *cfg
			tt.set(&bad)
			assert.ErrorContains(t, bad.Validate(), tt.name)
		})
	}
}

func TestLoad_ZeroCeilingFromEnv(t *testing.T) {
	t.Setenv("ROUTINE_NAP_CEILING", "0s")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "child_id", "milo")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "milo", line["child_id"])
}
