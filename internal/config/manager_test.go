package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-dispatcher/pkg/models"
)

func writeConfig(t *testing.T, dir, extra string) {
	t.Helper()
	content := "download:\n" +
		"  save_path: " + filepath.Join(dir, "downloads") + "\n" +
		"database:\n" +
		"  path: " + filepath.Join(dir, "data", "test.db") + "\n" +
		"log:\n" +
		"  format: json\n" +
		extra
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	cfg, err := NewManager().Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Quota.Limit)
	assert.Equal(t, 60, cfg.Quota.WindowSeconds)
	assert.Equal(t, "memory", cfg.Quota.Backend)
	assert.Equal(t, int64(50*1024*1024), cfg.Download.MaxFileSizeBytes)
	assert.Equal(t, 300, cfg.Download.StrategyTimeout)
	assert.Equal(t, []string{"pin.it"}, cfg.Classifier.ShortLinkHosts)
	assert.True(t, cfg.Platforms.Instagram.Enabled)
	assert.True(t, cfg.Platforms.Pinterest.Enabled)

	assert.DirExists(t, filepath.Join(dir, "downloads"))
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "quota:\n  limit: 3\n  window_seconds: 10\n")

	cfg, err := NewManager().Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Quota.Limit)
	assert.Equal(t, 10, cfg.Quota.WindowSeconds)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	t.Setenv("MD_QUOTA_LIMIT", "9")
	t.Setenv("MD_QUOTA_BACKEND", "redis")

	cfg, err := NewManager().Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Quota.Limit)
	assert.Equal(t, "redis", cfg.Quota.Backend)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MD_DOWNLOAD_SAVE_PATH", filepath.Join(dir, "downloads"))
	t.Setenv("MD_DATABASE_PATH", filepath.Join(dir, "data", "test.db"))

	_, err := NewManager().Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "quota:\n  backend: memcached\n")

	_, err := NewManager().Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *models.Config {
		cfg := &models.Config{}
		cfg.Quota.Limit = 5
		cfg.Quota.WindowSeconds = 60
		cfg.Download.MaxFileSizeBytes = 1
		cfg.Download.StrategyTimeout = 1
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*models.Config)
		wantErr bool
	}{
		{"valid", func(*models.Config) {}, false},
		{"zero limit", func(c *models.Config) { c.Quota.Limit = 0 }, true},
		{"zero window", func(c *models.Config) { c.Quota.WindowSeconds = 0 }, true},
		{"zero max size", func(c *models.Config) { c.Download.MaxFileSizeBytes = 0 }, true},
		{"zero timeout", func(c *models.Config) { c.Download.StrategyTimeout = 0 }, true},
		{"redis backend", func(c *models.Config) { c.Quota.Backend = "redis" }, false},
		{"unknown backend", func(c *models.Config) { c.Quota.Backend = "etcd" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	m := NewManager()
	_, err := m.Load(dir)
	require.NoError(t, err)

	require.NoError(t, m.UpdateConfig(map[string]interface{}{"quota.limit": 8}))
	assert.Equal(t, 8, m.GetConfig().Quota.Limit)

	assert.Error(t, m.UpdateConfig(map[string]interface{}{"quota.limit": 0}))
}
