package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("GOOGLE_API_KEY", "test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "heatmap", cfg.AppName)
	assert.Equal(t, "8888", cfg.GetPort())
	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.Equal(t, MongoDatabase, cfg.DatabaseType)
	assert.Equal(t, "heatmap_saas", cfg.MongoDatabaseName)
	assert.Equal(t, "mongodb://localhost:27017", cfg.DatabaseDSN())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 5*time.Second, cfg.SelectionTimeout())
	assert.Equal(t, 15*time.Second, cfg.OperationTimeout())
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout())
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, 10, cfg.GetMaxOpenConns())
	assert.Equal(t, 5, cfg.GetMaxIdleConns())
}

func TestLoadFromEnvironment(t *testing.T) {
	setRequired(t)
	t.Setenv("HEATMAP_ENV", Test)
	t.Setenv("HEATMAP_APP_PORT", "9999")
	t.Setenv("HEATMAP_DB_TYPE", SQLiteDatabase)
	t.Setenv("HEATMAP_STORAGE_PATH", "/tmp/heatmap")
	t.Setenv("HEATMAP_GENERATION_TIMEOUT_SECONDS", "5")
	t.Setenv("HEATMAP_GEMINI_MODEL", "gemini-pro")
	t.Setenv("HEATMAP_MIGRATE_ON_START", "false")
	t.Setenv("HEATMAP_DB_MAX_OPEN_CONNS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsTest())
	assert.Equal(t, "9999", cfg.GetPort())
	assert.Equal(t, SQLiteDatabase, cfg.DatabaseType)
	assert.Equal(t, filepath.Join("/tmp/heatmap", "heatmap-test.db"), cfg.DatabaseDSN())
	assert.Equal(t, 5*time.Second, cfg.GenerationTimeout())
	assert.Equal(t, "gemini-pro", cfg.GeminiModel)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, 4, cfg.GetMaxOpenConns())
	assert.Equal(t, 1, cfg.GetMaxIdleConns())
	assert.Empty(t, cfg.PublicBaseURL)
}

func TestLoadPublicBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("HEATMAP_PUBLIC_BASE_URL", "https://collector.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://collector.example", cfg.PublicBaseURL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing api key", map[string]string{"MONGODB_URI": "mongodb://x", "GOOGLE_API_KEY": ""}},
		{"missing mongodb uri", map[string]string{"MONGODB_URI": "", "GOOGLE_API_KEY": "k"}},
		{"unknown environment", map[string]string{"MONGODB_URI": "mongodb://x", "GOOGLE_API_KEY": "k", "HEATMAP_ENV": "staging"}},
		{"unknown database type", map[string]string{"MONGODB_URI": "mongodb://x", "GOOGLE_API_KEY": "k", "HEATMAP_DB_TYPE": "postgres"}},
		{"relative public base url", map[string]string{"MONGODB_URI": "mongodb://x", "GOOGLE_API_KEY": "k", "HEATMAP_PUBLIC_BASE_URL": "collector.example"}},
		{"script public base url", map[string]string{"MONGODB_URI": "mongodb://x", "GOOGLE_API_KEY": "k", "HEATMAP_PUBLIC_BASE_URL": "javascript:alert(1)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSQLiteDoesNotNeedMongoURI(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("GOOGLE_API_KEY", "k")
	t.Setenv("HEATMAP_DB_TYPE", SQLiteDatabase)

	_, err := Load()
	assert.NoError(t, err)
}

func TestGetConfigCachesUntilReset(t *testing.T) {
	setRequired(t)
	t.Setenv("HEATMAP_APP_NAME", "first")
	Reset()
	t.Cleanup(Reset)

	assert.Equal(t, "first", GetConfig().AppName)

	t.Setenv("HEATMAP_APP_NAME", "second")
	assert.Equal(t, "first", GetConfig().AppName)

	Reset()
	assert.Equal(t, "second", GetConfig().AppName)
}
