package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Store.RetentionWindow)
	assert.Equal(t, "none", cfg.Store.Archive)
	assert.Equal(t, 3, cfg.Similarity.BreakerThreshold)
	assert.Equal(t, 300, cfg.Similarity.BreakerCooldownSeconds)
	assert.Equal(t, 0.75, cfg.Classifier.DirectThreshold)
	assert.Equal(t, 0.40, cfg.Classifier.ModerateThreshold)
	assert.Equal(t, 0.30, cfg.Classifier.ClarificationThreshold)
	assert.Equal(t, 5, cfg.Classifier.RecentWindow)
	assert.Equal(t, 1000, cfg.Classifier.HistoryWindow)
	assert.Equal(t, 20, cfg.Classifier.ResumptionLookback)
	assert.Equal(t, 0.3, cfg.Retrieval.Weights.Time)
	assert.Equal(t, 0.3, cfg.Retrieval.Weights.Topic)
	assert.Equal(t, 0.3, cfg.Retrieval.Weights.Semantic)
	assert.Equal(t, 0.1, cfg.Retrieval.Weights.Relationship)
	assert.Equal(t, 10, cfg.Patterns.WindowSize)
	assert.Equal(t, 3, cfg.Patterns.MinThemeCount)
	assert.Equal(t, 1800, cfg.Patterns.CacheTTLSeconds)
	assert.Equal(t, "none", cfg.Embedding.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromBytes_ExplicitValues(t *testing.T) {
	yaml := `
store:
  retention_window: 500
  archive: sqlite
  sqlite:
    path: ./data/test.db
similarity:
  breaker_threshold: 5
  breaker_cooldown_seconds: 60
classifier:
  direct_threshold: 0.8
  moderate_threshold: 0.5
  clarification_threshold: 0.35
retrieval:
  weights:
    time: 0.4
    topic: 0.2
    semantic: 0.3
    relationship: 0.1
embedding:
  provider: mock
logging:
  level: debug
  format: json
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Store.RetentionWindow)
	assert.Equal(t, "sqlite", cfg.Store.Archive)
	assert.Equal(t, "./data/test.db", cfg.Store.SQLite.Path)
	assert.Equal(t, 5, cfg.Similarity.BreakerThreshold)
	assert.Equal(t, 60, cfg.Similarity.BreakerCooldownSeconds)
	assert.Equal(t, 0.8, cfg.Classifier.DirectThreshold)
	assert.Equal(t, 0.4, cfg.Retrieval.Weights.Time)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromBytes_InvalidArchive(t *testing.T) {
	_, err := LoadFromBytes([]byte("store:\n  archive: cassandra\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive backend")
}

func TestLoadFromBytes_PostgresRequiresDSN(t *testing.T) {
	_, err := LoadFromBytes([]byte("store:\n  archive: postgres\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestLoadFromBytes_ThresholdOrdering(t *testing.T) {
	yaml := `
classifier:
  direct_threshold: 0.3
  moderate_threshold: 0.6
`
	_, err := LoadFromBytes([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be below moderate")
}

func TestLoadFromBytes_NegativeWeight(t *testing.T) {
	yaml := `
retrieval:
  weights:
    time: -0.1
    topic: 0.5
    semantic: 0.3
    relationship: 0.3
`
	_, err := LoadFromBytes([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CONMEM_STORE_ARCHIVE", "boltdb")
	t.Setenv("CONMEM_BOLTDB_PATH", "/tmp/override.db")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromBytes([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "boltdb", cfg.Store.Archive)
	assert.Equal(t, "/tmp/override.db", cfg.Store.BoltDB.Path)
	assert.Equal(t, "sk-test", cfg.Embedding.OpenAI.APIKey)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)

	_, err = LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10000, cfg.Store.RetentionWindow)
	assert.Equal(t, 0.75, cfg.Classifier.DirectThreshold)
}
