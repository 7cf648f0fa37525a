package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from a byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvironmentOverrides(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) {
	// Archive backend override
	if backend := os.Getenv("CONMEM_STORE_ARCHIVE"); backend != "" {
		config.Store.Archive = backend
	}

	// PostgreSQL DSN override
	if dsn := os.Getenv("CONMEM_POSTGRES_DSN"); dsn != "" {
		config.Store.Postgres.DSN = dsn
	} else if dsn := os.Getenv("POSTGRES_URL"); dsn != "" && config.Store.Postgres.DSN == "" {
		config.Store.Postgres.DSN = dsn
	}

	// BoltDB path override
	if path := os.Getenv("CONMEM_BOLTDB_PATH"); path != "" {
		config.Store.BoltDB.Path = path
	}

	// SQLite path override
	if path := os.Getenv("CONMEM_SQLITE_PATH"); path != "" {
		config.Store.SQLite.Path = path
	}

	// OpenAI API key override
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.OpenAI.APIKey = apiKey
	}
}

// applyDefaults fills zero values with the documented defaults.
func applyDefaults(config *Config) {
	if config.Store.RetentionWindow <= 0 {
		config.Store.RetentionWindow = 10000
	}
	if config.Store.Archive == "" {
		config.Store.Archive = "none"
	}
	if config.Store.Vector.Collection == "" {
		config.Store.Vector.Collection = "interactions"
	}
	if config.Store.ConsistencyIntervalSeconds == 0 {
		config.Store.ConsistencyIntervalSeconds = 300
	}

	if config.Similarity.BreakerThreshold <= 0 {
		config.Similarity.BreakerThreshold = 3
	}
	if config.Similarity.BreakerCooldownSeconds <= 0 {
		config.Similarity.BreakerCooldownSeconds = 300
	}
	if config.Similarity.CacheSize <= 0 {
		config.Similarity.CacheSize = 1024
	}
	if config.Similarity.ProviderTimeoutSeconds <= 0 {
		config.Similarity.ProviderTimeoutSeconds = 10
	}

	if config.Classifier.DirectThreshold <= 0 {
		config.Classifier.DirectThreshold = 0.75
	}
	if config.Classifier.ModerateThreshold <= 0 {
		config.Classifier.ModerateThreshold = 0.40
	}
	if config.Classifier.ClarificationThreshold <= 0 {
		config.Classifier.ClarificationThreshold = 0.30
	}
	if config.Classifier.ResumptionThreshold <= 0 {
		config.Classifier.ResumptionThreshold = 0.40
	}
	if config.Classifier.RecentWindow <= 0 {
		config.Classifier.RecentWindow = 5
	}
	if config.Classifier.HistoryWindow <= 0 {
		config.Classifier.HistoryWindow = 1000
	}
	if config.Classifier.ResumptionLookback <= 0 {
		config.Classifier.ResumptionLookback = 20
	}

	if config.Retrieval.DefaultLimit <= 0 {
		config.Retrieval.DefaultLimit = 10
	}
	weights := &config.Retrieval.Weights
	if weights.Time == 0 && weights.Topic == 0 && weights.Semantic == 0 && weights.Relationship == 0 {
		weights.Time = 0.3
		weights.Topic = 0.3
		weights.Semantic = 0.3
		weights.Relationship = 0.1
	}

	if config.Patterns.WindowSize <= 0 {
		config.Patterns.WindowSize = 10
	}
	if config.Patterns.MinThemeCount <= 0 {
		config.Patterns.MinThemeCount = 3
	}
	if config.Patterns.MaxThemes <= 0 {
		config.Patterns.MaxThemes = 10
	}
	if config.Patterns.CacheTTLSeconds <= 0 {
		config.Patterns.CacheTTLSeconds = 1800
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "none"
	}
	if config.Embedding.OpenAI.Model == "" {
		config.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if config.Embedding.OpenAI.SummaryModel == "" {
		config.Embedding.OpenAI.SummaryModel = "gpt-4o-mini"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

// validateConfig validates the configuration, applying defaults first.
func validateConfig(config *Config) error {
	applyDefaults(config)

	switch strings.ToLower(config.Store.Archive) {
	case "none", "memory":
	case "boltdb":
		// Path defaults at store construction time
	case "sqlite":
		// Path defaults at store construction time
	case "postgres":
		if config.Store.Postgres.DSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres archive")
		}
	default:
		return fmt.Errorf("unsupported archive backend: %s", config.Store.Archive)
	}

	switch strings.ToLower(config.Embedding.Provider) {
	case "none", "mock":
	case "openai":
		// API key may arrive via environment variable; checked at adapter construction
	default:
		return fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}

	// Threshold ordering: direct >= moderate >= clarification.
	c := config.Classifier
	if c.DirectThreshold < c.ModerateThreshold {
		return fmt.Errorf("direct threshold (%.2f) must not be below moderate threshold (%.2f)",
			c.DirectThreshold, c.ModerateThreshold)
	}
	if c.ModerateThreshold < c.ClarificationThreshold {
		return fmt.Errorf("moderate threshold (%.2f) must not be below clarification threshold (%.2f)",
			c.ModerateThreshold, c.ClarificationThreshold)
	}
	for name, v := range map[string]float64{
		"direct":        c.DirectThreshold,
		"moderate":      c.ModerateThreshold,
		"clarification": c.ClarificationThreshold,
		"resumption":    c.ResumptionThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s threshold must be in [0,1], got %.2f", name, v)
		}
	}

	w := config.Retrieval.Weights
	for name, v := range map[string]float64{
		"time": w.Time, "topic": w.Topic, "semantic": w.Semantic, "relationship": w.Relationship,
	} {
		if v < 0 {
			return fmt.Errorf("%s fusion weight must not be negative, got %.2f", name, v)
		}
	}

	return nil
}
