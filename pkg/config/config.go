package config

// Config represents the top-level configuration for the ConMem library.
type Config struct {
	// Store configures the memory store tiers
	Store StoreConfig `yaml:"store"`

	// Similarity configures the dual-strategy similarity engine
	Similarity SimilarityConfig `yaml:"similarity"`

	// Classifier configures the relationship classifier
	Classifier ClassifierConfig `yaml:"classifier"`

	// Retrieval configures the retrieval orchestrator
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Patterns configures the pattern detector
	Patterns PatternConfig `yaml:"patterns"`

	// Embedding configures the embedding provider
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Scripting configures the Lua hook engine
	Scripting ScriptingConfig `yaml:"scripting"`

	// Logging configures the logging behavior
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the memory store.
type StoreConfig struct {
	// RetentionWindow is how many recent interactions the fast tier keeps
	RetentionWindow int `yaml:"retention_window"`

	// Archive selects the slow-tier backend ("none", "boltdb", "sqlite", "postgres")
	Archive string `yaml:"archive"`

	// BoltDB configures the BoltDB archive backend
	BoltDB BoltDBConfig `yaml:"boltdb"`

	// SQLite configures the SQLite archive backend
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres configures the PostgreSQL archive backend
	Postgres PostgresConfig `yaml:"postgres"`

	// Vector configures the semantic candidate index
	Vector VectorConfig `yaml:"vector"`

	// SummarizeOnEvict summarizes records before archiving them
	SummarizeOnEvict bool `yaml:"summarize_on_evict"`

	// ConsistencyIntervalSeconds is how often the index consistency
	// checker runs; negative disables it
	ConsistencyIntervalSeconds int `yaml:"consistency_interval_seconds"`
}

// BoltDBConfig configures the BoltDB archive.
type BoltDBConfig struct {
	// Path is the database file path
	Path string `yaml:"path"`
}

// SQLiteConfig configures the SQLite archive.
type SQLiteConfig struct {
	// Path is the database file path
	Path string `yaml:"path"`
}

// PostgresConfig configures the PostgreSQL archive.
type PostgresConfig struct {
	// DSN is the connection string
	DSN string `yaml:"dsn"`
}

// VectorConfig configures the chromem-go semantic index.
type VectorConfig struct {
	// Enabled turns the semantic retrieval strategy on
	Enabled bool `yaml:"enabled"`

	// Collection is the collection name to use
	Collection string `yaml:"collection"`

	// StoragePath is the path for on-disk persistence (empty means in-memory)
	StoragePath string `yaml:"storage_path"`
}

// SimilarityConfig configures the similarity engine.
type SimilarityConfig struct {
	// BreakerThreshold is the consecutive-failure count that opens the breaker
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerCooldownSeconds is how long the breaker stays open
	BreakerCooldownSeconds int `yaml:"breaker_cooldown_seconds"`

	// CacheSize bounds the embedding cache
	CacheSize int `yaml:"cache_size"`

	// ProviderTimeoutSeconds bounds a single embedding call
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds"`
}

// ClassifierConfig configures the relationship classifier.
type ClassifierConfig struct {
	// DirectThreshold triggers direct continuation (default 0.75)
	DirectThreshold float64 `yaml:"direct_threshold"`

	// ModerateThreshold is the lower bound for moderate relatedness (default 0.40)
	ModerateThreshold float64 `yaml:"moderate_threshold"`

	// ClarificationThreshold gates the clarification category (default 0.30)
	ClarificationThreshold float64 `yaml:"clarification_threshold"`

	// ResumptionThreshold gates resumption matching (default 0.40)
	ResumptionThreshold float64 `yaml:"resumption_threshold"`

	// RecentWindow is how many recent turns the classifier inspects
	RecentWindow int `yaml:"recent_window"`

	// HistoryWindow is the larger turn window available to the classifier
	HistoryWindow int `yaml:"history_window"`

	// ResumptionLookback is how far into history resumption targets are sought
	ResumptionLookback int `yaml:"resumption_lookback"`

	// ResumptionCues overrides the resumption cue vocabulary
	ResumptionCues []string `yaml:"resumption_cues"`

	// ClarificationCues overrides the clarification cue vocabulary
	ClarificationCues []string `yaml:"clarification_cues"`

	// NegationCues overrides the contradiction cue vocabulary
	NegationCues []string `yaml:"negation_cues"`
}

// RetrievalConfig configures the retrieval orchestrator.
type RetrievalConfig struct {
	// Weights are the per-strategy fusion weights
	Weights WeightsConfig `yaml:"weights"`

	// DefaultLimit is the result count when callers pass none
	DefaultLimit int `yaml:"default_limit"`
}

// WeightsConfig holds the fusion weights for the four strategies.
type WeightsConfig struct {
	Time         float64 `yaml:"time"`
	Topic        float64 `yaml:"topic"`
	Semantic     float64 `yaml:"semantic"`
	Relationship float64 `yaml:"relationship"`
}

// PatternConfig configures the pattern detector.
type PatternConfig struct {
	// WindowSize is how many recent turns feed pattern mining
	WindowSize int `yaml:"window_size"`

	// MinThemeCount is the occurrence floor for a recurring theme
	MinThemeCount int `yaml:"min_theme_count"`

	// MaxThemes caps the reported theme list
	MaxThemes int `yaml:"max_themes"`

	// CacheTTLSeconds is the pattern cache expiry
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the backend ("openai", "mock", "none")
	Provider string `yaml:"provider"`

	// OpenAI configures the OpenAI provider
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures OpenAI integration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the embedding model to use
	Model string `yaml:"model"`

	// SummaryModel is the chat model used by the retention summarizer
	SummaryModel string `yaml:"summary_model"`
}

// ScriptingConfig configures the Lua hook engine.
type ScriptingConfig struct {
	// Enabled turns hook execution on
	Enabled bool `yaml:"enabled"`

	// Paths is a list of directories containing Lua scripts
	Paths []string `yaml:"paths"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error")
	Level string `yaml:"level"`

	// Format is the output format ("text", "json")
	Format string `yaml:"format"`
}

// DefaultConfig returns a fully defaulted configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
