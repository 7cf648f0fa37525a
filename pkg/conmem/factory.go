package conmem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	chromemgo "github.com/philippgille/chromem-go"
	bolt "go.etcd.io/bbolt"

	"github.com/telltail/conmem/pkg/classify"
	"github.com/telltail/conmem/pkg/config"
	"github.com/telltail/conmem/pkg/embed"
	embedMock "github.com/telltail/conmem/pkg/embed/adapters/mock"
	embedOpenAI "github.com/telltail/conmem/pkg/embed/adapters/openai"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
	archiveBolt "github.com/telltail/conmem/pkg/memstore/archive/boltdb"
	archivePostgres "github.com/telltail/conmem/pkg/memstore/archive/postgres"
	archiveSQLite "github.com/telltail/conmem/pkg/memstore/archive/sqlite"
	"github.com/telltail/conmem/pkg/memstore/vector/chromem"
	"github.com/telltail/conmem/pkg/pattern"
	"github.com/telltail/conmem/pkg/retrieval"
	"github.com/telltail/conmem/pkg/scripting"
	"github.com/telltail/conmem/pkg/similarity"
	"github.com/telltail/conmem/pkg/summarize"
)

// NewConMemFromConfig creates a new client using the provided
// configuration file. This is a convenience function that handles all
// component initialization.
func NewConMemFromConfig(configPath string) (*ConMemClientImpl, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewConMemFromParsedConfig(cfg)
}

// NewConMemFromParsedConfig creates a new client from an already
// loaded configuration.
func NewConMemFromParsedConfig(cfg *config.Config) (*ConMemClientImpl, error) {
	log.Setup(log.Config{
		Level:  log.Level(cfg.Logging.Level),
		Format: log.Format(cfg.Logging.Format),
	})

	provider, err := initEmbedProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	engine := similarity.NewEngine(provider, similarity.Config{
		FailureThreshold: cfg.Similarity.BreakerThreshold,
		Cooldown:         time.Duration(cfg.Similarity.BreakerCooldownSeconds) * time.Second,
		CacheSize:        cfg.Similarity.CacheSize,
		ProviderTimeout:  time.Duration(cfg.Similarity.ProviderTimeoutSeconds) * time.Second,
	})

	archive, err := initArchive(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive tier: %w", err)
	}

	summarizer, err := initSummarizer(cfg)
	if err != nil {
		if archive != nil {
			archive.Close()
		}
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	// The store owns the archive handle from here on; later init
	// failures release it through store.Close.
	store := memstore.NewTieredStore(memstore.Config{
		RetentionWindow:     cfg.Store.RetentionWindow,
		SummarizeOnEvict:    cfg.Store.SummarizeOnEvict,
		ConsistencyInterval: time.Duration(cfg.Store.ConsistencyIntervalSeconds) * time.Second,
	}, archive, summarizer)

	index, err := initVectorIndex(cfg, provider)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize semantic index: %w", err)
	}

	scriptEngine, err := initScriptEngine(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize scripting engine: %w", err)
	}

	classifier := classify.NewClassifier(classify.Config{
		DirectThreshold:        cfg.Classifier.DirectThreshold,
		ModerateThreshold:      cfg.Classifier.ModerateThreshold,
		ClarificationThreshold: cfg.Classifier.ClarificationThreshold,
		ResumptionThreshold:    cfg.Classifier.ResumptionThreshold,
		ResumptionCues:         cfg.Classifier.ResumptionCues,
		ClarificationCues:      cfg.Classifier.ClarificationCues,
		NegationCues:           cfg.Classifier.NegationCues,
	}, engine)

	detector := pattern.NewDetector(pattern.Config{
		WindowSize:    cfg.Patterns.WindowSize,
		MinThemeCount: cfg.Patterns.MinThemeCount,
		MaxThemes:     cfg.Patterns.MaxThemes,
		CacheTTL:      time.Duration(cfg.Patterns.CacheTTLSeconds) * time.Second,
	})

	orchestrator := retrieval.NewOrchestrator(store, engine, index)

	client := NewConMem(store, classifier, detector, orchestrator, engine, index, scriptEngine, Config{
		RecentWindow:       cfg.Classifier.RecentWindow,
		HistoryWindow:      cfg.Classifier.HistoryWindow,
		ResumptionLookback: cfg.Classifier.ResumptionLookback,
		RetrievalLimit:     cfg.Retrieval.DefaultLimit,
		Weights: retrieval.Weights{
			Recency:      cfg.Retrieval.Weights.Time,
			Topic:        cfg.Retrieval.Weights.Topic,
			Semantic:     cfg.Retrieval.Weights.Semantic,
			Relationship: cfg.Retrieval.Weights.Relationship,
		},
	})

	log.Info("ConMem client initialized from config",
		"archive", cfg.Store.Archive,
		"embedding_provider", cfg.Embedding.Provider,
		"semantic_index", cfg.Store.Vector.Enabled,
		"scripting", cfg.Scripting.Enabled,
	)

	return client, nil
}

// initEmbedProvider initializes the embedding provider, or returns nil
// for lexical-only operation.
func initEmbedProvider(cfg *config.Config) (embed.Provider, error) {
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "none", "":
		log.Info("No embedding provider configured, similarity is lexical-only")
		return nil, nil

	case "mock":
		return embedMock.NewProvider(), nil

	case "openai":
		apiKey := cfg.Embedding.OpenAI.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key not provided")
		}
		return embedOpenAI.NewAdapter(embedOpenAI.Config{
			APIKey: apiKey,
			Model:  cfg.Embedding.OpenAI.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// initArchive initializes the slow archive tier based on configuration.
func initArchive(cfg *config.Config) (memstore.Archive, error) {
	switch strings.ToLower(cfg.Store.Archive) {
	case "none", "":
		return nil, nil

	case "boltdb":
		dbPath := cfg.Store.BoltDB.Path
		if dbPath == "" {
			dbPath = "./data/conmem.bolt.db"
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for BoltDB archive: %w", err)
		}
		db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open BoltDB archive: %w", err)
		}
		archive := archiveBolt.NewBoltArchive(db)
		if err := archive.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return archive, nil

	case "sqlite":
		dbPath := cfg.Store.SQLite.Path
		if dbPath == "" {
			dbPath = "./data/conmem.db"
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for SQLite archive: %w", err)
		}
		db, err := sqlx.Open("sqlite3", dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite archive: %w", err)
		}
		archive := archiveSQLite.NewSQLiteArchive(db)
		if err := archive.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return archive, nil

	case "postgres":
		dsn := cfg.Store.Postgres.DSN
		if dsn == "" {
			dsn = os.Getenv("POSTGRES_URL")
			if dsn == "" {
				return nil, fmt.Errorf("PostgreSQL connection string not provided")
			}
		}
		if err := archivePostgres.Migrate(dsn); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
		}
		return archivePostgres.NewPostgresArchive(pool), nil

	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Store.Archive)
	}
}

// initSummarizer initializes the retention summarizer when summarized
// eviction is enabled.
func initSummarizer(cfg *config.Config) (memstore.Summarizer, error) {
	if !cfg.Store.SummarizeOnEvict {
		return nil, nil
	}

	apiKey := cfg.Embedding.OpenAI.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		log.Warn("Summarized eviction enabled without an API key, archiving full records")
		return summarize.Noop{}, nil
	}

	return summarize.NewOpenAISummarizer(summarize.Config{
		APIKey: apiKey,
		Model:  cfg.Embedding.OpenAI.SummaryModel,
	})
}

// initVectorIndex initializes the chromem-go semantic index. Without an
// embedding provider the semantic strategy cannot produce query
// vectors, so the index is skipped.
func initVectorIndex(cfg *config.Config, provider embed.Provider) (memstore.VectorIndex, error) {
	if !cfg.Store.Vector.Enabled {
		return nil, nil
	}
	if provider == nil {
		log.Warn("Semantic index enabled without an embedding provider, skipping")
		return nil, nil
	}

	var (
		db  *chromemgo.DB
		err error
	)
	if cfg.Store.Vector.StoragePath != "" {
		db, err = chromemgo.NewPersistentDB(cfg.Store.Vector.StoragePath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent chromem db: %w", err)
		}
	} else {
		db = chromemgo.NewDB()
	}

	return chromem.NewIndex(db, cfg.Store.Vector.Collection)
}

// initScriptEngine initializes the Lua hook engine and loads the
// configured script directories.
func initScriptEngine(cfg *config.Config) (scripting.Engine, error) {
	if !cfg.Scripting.Enabled {
		return nil, nil
	}

	engine, err := scripting.NewLuaEngine(scripting.DefaultConfig())
	if err != nil {
		return nil, err
	}
	for _, dir := range cfg.Scripting.Paths {
		if err := engine.LoadScriptDir(dir); err != nil {
			engine.Close()
			return nil, err
		}
	}
	return engine, nil
}
