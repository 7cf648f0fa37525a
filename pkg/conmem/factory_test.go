package conmem

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/telltail/conmem/pkg/config"
)

func TestNewConMemFromParsedConfig_CloseReleasesBoltArchive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive.bolt.db")

	cfg := config.DefaultConfig()
	cfg.Store.Archive = "boltdb"
	cfg.Store.BoltDB.Path = dbPath
	cfg.Embedding.Provider = "none"

	client, err := NewConMemFromParsedConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// Bolt holds an exclusive file lock while open. Reopening succeeds
	// only if Close released it.
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
