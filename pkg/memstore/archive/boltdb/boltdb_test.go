package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
)

func newTestArchive(t *testing.T) *BoltArchive {
	t.Helper()

	path := filepath.Join(t.TempDir(), "archive.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	archive := NewBoltArchive(db)
	require.NoError(t, archive.Initialize(context.Background()))
	return archive
}

func TestBoltArchive_PutAndGet(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	records := []*interaction.Interaction{
		{
			ID:        "rec-1",
			SessionID: "s1",
			Input:     "first archived message",
			CreatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
			Topics:    []string{"archived", "message"},
		},
		{
			ID:        "rec-2",
			SessionID: "s1",
			Input:     "second archived message",
			CreatedAt: time.Date(2026, 1, 2, 10, 1, 0, 0, time.UTC),
		},
	}

	require.NoError(t, archive.Put(ctx, records))

	got, err := archive.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "first archived message", got.Input)
	assert.Equal(t, []string{"archived", "message"}, got.Topics)
	assert.True(t, got.CreatedAt.Equal(records[0].CreatedAt))
}

func TestBoltArchive_GetNotFound(t *testing.T) {
	archive := newTestArchive(t)

	_, err := archive.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestBoltArchive_PutRequiresID(t *testing.T) {
	archive := newTestArchive(t)

	err := archive.Put(context.Background(), []*interaction.Interaction{
		{SessionID: "s1", Input: "no id"},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestBoltArchive_PutEmptyBatch(t *testing.T) {
	archive := newTestArchive(t)
	assert.NoError(t, archive.Put(context.Background(), nil))
}
