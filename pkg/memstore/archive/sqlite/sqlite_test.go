package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	archive := NewSQLiteArchive(db)
	require.NoError(t, archive.Initialize(context.Background()))
	return archive
}

func TestSQLiteArchive_PutAndGet(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	record := &interaction.Interaction{
		ID:        "rec-1",
		SessionID: "s1",
		UserID:    "user-1",
		Input:     "archived conversation turn",
		Response:  "noted",
		CreatedAt: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC),
		Topics:    []string{"archived", "conversation"},
	}

	require.NoError(t, archive.Put(ctx, []*interaction.Interaction{record}))

	got, err := archive.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, record.Input, got.Input)
	assert.Equal(t, record.Response, got.Response)
	assert.Equal(t, record.Topics, got.Topics)
}

func TestSQLiteArchive_PutUpserts(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	record := &interaction.Interaction{
		ID:        "rec-1",
		SessionID: "s1",
		Input:     "original text",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, archive.Put(ctx, []*interaction.Interaction{record}))

	record.Summary = "compressed form"
	require.NoError(t, archive.Put(ctx, []*interaction.Interaction{record}))

	got, err := archive.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "compressed form", got.Summary)
}

func TestSQLiteArchive_GetNotFound(t *testing.T) {
	archive := newTestArchive(t)

	_, err := archive.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSQLiteArchive_PutRequiresID(t *testing.T) {
	archive := newTestArchive(t)

	err := archive.Put(context.Background(), []*interaction.Interaction{
		{SessionID: "s1", Input: "no id"},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
