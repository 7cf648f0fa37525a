package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/session"
)

// fakeArchive records everything put into it.
type fakeArchive struct {
	mu      sync.Mutex
	records map[string]*interaction.Interaction
	puts    int
	failPut bool
	closed  bool
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{records: make(map[string]*interaction.Interaction)}
}

func (a *fakeArchive) Put(ctx context.Context, records []*interaction.Interaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failPut {
		return assert.AnError
	}
	a.puts++
	for _, record := range records {
		a.records[record.ID] = record
	}
	return nil
}

func (a *fakeArchive) Get(ctx context.Context, id string) (*interaction.Interaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if record, ok := a.records[id]; ok {
		return record.Clone(), nil
	}
	return nil, errors.ErrNotFound
}

func (a *fakeArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeArchive) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *fakeArchive) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func newTestInteraction(sessionID, input string) *interaction.Interaction {
	return &interaction.Interaction{
		SessionID: session.ID(sessionID),
		UserID:    "user-1",
		Input:     input,
		Response:  "ok",
	}
}

func TestTieredStore_AppendAndGet(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	id, err := store.Append(ctx, newTestInteraction("s1", "discuss satellite internet pricing"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "discuss satellite internet pricing", got.Input)
	assert.NotEmpty(t, got.Topics, "topics should be extracted on append")
	assert.False(t, got.CreatedAt.IsZero())

	// Returned records are clones and must not alias store state.
	got.Input = "mutated"
	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "discuss satellite internet pricing", again.Input)
}

func TestTieredStore_AppendValidation(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	_, err := store.Append(ctx, newTestInteraction("s1", "   "))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = store.Append(ctx, newTestInteraction("", "hello"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = store.Append(ctx, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestTieredStore_CancelledContextWritesNothing(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, newTestInteraction("s1", "hello there"))
	require.Error(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTieredStore_GetNotFound(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestTieredStore_QueryByTime(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	var ids []string
	for _, input := range []string{"first message", "second message", "third message"} {
		id, err := store.Append(ctx, newTestInteraction("s1", input))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	newest, err := store.QueryByTime(ctx, 2, true)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, ids[2], newest[0].ID)
	assert.Equal(t, ids[1], newest[1].ID)

	oldest, err := store.QueryByTime(ctx, 2, false)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, ids[0], oldest[0].ID)
	assert.Equal(t, ids[1], oldest[1].ID)

	// The most recent append is always the head of the newest-first view.
	latest, err := store.QueryByTime(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, ids[2], latest[0].ID)
}

func TestTieredStore_QueryByCategory(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	contradiction := newTestInteraction("s1", "actually that price was wrong")
	contradiction.Relationship = &interaction.RelationshipResult{Category: interaction.Contradiction, Confidence: 0.8}
	id1, err := store.Append(ctx, contradiction)
	require.NoError(t, err)

	shift := newTestInteraction("s1", "completely different topic now")
	shift.Relationship = &interaction.RelationshipResult{Category: interaction.TopicShift, Confidence: 0.5}
	_, err = store.Append(ctx, shift)
	require.NoError(t, err)

	results, err := store.QueryByCategory(ctx, interaction.Contradiction, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id1, results[0].ID)

	empty, err := store.QueryByCategory(ctx, interaction.Resumption, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTieredStore_QueryByTopic(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	first, err := store.Append(ctx, newTestInteraction("s1", "starlink pricing details"))
	require.NoError(t, err)
	second, err := store.Append(ctx, newTestInteraction("s1", "starlink coverage maps"))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTestInteraction("s1", "weather forecast tomorrow"))
	require.NoError(t, err)

	results, err := store.QueryByTopic(ctx, "Starlink", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, second, results[0].ID, "newest match first")
	assert.Equal(t, first, results[1].ID)
}

func TestTieredStore_QueryBySession(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	var ids []string
	for _, input := range []string{"alpha message", "bravo message", "charlie message"} {
		id, err := store.Append(ctx, newTestInteraction("s1", input))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := store.Append(ctx, newTestInteraction("s2", "other session message"))
	require.NoError(t, err)

	results, err := store.QueryBySession(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Last two in chronological order.
	assert.Equal(t, ids[1], results[0].ID)
	assert.Equal(t, ids[2], results[1].ID)
	assert.Equal(t, 1, results[0].Ordinal)
	assert.Equal(t, 2, results[1].Ordinal)
}

func TestTieredStore_MonotonicTimestamps(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	store.now = func() time.Time { return clock }

	id1, err := store.Append(ctx, newTestInteraction("s1", "first message"))
	require.NoError(t, err)

	// Clock regression must not produce an out-of-order timestamp.
	clock = base.Add(-time.Minute)
	id2, err := store.Append(ctx, newTestInteraction("s1", "second message"))
	require.NoError(t, err)

	first, err := store.Get(ctx, id1)
	require.NoError(t, err)
	second, err := store.Get(ctx, id2)
	require.NoError(t, err)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
}

func TestTieredStore_RetentionEvictsToArchive(t *testing.T) {
	archive := newFakeArchive()
	store := NewTieredStore(Config{RetentionWindow: 3}, archive, nil)
	ctx := context.Background()

	var ids []string
	for _, input := range []string{"one message", "two message", "three message", "four message", "five message"} {
		id, err := store.Append(ctx, newTestInteraction("s1", input))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, 3, store.RetainedCount())
	assert.Equal(t, 2, archive.len())

	// Count spans both tiers.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Evicted records remain reachable through Get.
	got, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "one message", got.Input)

	// Evicted records no longer appear in fast-tier queries.
	recent, err := store.QueryByTime(ctx, 0, true)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[4], recent[0].ID)
}

func TestTieredStore_ArchiveFailureDoesNotFailAppend(t *testing.T) {
	archive := newFakeArchive()
	archive.failPut = true
	store := NewTieredStore(Config{RetentionWindow: 1}, archive, nil)
	ctx := context.Background()

	_, err := store.Append(ctx, newTestInteraction("s1", "first message"))
	require.NoError(t, err)
	_, err = store.Append(ctx, newTestInteraction("s1", "second message"))
	require.NoError(t, err)

	assert.Equal(t, 1, store.RetainedCount())
}

func TestTieredStore_ConsistencyCheckClean(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	for _, input := range []string{"first message", "second message"} {
		it := newTestInteraction("s1", input)
		it.Relationship = &interaction.RelationshipResult{Category: interaction.DirectContinuation, Confidence: 0.9}
		_, err := store.Append(ctx, it)
		require.NoError(t, err)
	}

	problems, err := store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestTieredStore_RebuildRepairsIndices(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	ctx := context.Background()

	it := newTestInteraction("s1", "starlink pricing details")
	it.Relationship = &interaction.RelationshipResult{Category: interaction.ModerateRelatedness, Confidence: 0.6}
	id, err := store.Append(ctx, it)
	require.NoError(t, err)

	// Corrupt the topic index behind the store's back.
	store.mu.Lock()
	store.byTopic = make(map[string][]string)
	store.mu.Unlock()

	problems, err := store.CheckConsistency(ctx)
	assert.ErrorIs(t, err, errors.ErrIndexInconsistent)
	assert.NotEmpty(t, problems)

	require.NoError(t, store.RebuildIndexes(ctx))

	problems, err = store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	results, err := store.QueryByTopic(ctx, "starlink", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestTieredStore_ConsistencyPassRepairsCorruption(t *testing.T) {
	store := NewTieredStore(DefaultConfig(), nil, nil)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Append(ctx, newTestInteraction("s1", "starlink coverage map"))
	require.NoError(t, err)

	// Corrupt the topic index behind the store's back.
	store.mu.Lock()
	store.byTopic = make(map[string][]string)
	store.mu.Unlock()

	_, err = store.CheckConsistency(ctx)
	require.ErrorIs(t, err, errors.ErrIndexInconsistent)

	// One pass of the background checker detects and repairs it.
	store.runConsistencyPass(ctx)

	problems, err := store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestTieredStore_CloseReleasesArchive(t *testing.T) {
	archive := newFakeArchive()
	store := NewTieredStore(DefaultConfig(), archive, nil)

	require.NoError(t, store.Close())
	assert.True(t, archive.isClosed())

	// Close is idempotent.
	require.NoError(t, store.Close())
}
