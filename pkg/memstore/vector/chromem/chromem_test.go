package chromem

import (
	"context"
	"testing"

	chromemgo "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	index, err := NewIndex(chromemgo.NewDB(), "test-interactions")
	require.NoError(t, err)
	return index
}

func indexed(id string, embedding []float32) *interaction.Interaction {
	return &interaction.Interaction{
		ID:             id,
		SessionID:      "s1",
		Input:          "indexed content " + id,
		InputEmbedding: embedding,
	}
}

func TestIndex_AddAndQuery(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Add(ctx, indexed("a", []float32{1, 0, 0})))
	require.NoError(t, index.Add(ctx, indexed("b", []float32{0, 1, 0})))
	require.NoError(t, index.Add(ctx, indexed("c", []float32{0.9, 0.1, 0})))

	ids, err := index.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "a", ids[0], "closest vector first")
	assert.Equal(t, "c", ids[1])
}

func TestIndex_QueryEmptyIndex(t *testing.T) {
	index := newTestIndex(t)

	ids, err := index.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndex_QueryLimitClampedToCount(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Add(ctx, indexed("a", []float32{1, 0, 0})))

	ids, err := index.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestIndex_AddValidation(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	err := index.Add(ctx, &interaction.Interaction{SessionID: "s1", Input: "no id"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	err = index.Add(ctx, &interaction.Interaction{ID: "x", SessionID: "s1", Input: "no embedding"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
