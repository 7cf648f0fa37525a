// Package chromem provides a semantic index over interaction
// embeddings using the chromem-go embedded vector database.
package chromem

import (
	"context"
	"fmt"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
)

// Index implements the memstore.VectorIndex interface using a
// chromem-go collection. Embeddings are always supplied by the caller,
// so the collection's embedding function is never invoked.
type Index struct {
	collection *chromemgo.Collection
}

// NewIndex creates an Index backed by a collection in the given
// chromem-go database.
func NewIndex(db *chromemgo.DB, collectionName string) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("chromem db is required")
	}
	if collectionName == "" {
		collectionName = "interactions"
	}

	// Embeddings arrive precomputed; reaching this function means a
	// document was added without one.
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("no embedding provided for document")
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", collectionName, err)
	}

	log.Debug("Initialized chromem-go semantic index", "collection", collectionName)

	return &Index{collection: collection}, nil
}

// Add indexes an interaction's embedding under its id.
func (i *Index) Add(ctx context.Context, it *interaction.Interaction) error {
	if it == nil || it.ID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "indexed interaction must have an id")
	}
	if len(it.InputEmbedding) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "indexed interaction must have an embedding")
	}

	doc := chromemgo.Document{
		ID:        it.ID,
		Content:   it.Input,
		Embedding: it.InputEmbedding,
		Metadata: map[string]string{
			"session_id": string(it.SessionID),
		},
	}
	if err := i.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index interaction %s: %w", it.ID, err)
	}
	return nil
}

// Query returns the ids of the interactions whose embeddings are most
// similar to the query embedding, best match first.
func (i *Index) Query(ctx context.Context, embedding []float32, limit int) ([]string, error) {
	if len(embedding) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "query embedding must not be empty")
	}

	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	results, err := i.collection.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic query failed: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.ID)
	}
	return ids, nil
}

var _ memstore.VectorIndex = (*Index)(nil)
