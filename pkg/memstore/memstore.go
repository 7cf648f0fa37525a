// Package memstore is the durable, multi-tier record store for
// interactions. A fast in-memory tier holds the most recent retention
// window with secondary indices by time, category, topic and session;
// older records are summarized and migrated to a pluggable archive
// tier. Append is the single write path and updates the record and
// every applicable index in one atomic step.
package memstore

import (
	"context"

	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/session"
)

// Store is the read/write contract the engine requires of the memory store.
// All returned interactions are defensive copies; callers never share
// state with the store.
type Store interface {
	// Append persists one accepted turn and atomically updates every
	// applicable secondary index. It is the single write path.
	Append(ctx context.Context, it *interaction.Interaction) (string, error)

	// Get fetches one interaction by id, consulting the archive tier on
	// a fast-tier miss.
	Get(ctx context.Context, id string) (*interaction.Interaction, error)

	// QueryByTime returns up to limit interactions from the retained
	// window: newest first when fromEnd is true, oldest first otherwise.
	QueryByTime(ctx context.Context, limit int, fromEnd bool) ([]*interaction.Interaction, error)

	// QueryByCategory returns up to limit interactions classified with
	// the category, newest first.
	QueryByCategory(ctx context.Context, category interaction.Category, limit int) ([]*interaction.Interaction, error)

	// QueryByTopic returns up to limit interactions carrying the topic
	// token, newest first.
	QueryByTopic(ctx context.Context, topic string, limit int) ([]*interaction.Interaction, error)

	// QueryBySession returns the most recent limit interactions of a
	// session in chronological order.
	QueryBySession(ctx context.Context, sessionID session.ID, limit int) ([]*interaction.Interaction, error)

	// Count returns the total number of interactions written, including
	// records migrated to the archive tier.
	Count(ctx context.Context) (int, error)
}

// Archive is the slow persistent tier that receives records evicted
// from the fast tier.
type Archive interface {
	// Put persists records evicted from the fast tier.
	Put(ctx context.Context, records []*interaction.Interaction) error

	// Get fetches an archived interaction by id.
	Get(ctx context.Context, id string) (*interaction.Interaction, error)

	// Close releases backend resources.
	Close() error
}

// Summarizer compresses records before they are archived. An empty
// summary is allowed and means "keep the full record".
type Summarizer interface {
	Summarize(ctx context.Context, records []*interaction.Interaction) (string, error)
}

// VectorIndex is the optional semantic candidate index consumed by the
// retrieval orchestrator's semantic strategy.
type VectorIndex interface {
	// Add indexes an interaction that carries an input embedding.
	Add(ctx context.Context, it *interaction.Interaction) error

	// Query returns up to limit interaction ids ranked by similarity to
	// the query embedding.
	Query(ctx context.Context, embedding []float32, limit int) ([]string, error)
}
