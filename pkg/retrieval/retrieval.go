// Package retrieval ranks prior interactions for a new turn by fusing
// up to four independent retrieval strategies: recency, topic overlap,
// semantic similarity and relationship-graph links. Strategies run
// concurrently and each produces its own ranked candidate list; a
// strategy whose prerequisite is unavailable is omitted rather than
// treated as an error.
package retrieval

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
	"github.com/telltail/conmem/pkg/similarity"
)

// Weights are the per-strategy fusion weights.
type Weights struct {
	Recency      float64
	Topic        float64
	Semantic     float64
	Relationship float64
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Recency:      0.3,
		Topic:        0.3,
		Semantic:     0.3,
		Relationship: 0.1,
	}
}

// Query describes one retrieval request. SeedIDs are interaction ids
// already linked to the new turn (resumption target, related ids);
// they feed the relationship-graph strategy.
type Query struct {
	Text    string
	SeedIDs []string
	Limit   int
	Weights Weights
}

// Orchestrator fans the strategies out and fuses their rankings.
type Orchestrator struct {
	store  memstore.Store
	engine *similarity.Engine
	index  memstore.VectorIndex
}

// NewOrchestrator creates an orchestrator. engine and index may be
// nil; without them the semantic strategy is omitted.
func NewOrchestrator(store memstore.Store, engine *similarity.Engine, index memstore.VectorIndex) *Orchestrator {
	return &Orchestrator{
		store:  store,
		engine: engine,
		index:  index,
	}
}

// Retrieve runs every applicable strategy concurrently and returns the
// fused ranking, best first, truncated to the query limit.
func (o *Orchestrator) Retrieve(ctx context.Context, query Query) ([]*interaction.Interaction, error) {
	if query.Text == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "retrieval query text must not be empty")
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	var (
		mu    sync.Mutex
		lists []rankedList
	)
	add := func(name string, weight float64, records []*interaction.Interaction) {
		if weight <= 0 || len(records) == 0 {
			return
		}
		mu.Lock()
		lists = append(lists, rankedList{name: name, weight: weight, records: records})
		mu.Unlock()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		records, err := o.store.QueryByTime(groupCtx, query.Limit, true)
		if err != nil {
			return errors.Wrap(err, "recency strategy failed")
		}
		add("recency", query.Weights.Recency, records)
		return nil
	})

	group.Go(func() error {
		records, err := o.byTopic(groupCtx, query)
		if err != nil {
			return errors.Wrap(err, "topic strategy failed")
		}
		add("topic", query.Weights.Topic, records)
		return nil
	})

	group.Go(func() error {
		records, err := o.bySemantic(groupCtx, query)
		if err != nil {
			return errors.Wrap(err, "semantic strategy failed")
		}
		add("semantic", query.Weights.Semantic, records)
		return nil
	})

	group.Go(func() error {
		records, err := o.byRelationship(groupCtx, query)
		if err != nil {
			return errors.Wrap(err, "relationship strategy failed")
		}
		add("relationship", query.Weights.Relationship, records)
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(lists, query.Limit)
	log.DebugContext(ctx, "Fused retrieval complete",
		"strategies", len(lists),
		"results", len(fused),
	)
	return fused, nil
}

// byTopic ranks candidates by how many of the query's topic tokens they
// carry, breaking ties by recency.
func (o *Orchestrator) byTopic(ctx context.Context, query Query) ([]*interaction.Interaction, error) {
	topics := interaction.ExtractTopics(query.Text, 0)
	if len(topics) == 0 {
		return nil, nil
	}

	matches := make(map[string]int)
	records := make(map[string]*interaction.Interaction)
	var order []string
	for _, topic := range topics {
		found, err := o.store.QueryByTopic(ctx, topic, query.Limit)
		if err != nil {
			return nil, err
		}
		for _, record := range found {
			if matches[record.ID] == 0 {
				order = append(order, record.ID)
				records[record.ID] = record
			}
			matches[record.ID]++
		}
	}

	// Stable sort on the first-seen order keeps recency as tie-break,
	// since each topic list arrives newest first.
	sortByCountDesc(order, matches)

	results := make([]*interaction.Interaction, 0, len(order))
	for _, id := range order {
		results = append(results, records[id])
		if len(results) == query.Limit {
			break
		}
	}
	return results, nil
}

// bySemantic queries the vector index with the query text's embedding.
// Omitted when no engine, no index, or no embedding is available.
func (o *Orchestrator) bySemantic(ctx context.Context, query Query) ([]*interaction.Interaction, error) {
	if o.engine == nil || o.index == nil {
		return nil, nil
	}
	embedding, ok := o.engine.Embedding(ctx, query.Text)
	if !ok {
		return nil, nil
	}

	ids, err := o.index.Query(ctx, embedding, query.Limit)
	if err != nil {
		log.WarnContext(ctx, "Semantic index query failed, omitting strategy", "error", err)
		return nil, nil
	}

	results := make([]*interaction.Interaction, 0, len(ids))
	for _, id := range ids {
		record, err := o.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		results = append(results, record)
	}
	return results, nil
}

// byRelationship walks resumption and related-id links out from the
// query's seed interactions.
func (o *Orchestrator) byRelationship(ctx context.Context, query Query) ([]*interaction.Interaction, error) {
	if len(query.SeedIDs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var results []*interaction.Interaction

	visit := func(id string) error {
		if id == "" || seen[id] || len(results) >= query.Limit {
			return nil
		}
		seen[id] = true
		record, err := o.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		results = append(results, record)
		return nil
	}

	for _, seed := range query.SeedIDs {
		if err := visit(seed); err != nil {
			return nil, err
		}
	}
	// One hop out: previous links and related ids of the seeds.
	for _, record := range append([]*interaction.Interaction{}, results...) {
		if err := visit(record.PreviousID); err != nil {
			return nil, err
		}
		if record.Relationship != nil {
			if err := visit(record.Relationship.ResumptionTargetID); err != nil {
				return nil, err
			}
		}
		for _, related := range record.RelatedIDs {
			if err := visit(related); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// sortByCountDesc stably sorts ids by descending match count.
func sortByCountDesc(ids []string, counts map[string]int) {
	// Insertion sort keeps the original order among equal counts.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && counts[ids[j]] > counts[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
