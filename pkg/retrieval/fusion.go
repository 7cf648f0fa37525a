package retrieval

import (
	"sort"

	"github.com/telltail/conmem/pkg/interaction"
)

type rankedList struct {
	name    string
	weight  float64
	records []*interaction.Interaction
}

// fuse combines the strategies' rankings into one. Each list position
// contributes (1 - rank/len) * weight; per-interaction contributions
// are summed, absence from a list contributes nothing.
func fuse(lists []rankedList, limit int) []*interaction.Interaction {
	scores := make(map[string]float64)
	records := make(map[string]*interaction.Interaction)
	var order []string

	for _, list := range lists {
		length := float64(len(list.records))
		for rank, record := range list.records {
			if _, ok := records[record.ID]; !ok {
				records[record.ID] = record
				order = append(order, record.ID)
			}
			scores[record.ID] += (1 - float64(rank)/length) * list.weight
		}
	}

	// Sort by fused score descending; first-seen order breaks ties so
	// the output is deterministic.
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	results := make([]*interaction.Interaction, 0, len(order))
	for _, id := range order {
		results = append(results, records[id])
	}
	return results
}
