package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/session"
)

// CheckConsistency verifies that every primary record appears in each
// applicable secondary index exactly once and that no index references
// a missing record. It returns a description of every divergence found
// and ErrIndexInconsistent when there is at least one.
func (s *TieredStore) CheckConsistency(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var problems []string

	inOrder := make(map[string]int)
	for _, id := range s.order {
		inOrder[id]++
		if _, ok := s.byID[id]; !ok {
			problems = append(problems, fmt.Sprintf("time index references missing record %s", id))
		}
	}
	for id, n := range inOrder {
		if n > 1 {
			problems = append(problems, fmt.Sprintf("record %s appears %d times in time index", id, n))
		}
	}

	for id, record := range s.byID {
		if inOrder[id] == 0 {
			problems = append(problems, fmt.Sprintf("record %s missing from time index", id))
		}
		if !containsID(s.bySession[record.SessionID], id) {
			problems = append(problems, fmt.Sprintf("record %s missing from session index %s", id, record.SessionID))
		}
		if record.Relationship != nil && !containsID(s.byCategory[record.Relationship.Category], id) {
			problems = append(problems, fmt.Sprintf("record %s missing from category index %d", id, record.Relationship.Category))
		}
		for _, topic := range record.Topics {
			if !containsID(s.byTopic[topic], id) {
				problems = append(problems, fmt.Sprintf("record %s missing from topic index %q", id, topic))
			}
		}
	}

	for sid, ids := range s.bySession {
		for _, id := range ids {
			if _, ok := s.byID[id]; !ok {
				problems = append(problems, fmt.Sprintf("session index %s references missing record %s", sid, id))
			}
		}
	}
	for cat, ids := range s.byCategory {
		for _, id := range ids {
			if _, ok := s.byID[id]; !ok {
				problems = append(problems, fmt.Sprintf("category index %d references missing record %s", cat, id))
			}
		}
	}
	for topic, ids := range s.byTopic {
		for _, id := range ids {
			if _, ok := s.byID[id]; !ok {
				problems = append(problems, fmt.Sprintf("topic index %q references missing record %s", topic, id))
			}
		}
	}

	if len(problems) > 0 {
		log.WarnContext(ctx, "Memory store consistency check failed",
			"problem_count", len(problems))
		return problems, errors.ErrIndexInconsistent
	}
	return nil, nil
}

// RebuildIndexes reconstructs every secondary index from the primary
// records. Used to repair divergence reported by CheckConsistency.
func (s *TieredStore) RebuildIndexes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*interaction.Interaction, 0, len(s.byID))
	for _, record := range s.byID {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Ordinal < records[j].Ordinal
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	s.order = make([]string, 0, len(records))
	s.byCategory = make(map[interaction.Category][]string)
	s.byTopic = make(map[string][]string)
	s.bySession = make(map[session.ID][]string)

	for _, record := range records {
		s.order = append(s.order, record.ID)
		s.bySession[record.SessionID] = append(s.bySession[record.SessionID], record.ID)
		if record.Relationship != nil {
			s.byCategory[record.Relationship.Category] = append(s.byCategory[record.Relationship.Category], record.ID)
		}
		for _, topic := range record.Topics {
			s.byTopic[topic] = append(s.byTopic[topic], record.ID)
		}
	}

	log.InfoContext(ctx, "Rebuilt memory store secondary indices",
		"record_count", len(records))
	return nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
