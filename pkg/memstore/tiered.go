package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/session"
)

// Config contains configuration options for the tiered store.
type Config struct {
	// RetentionWindow is how many recent interactions the fast tier keeps.
	RetentionWindow int

	// SummarizeOnEvict compresses records via the Summarizer before
	// they are migrated to the archive.
	SummarizeOnEvict bool

	// ConsistencyInterval is how often the background checker verifies
	// the secondary indices against the primary records. Zero or
	// negative disables the checker.
	ConsistencyInterval time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		RetentionWindow:     10000,
		ConsistencyInterval: 5 * time.Minute,
	}
}

// TieredStore implements Store with an in-memory fast tier and an
// optional archive tier. All fast-tier mutations happen under one
// mutex, so an append and its index updates are observed atomically.
type TieredStore struct {
	mu sync.RWMutex

	// primary records, keyed by id
	byID map[string]*interaction.Interaction

	// chronological id order, oldest first (the time index)
	order []string

	// secondary indices
	byCategory map[interaction.Category][]string
	byTopic    map[string][]string
	bySession  map[session.ID][]string

	// per-session monotonicity state
	lastCreated map[session.ID]time.Time
	ordinals    map[session.ID]int

	// archivedCount tracks records migrated out of the fast tier
	archivedCount int

	config     Config
	archive    Archive
	summarizer Summarizer

	// stopChecker terminates the background consistency loop
	stopChecker chan struct{}
	closeOnce   sync.Once

	// now is replaceable for tests
	now func() time.Time
}

// NewTieredStore creates a store. archive and summarizer may be nil;
// without an archive, evicted records are dropped (and counted).
func NewTieredStore(config Config, archive Archive, summarizer Summarizer) *TieredStore {
	if config.RetentionWindow <= 0 {
		config.RetentionWindow = 10000
	}
	store := &TieredStore{
		byID:        make(map[string]*interaction.Interaction),
		byCategory:  make(map[interaction.Category][]string),
		byTopic:     make(map[string][]string),
		bySession:   make(map[session.ID][]string),
		lastCreated: make(map[session.ID]time.Time),
		ordinals:    make(map[session.ID]int),
		config:      config,
		archive:     archive,
		summarizer:  summarizer,
		now:         time.Now,
	}

	if config.ConsistencyInterval > 0 {
		store.stopChecker = make(chan struct{})
		go store.consistencyLoop(config.ConsistencyInterval)
	}

	log.Debug("Initialized tiered memory store",
		"retention_window", config.RetentionWindow,
		"archive", fmt.Sprintf("%T", archive),
		"consistency_interval", config.ConsistencyInterval,
	)

	return store
}

// Close stops the background consistency checker and releases the
// archive tier. Safe to call more than once.
func (s *TieredStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopChecker != nil {
			close(s.stopChecker)
		}
		if s.archive != nil {
			err = s.archive.Close()
		}
	})
	return err
}

func (s *TieredStore) consistencyLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChecker:
			return
		case <-ticker.C:
			s.runConsistencyPass(context.Background())
		}
	}
}

// runConsistencyPass verifies the secondary indices and rebuilds them
// when they have diverged from the primary records.
func (s *TieredStore) runConsistencyPass(ctx context.Context) {
	problems, err := s.CheckConsistency(ctx)
	if err == nil {
		return
	}
	log.ErrorContext(ctx, "Index inconsistency detected",
		"problems", problems,
		"error", err,
	)
	if err := s.RebuildIndexes(ctx); err != nil {
		log.ErrorContext(ctx, "Failed to rebuild secondary indexes", "error", err)
		return
	}
	log.InfoContext(ctx, "Secondary indexes rebuilt", "problems_repaired", len(problems))
}

// Append implements Store. The record and every applicable index are
// updated under one lock; a cancelled context writes nothing.
func (s *TieredStore) Append(ctx context.Context, it *interaction.Interaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "append aborted")
	}
	if it == nil || strings.TrimSpace(it.Input) == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "interaction input must not be empty")
	}
	if it.SessionID == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "interaction session id must not be empty")
	}

	record := it.Clone()
	if record.ID == "" {
		record.ID = interaction.NewID()
	}
	if len(record.Topics) == 0 {
		record.Topics = interaction.ExtractTopics(record.Input, 0)
	}

	var evicted []*interaction.Interaction

	s.mu.Lock()
	if _, exists := s.byID[record.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("interaction %s already exists", record.ID)
	}

	// Timestamps are monotonically non-decreasing within a session.
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	if last, ok := s.lastCreated[record.SessionID]; ok && record.CreatedAt.Before(last) {
		record.CreatedAt = last
	}
	s.lastCreated[record.SessionID] = record.CreatedAt

	record.Ordinal = s.ordinals[record.SessionID]
	s.ordinals[record.SessionID]++

	s.byID[record.ID] = record
	s.order = append(s.order, record.ID)
	s.bySession[record.SessionID] = append(s.bySession[record.SessionID], record.ID)
	if record.Relationship != nil {
		s.byCategory[record.Relationship.Category] = append(s.byCategory[record.Relationship.Category], record.ID)
	}
	for _, topic := range record.Topics {
		s.byTopic[topic] = append(s.byTopic[topic], record.ID)
	}

	// Retention: trim the oldest records past the window, removing them
	// from every index inside the same transaction.
	for len(s.order) > s.config.RetentionWindow {
		oldest := s.order[0]
		s.order = s.order[1:]
		if old, ok := s.byID[oldest]; ok {
			s.removeFromIndexesLocked(old)
			delete(s.byID, oldest)
			evicted = append(evicted, old)
		}
	}
	s.archivedCount += len(evicted)
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.migrate(ctx, evicted)
	}

	return record.ID, nil
}

// removeFromIndexesLocked drops a record's entries from the secondary
// indices. Callers must hold the write lock.
func (s *TieredStore) removeFromIndexesLocked(record *interaction.Interaction) {
	s.bySession[record.SessionID] = removeID(s.bySession[record.SessionID], record.ID)
	if len(s.bySession[record.SessionID]) == 0 {
		delete(s.bySession, record.SessionID)
	}
	if record.Relationship != nil {
		cat := record.Relationship.Category
		s.byCategory[cat] = removeID(s.byCategory[cat], record.ID)
		if len(s.byCategory[cat]) == 0 {
			delete(s.byCategory, cat)
		}
	}
	for _, topic := range record.Topics {
		s.byTopic[topic] = removeID(s.byTopic[topic], record.ID)
		if len(s.byTopic[topic]) == 0 {
			delete(s.byTopic, topic)
		}
	}
}

// migrate pushes evicted records to the archive tier, summarizing them
// first when configured. Archive problems are logged, never surfaced to
// the appending caller.
func (s *TieredStore) migrate(ctx context.Context, evicted []*interaction.Interaction) {
	if s.archive == nil {
		log.DebugContext(ctx, "No archive tier configured, dropping evicted records",
			"count", len(evicted))
		return
	}

	if s.config.SummarizeOnEvict && s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, evicted)
		if err != nil {
			log.WarnContext(ctx, "Retention summarization failed, archiving full records", "error", err)
		} else if summary != "" {
			for _, record := range evicted {
				record.Summary = summary
			}
		}
	}

	if err := s.archive.Put(ctx, evicted); err != nil {
		log.ErrorContext(ctx, "Failed to archive evicted records",
			"count", len(evicted),
			"error", err)
	}
}

// Get implements Store.
func (s *TieredStore) Get(ctx context.Context, id string) (*interaction.Interaction, error) {
	s.mu.RLock()
	record, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return record.Clone(), nil
	}

	if s.archive != nil {
		archived, err := s.archive.Get(ctx, id)
		if err == nil && archived != nil {
			return archived, nil
		}
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrap(err, "archive lookup for %s failed", id)
		}
	}

	return nil, errors.ErrNotFound
}

// QueryByTime implements Store.
func (s *TieredStore) QueryByTime(ctx context.Context, limit int, fromEnd bool) ([]*interaction.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	results := make([]*interaction.Interaction, 0, limit)
	if fromEnd {
		for i := len(ids) - 1; i >= 0 && len(results) < limit; i-- {
			results = append(results, s.byID[ids[i]].Clone())
		}
	} else {
		for i := 0; i < len(ids) && len(results) < limit; i++ {
			results = append(results, s.byID[ids[i]].Clone())
		}
	}
	return results, nil
}

// QueryByCategory implements Store.
func (s *TieredStore) QueryByCategory(ctx context.Context, category interaction.Category, limit int) ([]*interaction.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tailNewestFirstLocked(s.byCategory[category], limit), nil
}

// QueryByTopic implements Store.
func (s *TieredStore) QueryByTopic(ctx context.Context, topic string, limit int) ([]*interaction.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tailNewestFirstLocked(s.byTopic[strings.ToLower(topic)], limit), nil
}

// QueryBySession implements Store.
func (s *TieredStore) QueryBySession(ctx context.Context, sessionID session.ID, limit int) ([]*interaction.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sessionID]
	start := 0
	if limit > 0 && len(ids) > limit {
		start = len(ids) - limit
	}
	results := make([]*interaction.Interaction, 0, len(ids)-start)
	for _, id := range ids[start:] {
		results = append(results, s.byID[id].Clone())
	}
	return results, nil
}

// Count implements Store.
func (s *TieredStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID) + s.archivedCount, nil
}

// RetainedCount returns the number of records currently in the fast tier.
func (s *TieredStore) RetainedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// tailNewestFirstLocked returns clones of the last limit ids, newest
// first. Callers must hold at least the read lock.
func (s *TieredStore) tailNewestFirstLocked(ids []string, limit int) []*interaction.Interaction {
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	results := make([]*interaction.Interaction, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(results) < limit; i-- {
		if record, ok := s.byID[ids[i]]; ok {
			results = append(results, record.Clone())
		}
	}
	return results
}

// removeID deletes the first occurrence of id from ids.
func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

var _ Store = (*TieredStore)(nil)
