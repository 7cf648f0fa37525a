// Package pattern mines recurring structure from a window of recent
// interactions: repeated themes, flagged contradictions, and causal
// chains linked through prior-interaction references. Results are
// advisory context for classification and retrieval, cached by a hash
// of the window's interaction ids.
package pattern

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
)

// Theme is a token that recurs across the window.
type Theme struct {
	Token          string   `json:"token"`
	Count          int      `json:"count"`
	InteractionIDs []string `json:"interaction_ids"`
}

// Set is the derived aggregate over one history window.
type Set struct {
	// WindowHash content-addresses the window the set was computed from.
	WindowHash string `json:"window_hash"`

	Themes           []Theme    `json:"themes"`
	ContradictionIDs []string   `json:"contradiction_ids"`
	Chains           [][]string `json:"chains"`

	ComputedAt time.Time `json:"computed_at"`
}

// Config contains configuration options for the detector.
type Config struct {
	// WindowSize is how many recent interactions are mined.
	WindowSize int

	// MinThemeCount is the occurrence count a token needs to qualify
	// as a recurring theme.
	MinThemeCount int

	// MaxThemes caps the number of reported themes.
	MaxThemes int

	// CacheTTL is how long a computed set stays valid regardless of
	// access.
	CacheTTL time.Duration
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:    10,
		MinThemeCount: 3,
		MaxThemes:     10,
		CacheTTL:      30 * time.Minute,
	}
}

type cacheEntry struct {
	set        *Set
	computedAt time.Time
}

// Detector computes pattern sets over history windows.
type Detector struct {
	config Config

	mu    sync.Mutex
	cache map[string]cacheEntry

	// now is replaceable for tests
	now func() time.Time
}

// NewDetector creates a detector.
func NewDetector(config Config) *Detector {
	if config.WindowSize <= 0 {
		config.WindowSize = 10
	}
	if config.MinThemeCount <= 0 {
		config.MinThemeCount = 3
	}
	if config.MaxThemes <= 0 {
		config.MaxThemes = 10
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 30 * time.Minute
	}
	return &Detector{
		config: config,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// WindowSize returns how many recent interactions the detector mines.
func (d *Detector) WindowSize() int {
	return d.config.WindowSize
}

// Detect computes the pattern set for the window, truncating it to the
// configured window size first. Recomputation is idempotent for an
// unchanged window; an unexpired cached set for the same window hash is
// returned as-is.
func (d *Detector) Detect(ctx context.Context, window []*interaction.Interaction) *Set {
	if len(window) > d.config.WindowSize {
		window = window[len(window)-d.config.WindowSize:]
	}

	hash := windowHash(window)
	now := d.now()

	d.mu.Lock()
	if entry, ok := d.cache[hash]; ok && now.Sub(entry.computedAt) < d.config.CacheTTL {
		d.mu.Unlock()
		log.DebugContext(ctx, "Pattern cache hit", "window_hash", hash)
		return entry.set
	}
	d.mu.Unlock()

	set := d.compute(window, hash, now)

	d.mu.Lock()
	d.cache[hash] = cacheEntry{set: set, computedAt: now}
	// Drop expired entries so stale windows don't accumulate.
	for key, entry := range d.cache {
		if now.Sub(entry.computedAt) >= d.config.CacheTTL {
			delete(d.cache, key)
		}
	}
	d.mu.Unlock()

	log.DebugContext(ctx, "Computed pattern set",
		"window_hash", hash,
		"themes", len(set.Themes),
		"contradictions", len(set.ContradictionIDs),
		"chains", len(set.Chains),
	)

	return set
}

func (d *Detector) compute(window []*interaction.Interaction, hash string, now time.Time) *Set {
	set := &Set{
		WindowHash: hash,
		ComputedAt: now,
	}

	counts := make(map[string]int)
	contributors := make(map[string]map[string]bool)
	for _, record := range window {
		for _, token := range interaction.Tokenize(record.Input+" "+record.Response, 2) {
			if interaction.IsStopWord(token) {
				continue
			}
			counts[token]++
			if contributors[token] == nil {
				contributors[token] = make(map[string]bool)
			}
			contributors[token][record.ID] = true
		}

		if record.Relationship != nil && record.Relationship.Category == interaction.Contradiction {
			set.ContradictionIDs = append(set.ContradictionIDs, record.ID)
		}
	}

	for token, count := range counts {
		if count < d.config.MinThemeCount {
			continue
		}
		ids := make([]string, 0, len(contributors[token]))
		for id := range contributors[token] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		set.Themes = append(set.Themes, Theme{Token: token, Count: count, InteractionIDs: ids})
	}
	sort.Slice(set.Themes, func(i, j int) bool {
		if set.Themes[i].Count == set.Themes[j].Count {
			return set.Themes[i].Token < set.Themes[j].Token
		}
		return set.Themes[i].Count > set.Themes[j].Count
	})
	if len(set.Themes) > d.config.MaxThemes {
		set.Themes = set.Themes[:d.config.MaxThemes]
	}

	set.Chains = buildChains(window)

	return set
}

// buildChains follows previous-interaction links within the window and
// returns every maximal path of length two or more, oldest first.
func buildChains(window []*interaction.Interaction) [][]string {
	inWindow := make(map[string]*interaction.Interaction, len(window))
	for _, record := range window {
		inWindow[record.ID] = record
	}

	// followers maps an id to the ids that name it as their predecessor.
	followers := make(map[string][]string)
	hasPredecessor := make(map[string]bool)
	for _, record := range window {
		if record.PreviousID == "" {
			continue
		}
		if _, ok := inWindow[record.PreviousID]; !ok {
			continue
		}
		followers[record.PreviousID] = append(followers[record.PreviousID], record.ID)
		hasPredecessor[record.ID] = true
	}

	var chains [][]string
	for _, record := range window {
		if hasPredecessor[record.ID] {
			continue
		}
		// A head either starts a chain or stands alone.
		for _, chain := range walkChains(record.ID, followers) {
			if len(chain) >= 2 {
				chains = append(chains, chain)
			}
		}
	}
	return chains
}

// walkChains extends the path from id through every follower branch.
func walkChains(id string, followers map[string][]string) [][]string {
	next := followers[id]
	if len(next) == 0 {
		return [][]string{{id}}
	}
	var paths [][]string
	for _, follower := range next {
		for _, tail := range walkChains(follower, followers) {
			path := append([]string{id}, tail...)
			paths = append(paths, path)
		}
	}
	return paths
}

// Match reports whether the input structurally matches a mined theme.
// It returns the strongest matching theme and a confidence that grows
// with the theme's occurrence count.
func Match(input string, set *Set) (*Theme, float64, bool) {
	if set == nil || len(set.Themes) == 0 {
		return nil, 0, false
	}

	inputTokens := make(map[string]bool)
	for _, token := range interaction.Tokenize(input, 2) {
		if interaction.IsStopWord(token) {
			continue
		}
		inputTokens[token] = true
	}
	if len(inputTokens) == 0 {
		return nil, 0, false
	}

	// Themes are sorted by count, so the first hit is the strongest.
	for i := range set.Themes {
		theme := &set.Themes[i]
		if inputTokens[theme.Token] {
			return theme, matchConfidence(theme.Count), true
		}
	}
	return nil, 0, false
}

// matchConfidence maps a theme's occurrence count to [0.6, 0.9].
func matchConfidence(count int) float64 {
	if count > 10 {
		count = 10
	}
	confidence := 0.6 + 0.04*float64(count)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}

// windowHash content-addresses a window by its interaction ids.
func windowHash(window []*interaction.Interaction) string {
	hasher := sha256.New()
	for _, record := range window {
		hasher.Write([]byte(record.ID))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
