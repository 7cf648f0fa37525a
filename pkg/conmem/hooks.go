package conmem

import (
	"context"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/pattern"
	"github.com/telltail/conmem/pkg/scripting"
)

const (
	// beforeClassifyFuncName is the name of the Lua function to call before classification
	beforeClassifyFuncName = "before_classify"

	// afterRetrieveFuncName is the name of the Lua function to call after retrieval
	afterRetrieveFuncName = "after_retrieve"

	// filterThemesFuncName is the name of the Lua function that filters mined themes
	filterThemesFuncName = "filter_themes"
)

// callBeforeClassifyHook lets a Lua hook rewrite the input text before
// classification. Hook failures never fail the turn.
func (c *ConMemClientImpl) callBeforeClassifyHook(ctx context.Context, input string) string {
	if c.scriptEngine == nil {
		return input
	}

	result, err := c.scriptEngine.ExecuteFunction(ctx, beforeClassifyFuncName, input)
	if err != nil {
		if !errors.Is(err, scripting.ErrFunctionNotFound) {
			log.WarnContext(ctx, "Error calling Lua hook",
				"hook", beforeClassifyFuncName,
				"error", err)
		}
		return input
	}

	if rewritten, ok := result.(string); ok && rewritten != "" {
		return rewritten
	}
	return input
}

// callAfterRetrieveHook lets a Lua hook filter the retrieved list down
// to a subset of ids. Anything other than a list of ids leaves the
// results untouched.
func (c *ConMemClientImpl) callAfterRetrieveHook(ctx context.Context, results []*interaction.Interaction) []*interaction.Interaction {
	if c.scriptEngine == nil || len(results) == 0 {
		return results
	}

	luaResults := make([]interface{}, len(results))
	for i, record := range results {
		entry := map[string]interface{}{
			"id":         record.ID,
			"session_id": string(record.SessionID),
			"input":      record.Input,
			"response":   record.Response,
			"created_at": record.CreatedAt.Unix(),
		}
		if record.Relationship != nil {
			entry["category"] = int(record.Relationship.Category)
		}
		luaResults[i] = entry
	}

	result, err := c.scriptEngine.ExecuteFunction(ctx, afterRetrieveFuncName, luaResults)
	if err != nil {
		if !errors.Is(err, scripting.ErrFunctionNotFound) {
			log.WarnContext(ctx, "Error calling Lua hook",
				"hook", afterRetrieveFuncName,
				"error", err)
		}
		return results
	}

	kept, ok := result.([]interface{})
	if !ok {
		return results
	}

	keep := make(map[string]bool, len(kept))
	for _, entry := range kept {
		switch v := entry.(type) {
		case string:
			keep[v] = true
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok {
				keep[id] = true
			}
		}
	}

	filtered := make([]*interaction.Interaction, 0, len(results))
	for _, record := range results {
		if keep[record.ID] {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// callFilterThemesHook lets a Lua hook drop mined themes by token. The
// hook receives the theme tokens and returns the ones to keep.
func (c *ConMemClientImpl) callFilterThemesHook(ctx context.Context, patterns *pattern.Set) *pattern.Set {
	if c.scriptEngine == nil || patterns == nil || len(patterns.Themes) == 0 {
		return patterns
	}

	tokens := make([]string, len(patterns.Themes))
	for i, theme := range patterns.Themes {
		tokens[i] = theme.Token
	}

	result, err := c.scriptEngine.ExecuteFunction(ctx, filterThemesFuncName, tokens)
	if err != nil {
		if !errors.Is(err, scripting.ErrFunctionNotFound) {
			log.WarnContext(ctx, "Error calling Lua hook",
				"hook", filterThemesFuncName,
				"error", err)
		}
		return patterns
	}

	kept, ok := result.([]interface{})
	if !ok {
		return patterns
	}
	keep := make(map[string]bool, len(kept))
	for _, entry := range kept {
		if token, ok := entry.(string); ok {
			keep[token] = true
		}
	}

	filtered := &pattern.Set{
		WindowHash:       patterns.WindowHash,
		ContradictionIDs: patterns.ContradictionIDs,
		Chains:           patterns.Chains,
		ComputedAt:       patterns.ComputedAt,
	}
	for _, theme := range patterns.Themes {
		if keep[theme.Token] {
			filtered.Themes = append(filtered.Themes, theme)
		}
	}
	return filtered
}
