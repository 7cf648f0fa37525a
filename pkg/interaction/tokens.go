package interaction

import (
	"strings"
	"unicode"
)

// stopWords are excluded from topic extraction and theme mining.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "your": {}, "was": {}, "are": {}, "but": {}, "not": {},
	"have": {}, "has": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "how": {}, "why": {}, "can": {}, "could": {},
	"would": {}, "should": {}, "about": {}, "into": {}, "from": {},
	"they": {}, "them": {}, "their": {}, "there": {}, "then": {},
	"than": {}, "its": {}, "it's": {}, "were": {}, "been": {}, "being": {},
	"will": {}, "just": {}, "like": {}, "more": {}, "some": {}, "also": {},
	"did": {}, "does": {}, "doing": {}, "our": {}, "out": {}, "all": {},
}

// IsStopWord reports whether token is in the shared stop-word set.
func IsStopWord(token string) bool {
	_, ok := stopWords[strings.ToLower(token)]
	return ok
}

// Tokenize splits text into lowercase tokens on non-alphanumeric
// boundaries, keeping only tokens longer than minLen runes.
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) > minLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ExtractTopics returns the deduplicated, stop-word-filtered topic
// tokens of text, capped at max (0 means no cap), in order of first
// appearance.
func ExtractTopics(text string, max int) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, tok := range Tokenize(text, 2) {
		if IsStopWord(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		topics = append(topics, tok)
		if max > 0 && len(topics) >= max {
			break
		}
	}
	return topics
}
