package similarity

import (
	"context"

	"github.com/telltail/conmem/pkg/interaction"
)

// Lexical scores text pairs by Jaccard similarity of their token sets:
// lowercase, tokens shorter than three characters stripped,
// intersection over union. An empty union scores zero.
type Lexical struct{}

// NewLexical creates the lexical strategy.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Name implements Strategy.
func (l *Lexical) Name() string { return "lexical" }

// Score implements Strategy. It never returns an error.
func (l *Lexical) Score(_ context.Context, a, b string) (float64, error) {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 0, nil
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0, nil
	}
	return float64(intersection) / float64(union), nil
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range interaction.Tokenize(text, 2) {
		set[tok] = struct{}{}
	}
	return set
}

var _ Strategy = (*Lexical)(nil)
