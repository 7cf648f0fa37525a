// Package mock provides an in-memory embed.Provider for tests and demos.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/telltail/conmem/pkg/embed"
)

// Provider is a configurable mock embedding provider. It returns
// predefined vectors per text, falling back to a deterministic default,
// and can be switched into a failing mode to exercise breaker paths.
type Provider struct {
	mu sync.Mutex

	// Vectors maps exact text to a predefined embedding.
	Vectors map[string][]float32

	// FailWith, when non-nil, is returned (wrapped) by every Embed call.
	FailWith error

	// FailReason classifies the injected failure. Defaults to transient.
	FailReason embed.FailureReason

	// Calls records every Embed invocation's texts.
	Calls [][]string
}

// NewProvider creates an empty mock provider.
func NewProvider() *Provider {
	return &Provider{Vectors: make(map[string][]float32)}
}

// SetVector registers a predefined embedding for text.
func (p *Provider) SetVector(text string, vec []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Vectors[text] = vec
}

// Fail switches the provider into failing mode.
func (p *Provider) Fail(err error, reason embed.FailureReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailWith = err
	p.FailReason = reason
}

// Recover switches the provider back to healthy mode.
func (p *Provider) Recover() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailWith = nil
}

// CallCount returns the number of Embed invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Embed implements embed.Provider.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, embed.NewProviderError(embed.ReasonTransient, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, append([]string(nil), texts...))

	if p.FailWith != nil {
		reason := p.FailReason
		if reason == "" {
			reason = embed.ReasonTransient
		}
		return nil, embed.NewProviderError(reason, p.FailWith)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := p.Vectors[text]; ok {
			out[i] = append([]float32(nil), vec...)
			continue
		}
		out[i] = defaultVector(text)
	}
	return out, nil
}

// defaultVector derives a stable pseudo-embedding from the text bytes so
// unregistered texts still embed deterministically.
func defaultVector(text string) []float32 {
	vec := make([]float32, 8)
	for i, b := range []byte(text) {
		vec[i%8] += float32(b) / 255.0
	}
	return vec
}

var _ embed.Provider = (*Provider)(nil)

// ErrInjected is a convenience error for tests that only care that a
// failure happened.
var ErrInjected = errors.New("injected provider failure")
