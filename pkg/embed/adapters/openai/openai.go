package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/telltail/conmem/pkg/embed"
	"github.com/telltail/conmem/pkg/log"
)

var (
	// ErrEmptyAPIKey is returned when the API key is missing.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
)

// Config holds the configuration for the OpenAI embedding adapter.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the embedding model, e.g. "text-embedding-3-small".
	Model string
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// Adapter implements the embed.Provider interface using the OpenAI API.
type Adapter struct {
	client *openai.Client
	model  string
}

// NewAdapter creates a new OpenAI embedding adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Adapter{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

// Embed generates embeddings for the given texts using the OpenAI API.
// Failures are wrapped in embed.ProviderError with a classified reason so
// the similarity engine can log quota exhaustion as expected degradation.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	log.DebugContext(ctx, "Generating embeddings", "count", len(texts), "model", a.model)

	response, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(a.model),
	})
	if err != nil {
		return nil, embed.NewProviderError(classifyError(err), err)
	}

	embeddings := make([][]float32, len(response.Data))
	for i, data := range response.Data {
		embeddings[i] = data.Embedding
	}

	log.DebugContext(ctx, "Successfully generated embeddings",
		"count", len(embeddings),
		"model", a.model)

	return embeddings, nil
}

// classifyError maps an OpenAI API error to a failure reason.
func classifyError(err error) embed.FailureReason {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || strings.Contains(strings.ToLower(apiErr.Message), "billing") {
			return embed.ReasonQuota
		}
		if apiErr.HTTPStatusCode == 429 {
			return embed.ReasonRateLimit
		}
	}
	return embed.ReasonTransient
}
