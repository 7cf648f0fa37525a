// Package summarize compresses batches of interactions into short
// summaries before the memory store archives them.
package summarize

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
)

// ErrEmptyAPIKey is returned when the API key is missing.
var ErrEmptyAPIKey = errors.New("API key cannot be empty")

const systemPrompt = "You condense conversation history. Summarize the " +
	"given turns into a short paragraph that preserves topics, decisions " +
	"and open questions. Respond with the summary only."

// Config holds the configuration for the OpenAI summarizer.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the chat model used for summarization, e.g., "gpt-4o-mini".
	Model string
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// OpenAISummarizer implements the memstore.Summarizer interface using
// the OpenAI chat completion API.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// NewOpenAISummarizer creates a new summarizer.
func NewOpenAISummarizer(config Config) (*OpenAISummarizer, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

// Summarize condenses the records into one short summary.
func (s *OpenAISummarizer) Summarize(ctx context.Context, records []*interaction.Interaction) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, record := range records {
		transcript.WriteString("User: ")
		transcript.WriteString(record.Input)
		transcript.WriteString("\n")
		if record.Response != "" {
			transcript.WriteString("Assistant: ")
			transcript.WriteString(record.Response)
			transcript.WriteString("\n")
		}
	}

	log.DebugContext(ctx, "Summarizing interactions", "count", len(records), "model", s.model)

	response, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.String()},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "summarization request failed")
	}
	if len(response.Choices) == 0 {
		return "", errors.New("summarization returned no choices")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// Noop is a summarizer that never compresses; the store archives full
// records.
type Noop struct{}

// Summarize implements memstore.Summarizer.
func (Noop) Summarize(ctx context.Context, records []*interaction.Interaction) (string, error) {
	return "", nil
}

var (
	_ memstore.Summarizer = (*OpenAISummarizer)(nil)
	_ memstore.Summarizer = Noop{}
)
