package sampler

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/timvw/prompt-patrol/internal/model"
	ppotel "github.com/timvw/prompt-patrol/internal/otel"
)

// Compat samples from a self-hosted OpenAI-compatible server (Ollama, vLLM,
// LM Studio). These servers often need no API key and only implement the
// classic max_tokens field.
type Compat struct {
	client      *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
	metrics     *ppotel.Metrics
}

// CompatConfig holds configuration for the OpenAI-compatible backend.
type CompatConfig struct {
	// BaseURL is the server's API root (e.g., "http://localhost:11434/v1").
	BaseURL string
	// APIKey is optional for most local servers.
	APIKey string
	// Model is the served model name (e.g., "llama3.1").
	Model string
	// MaxTokens caps output tokens. 0 leaves the server default.
	MaxTokens int
	// Temperature is the sampling temperature. 0 leaves the server default.
	Temperature float32
	// Metrics receives token usage; nil disables.
	Metrics *ppotel.Metrics
}

// DefaultCompatBaseURL points at a local Ollama server.
const DefaultCompatBaseURL = "http://localhost:11434/v1"

// NewCompat creates an OpenAI-compatible backend.
func NewCompat(cfg CompatConfig) *Compat {
	config := goopenai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	if config.BaseURL == "" {
		config.BaseURL = DefaultCompatBaseURL
	}

	return &Compat{
		client:      goopenai.NewClientWithConfig(config),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
	}
}

// Provider returns "compat".
func (s *Compat) Provider() string {
	return "compat"
}

// Model returns the model name.
func (s *Compat) Model() string {
	return s.model
}

// Sample sends conv to the server's chat completions endpoint.
func (s *Compat) Sample(ctx context.Context, conv model.Conversation) (string, error) {
	ctx, span := startChatSpan(ctx, s.Provider(), s.model, int64(s.maxTokens), conv)
	defer span.End()

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(conv))
	for _, m := range conv {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    msgs,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return "", fmt.Errorf("compat API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return "", fmt.Errorf("compat API returned no choices")
	}

	text := resp.Choices[0].Message.Content
	usage := model.TokenUsage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	endChatSpan(span, resp.Model, string(resp.Choices[0].FinishReason), text, usage)
	s.metrics.RecordTokens(ctx, s.Provider(), s.model, usage.InputTokens, usage.OutputTokens)

	return text, nil
}
