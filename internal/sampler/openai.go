package sampler

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"

	"github.com/timvw/prompt-patrol/internal/model"
	ppotel "github.com/timvw/prompt-patrol/internal/otel"
)

// OpenAI samples from an OpenAI-compatible Chat Completions API.
// Works with OpenAI, Azure OpenAI, and any endpoint speaking the same protocol.
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	metrics     *ppotel.Metrics
}

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	// BaseURL is the API endpoint.
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name (e.g., "gpt-4o-mini").
	Model string
	// MaxTokens caps completion tokens. 0 leaves the provider default.
	MaxTokens int64
	// Temperature is the sampling temperature. Negative leaves the provider default.
	Temperature float64
	// ExtraHeaders are additional HTTP headers (e.g., "api-key" for Azure).
	ExtraHeaders map[string]string
	// Metrics receives token usage; nil disables.
	Metrics *ppotel.Metrics
}

// NewOpenAI creates a new OpenAI backend. SDK retries are disabled: a failed
// call fails its trial.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
	}
}

// Provider returns "openai".
func (s *OpenAI) Provider() string {
	return "openai"
}

// Model returns the model name.
func (s *OpenAI) Model() string {
	return s.model
}

// Sample sends conv to the Chat Completions API and returns the first choice.
func (s *OpenAI) Sample(ctx context.Context, conv model.Conversation) (string, error) {
	ctx, span := startChatSpan(ctx, s.Provider(), s.model, s.maxTokens, conv)
	defer span.End()

	params := openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: openAIMessages(conv),
	}
	if s.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(s.maxTokens)
	}
	if s.temperature >= 0 {
		params.Temperature = openai.Float(s.temperature)
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return "", fmt.Errorf("openai API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return "", fmt.Errorf("openai API returned no choices")
	}

	text := resp.Choices[0].Message.Content
	usage := model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	span.SetAttributes(attribute.String("gen_ai.response.id", resp.ID))
	endChatSpan(span, resp.Model, string(resp.Choices[0].FinishReason), text, usage)
	s.metrics.RecordTokens(ctx, s.Provider(), s.model, usage.InputTokens, usage.OutputTokens)

	return text, nil
}

func openAIMessages(conv model.Conversation) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv))
	for _, m := range conv {
		switch m.Role {
		case model.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}
