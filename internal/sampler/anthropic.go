package sampler

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"

	"github.com/timvw/prompt-patrol/internal/model"
	ppotel "github.com/timvw/prompt-patrol/internal/otel"
)

// defaultAnthropicMaxTokens is used when no cap is configured; the Messages
// API requires one.
const defaultAnthropicMaxTokens = 1024

// Anthropic samples from the Anthropic Messages API.
// Works with both direct Anthropic API and Azure AI Foundry.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	metrics     *ppotel.Metrics
}

// AnthropicConfig holds configuration for the Anthropic backend.
type AnthropicConfig struct {
	// BaseURL is the API endpoint (e.g., "https://resource.services.ai.azure.com/anthropic/").
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name (e.g., "claude-haiku-4-5").
	Model string
	// MaxTokens is the maximum number of output tokens (default 1024).
	MaxTokens int64
	// Temperature is the sampling temperature. Negative leaves the provider default.
	Temperature float64
	// ExtraHeaders are additional HTTP headers (e.g., "api-key" for Azure).
	ExtraHeaders map[string]string
	// Metrics receives token usage; nil disables.
	Metrics *ppotel.Metrics
}

// NewAnthropic creates a new Anthropic backend with SDK retries disabled.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
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

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
	}
}

// Provider returns "anthropic".
func (s *Anthropic) Provider() string {
	return "anthropic"
}

// Model returns the model name.
func (s *Anthropic) Model() string {
	return s.model
}

// Sample sends conv to the Messages API and returns the concatenated text blocks.
func (s *Anthropic) Sample(ctx context.Context, conv model.Conversation) (string, error) {
	ctx, span := startChatSpan(ctx, s.Provider(), s.model, s.maxTokens, conv)
	defer span.End()

	system, messages := anthropicMessages(conv)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System:    system,
		Messages:  messages,
	}
	if s.temperature >= 0 {
		params.Temperature = anthropic.Float(s.temperature)
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	if len(resp.Content) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return "", fmt.Errorf("anthropic API returned no content")
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()

	usage := model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	endChatSpan(span, string(resp.Model), string(resp.StopReason), text, usage)
	s.metrics.RecordTokens(ctx, s.Provider(), s.model, usage.InputTokens, usage.OutputTokens)

	return text, nil
}

// anthropicMessages splits system messages into the system parameter, which
// the Messages API keeps separate from the turn list.
func anthropicMessages(conv model.Conversation) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(conv))
	for _, m := range conv {
		switch m.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case model.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, messages
}
