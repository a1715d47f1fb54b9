// Package sampler produces model responses for a fixed conversation.
//
// Backends (OpenAI, Anthropic, OpenAI-compatible servers, and a deterministic
// stub) all satisfy Sampler. Model name, credentials, temperature and the
// output-token cap are bound at construction; callers only pass the
// conversation. The same interface serves semantic-predicate judging: a judge
// is just a Backend constructed with a small output cap.
package sampler

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/prompt-patrol/internal/model"
	"github.com/timvw/prompt-patrol/internal/pacing"
)

// Sampler returns one sampled response for conv.
type Sampler interface {
	Sample(ctx context.Context, conv model.Conversation) (string, error)
}

// Backend is a Sampler that can describe itself.
type Backend interface {
	Sampler

	// Provider returns the provider name (e.g., "anthropic", "openai").
	Provider() string

	// Model returns the model name used for sampling.
	Model() string
}

// Paced returns a Backend that waits on limiter before every call to b.
// Share one limiter between the sampler and the judge to space all upstream
// call initiations.
func Paced(b Backend, limiter *pacing.Limiter) Backend {
	if limiter == nil {
		return b
	}
	return &pacedBackend{Backend: b, limiter: limiter}
}

type pacedBackend struct {
	Backend
	limiter *pacing.Limiter
}

func (p *pacedBackend) Sample(ctx context.Context, conv model.Conversation) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return p.Backend.Sample(ctx, conv)
}

var tracer = otel.Tracer("prompt-patrol/sampler")

// startChatSpan starts a GenAI client span following the OTel GenAI semantic
// conventions. Span name is "{operation} {model}".
func startChatSpan(ctx context.Context, provider, modelName string, maxTokens int64, conv model.Conversation) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "chat "+modelName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", provider),
			attribute.String("gen_ai.request.model", modelName),
			attribute.Int64("gen_ai.request.max_tokens", maxTokens),
			attribute.String("langfuse.observation.type", "generation"),
		),
	)
	if inputJSON, err := json.Marshal(conv); err == nil {
		span.SetAttributes(attribute.String("gen_ai.input.messages", string(inputJSON)))
	}
	return ctx, span
}

// endChatSpan records response attributes on span.
func endChatSpan(span trace.Span, responseModel, finishReason, text string, usage model.TokenUsage) {
	span.SetAttributes(
		attribute.String("gen_ai.response.model", responseModel),
		attribute.Int64("gen_ai.usage.input_tokens", usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", usage.OutputTokens),
	)
	if finishReason != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{finishReason}))
	}
	output := model.Conversation{{Role: model.RoleAssistant, Content: text}}
	if outputJSON, err := json.Marshal(output); err == nil {
		span.SetAttributes(attribute.String("gen_ai.output.messages", string(outputJSON)))
	}
}
