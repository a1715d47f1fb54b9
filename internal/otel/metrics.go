package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "prompt-patrol"

// Outcomes recorded on the trial and predicate counters.
const (
	OutcomeSampled = "sampled"
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeError   = "error"
)

// Metrics holds all OTEL metric instruments for prompt-patrol.
// All counters are cumulative (monotonic) and safe for concurrent use.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// LLM token counters (partitioned by provider + model via attributes)
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// Trials partitioned by outcome (sampled, error)
	Trials metric.Int64Counter
	// Predicate evaluations partitioned by kind and outcome (pass, fail, error)
	PredicateEvaluations metric.Int64Counter

	// Judge verdict cache counters
	JudgeCacheHits   metric.Int64Counter
	JudgeCacheMisses metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.Trials, err = meter.Int64Counter("trials.total",
		metric.WithDescription("Sampling trials partitioned by outcome (sampled, error)"))
	if err != nil {
		return nil, err
	}

	m.PredicateEvaluations, err = meter.Int64Counter("predicate_evaluations.total",
		metric.WithDescription("Predicate evaluations partitioned by kind and outcome (pass, fail, error)"))
	if err != nil {
		return nil, err
	}

	m.JudgeCacheHits, err = meter.Int64Counter("judge_cache.hits",
		metric.WithDescription("Semantic verdicts reused for an identical response"))
	if err != nil {
		return nil, err
	}

	m.JudgeCacheMisses, err = meter.Int64Counter("judge_cache.misses",
		metric.WithDescription("Semantic verdicts that required a judge call"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTokens records LLM token usage on the metric counters.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordTrial records the outcome of one sampling trial.
func (m *Metrics) RecordTrial(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Trials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trial.outcome", outcome),
	))
}

// RecordPredicate records the outcome of one (response, predicate) evaluation.
func (m *Metrics) RecordPredicate(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.PredicateEvaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("predicate.kind", kind),
		attribute.String("predicate.outcome", outcome),
	))
}

// RecordCacheHit records a judge cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.JudgeCacheHits.Add(ctx, 1)
}

// RecordCacheMiss records a judge cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.JudgeCacheMisses.Add(ctx, 1)
}
