package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{name: "empty", raw: "", want: map[string]string{}},
		{name: "single", raw: "Authorization=Basic abc", want: map[string]string{"Authorization": "Basic abc"}},
		{name: "multiple with spaces", raw: " a = 1 , b=2", want: map[string]string{"a": "1", "b": "2"}},
		{name: "value containing equals", raw: "k=v=w", want: map[string]string{"k": "v=w"}},
		{name: "skips malformed pairs", raw: "novalue,=x,ok=1", want: map[string]string{"ok": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHeaders(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseHeaders(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %q: got %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestInit_NoEndpointIsNoop(t *testing.T) {
	tel, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if tel.Tracer == nil || tel.Metrics == nil {
		t.Fatal("expected tracer and metrics to be set")
	}
	ctx := context.Background()
	tel.Metrics.RecordTrial(ctx, OutcomeSampled)
	tel.Metrics.RecordPredicate(ctx, "pattern", OutcomePass)
	tel.Metrics.RecordTokens(ctx, "openai", "gpt-4o-mini", 10, 5)
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInit_InvalidEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Config{Endpoint: "localhost"}); err == nil {
		t.Error("expected error for endpoint without scheme/host")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTrial(ctx, OutcomeError)
	m.RecordPredicate(ctx, "semantic", OutcomeFail)
	m.RecordTokens(ctx, "anthropic", "claude", 1, 1)
	m.RecordCacheHit(ctx)
	m.RecordCacheMiss(ctx)
}
