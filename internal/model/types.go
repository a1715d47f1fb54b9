package model

import (
	"errors"
	"sort"
)

// ErrConfig marks errors caused by invalid run configuration (malformed
// predicates or conversation, empty predicate set, duplicate ids). They are
// detected before any sampling starts.
var ErrConfig = errors.New("configuration error")

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged conversation turn.
type Message struct {
	Role    Role   `json:"role" yaml:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" yaml:"content" validate:"required"`
}

// Conversation is the fixed input sent to the model on every trial.
type Conversation []Message

// UserPrompt returns a conversation consisting of an optional system
// message followed by a single user message.
func UserPrompt(system, prompt string) Conversation {
	var conv Conversation
	if system != "" {
		conv = append(conv, Message{Role: RoleSystem, Content: system})
	}
	return append(conv, Message{Role: RoleUser, Content: prompt})
}

// PredicateKind selects how a predicate is evaluated.
type PredicateKind string

const (
	// KindPattern predicates match a regular expression against the response.
	KindPattern PredicateKind = "pattern"
	// KindSemantic predicates ask a judge model a yes/no question about the response.
	KindSemantic PredicateKind = "semantic"
)

// kindAliases maps accepted wire names onto their canonical kind.
var kindAliases = map[PredicateKind]PredicateKind{
	"regexp": KindPattern,
	"regex":  KindPattern,
	"prompt": KindSemantic,
}

// Predicate is a named pass/fail test applied to each sampled response.
// The wire form is {"type", "id", "content"}.
type Predicate struct {
	// ID identifies the predicate in the aggregate result. Unique within a run.
	ID string `json:"id" yaml:"id" validate:"required"`
	// Kind is "pattern" (alias "regexp") or "semantic" (alias "prompt").
	Kind PredicateKind `json:"type" yaml:"type" validate:"required,oneof=pattern semantic"`
	// Spec is the regular expression source for pattern predicates, or the
	// yes/no question for semantic predicates.
	Spec string `json:"content" yaml:"content" validate:"required"`
}

// Normalize rewrites alias kinds to their canonical name.
func (p Predicate) Normalize() Predicate {
	if canonical, ok := kindAliases[p.Kind]; ok {
		p.Kind = canonical
	}
	return p
}

// Request is one evaluation run: sample Conversation Trials times and score
// every response against every predicate.
type Request struct {
	Conversation Conversation
	Predicates   []Predicate
	Trials       int
}

// Result maps predicate id to the number of sampled responses that passed it.
type Result map[string]int

// Clone returns an independent copy of r.
func (r Result) Clone() Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IDs returns the predicate ids in r, sorted.
func (r Result) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Update is emitted once per scored (response, predicate) pair.
type Update struct {
	PredicateID string `json:"predicate_id"`
	Response    string `json:"response"`
	Passed      bool   `json:"passed"`
	// Counts is a snapshot of the aggregate at the moment the pair was scored.
	Counts Result `json:"counts"`
}

// TokenUsage tracks LLM token consumption for a single call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}
