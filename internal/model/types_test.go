package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePredicates(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Predicate
		wantErr string
	}{
		{
			name:  "canonical kinds",
			input: `[{"type":"pattern","id":"1","content":"\\bmock\\b"},{"type":"semantic","id":"2","content":"Is it polite"}]`,
			want: []Predicate{
				{ID: "1", Kind: KindPattern, Spec: `\bmock\b`},
				{ID: "2", Kind: KindSemantic, Spec: "Is it polite"},
			},
		},
		{
			name:  "legacy aliases",
			input: `[{"type":"regexp","id":"banana","content":".*Banana.*"},{"type":"prompt","id":"apple","content":"Does it mention apples?"}]`,
			want: []Predicate{
				{ID: "banana", Kind: KindPattern, Spec: ".*Banana.*"},
				{ID: "apple", Kind: KindSemantic, Spec: "Does it mention apples?"},
			},
		},
		{
			name:  "empty list is not a decode error",
			input: `[]`,
			want:  []Predicate{},
		},
		{
			name:    "malformed JSON",
			input:   `[{"type":`,
			wantErr: "invalid predicate JSON",
		},
		{
			name:    "missing id",
			input:   `[{"type":"pattern","content":"x"}]`,
			wantErr: "id is required",
		},
		{
			name:    "unknown kind",
			input:   `[{"type":"fuzzy","id":"1","content":"x"}]`,
			wantErr: `type "fuzzy" must be one of`,
		},
		{
			name:    "missing content",
			input:   `[{"type":"prompt","id":"1"}]`,
			wantErr: "content is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePredicates([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !errors.Is(err, ErrConfig) {
					t.Errorf("expected ErrConfig, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d predicates, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("predicate %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadPredicatesFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predicates.yaml")
	content := `- id: banana
  type: regexp
  content: ".*Banana.*"
- id: apple
  type: semantic
  content: Does the text mention apples
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadPredicatesFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d predicates, want 2", len(got))
	}
	if got[0].Kind != KindPattern {
		t.Errorf("alias not normalized: got %q", got[0].Kind)
	}
	if got[1].Spec != "Does the text mention apples" {
		t.Errorf("Spec: got %q", got[1].Spec)
	}
}

func TestLoadPredicatesFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predicates.json")
	if err := os.WriteFile(path, []byte(`[{"type":"pattern","id":"x","content":"x+"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadPredicatesFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Errorf("got %+v", got)
	}
}

func TestLoadPredicatesFile_Missing(t *testing.T) {
	_, err := LoadPredicatesFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestParseConversation(t *testing.T) {
	conv, err := ParseConversation([]byte(`[{"role":"system","content":"be brief"},{"role":"user","content":"List me some red and yellow fruits"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conv) != 2 || conv[1].Role != RoleUser {
		t.Errorf("got %+v", conv)
	}

	if _, err := ParseConversation([]byte(`[]`)); !errors.Is(err, ErrConfig) {
		t.Errorf("empty conversation: expected ErrConfig, got %v", err)
	}
	if _, err := ParseConversation([]byte(`[{"role":"robot","content":"hi"}]`)); err == nil || !strings.Contains(err.Error(), "role") {
		t.Errorf("bad role: expected role error, got %v", err)
	}
}

func TestLoadConversationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.yaml")
	content := "- role: user\n  content: hello\n- role: assistant\n  content: hi\n- role: user\n  content: tell me a joke\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	conv, err := LoadConversationFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conv) != 3 || conv[1].Role != RoleAssistant {
		t.Errorf("got %+v", conv)
	}
}

func TestUserPrompt(t *testing.T) {
	conv := UserPrompt("", "hello")
	if len(conv) != 1 || conv[0].Role != RoleUser {
		t.Errorf("without system: got %+v", conv)
	}
	conv = UserPrompt("sys", "hello")
	if len(conv) != 2 || conv[0].Role != RoleSystem || conv[1].Content != "hello" {
		t.Errorf("with system: got %+v", conv)
	}
}

func TestResultClone(t *testing.T) {
	r := Result{"a": 1, "b": 0}
	c := r.Clone()
	c["a"] = 5
	if r["a"] != 1 {
		t.Errorf("Clone shares storage with original")
	}
	if ids := r.IDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs: got %v", ids)
	}
}

func TestUpdateJSON(t *testing.T) {
	u := Update{PredicateID: "1", Response: "text", Passed: true, Counts: Result{"1": 1}}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"predicate_id":"1"`, `"passed":true`, `"counts":{"1":1}`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("JSON %s missing %s", data, key)
		}
	}
}
