package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParsePredicates decodes a JSON list of {"type","id","content"} objects.
func ParsePredicates(data []byte) ([]Predicate, error) {
	var preds []Predicate
	if err := json.Unmarshal(data, &preds); err != nil {
		return nil, fmt.Errorf("%w: invalid predicate JSON: %v", ErrConfig, err)
	}
	return checkPredicates(preds)
}

// LoadPredicatesFile reads a predicate list from a YAML or JSON file.
func LoadPredicatesFile(path string) ([]Predicate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading predicates file: %v", ErrConfig, err)
	}
	var preds []Predicate
	if err := yaml.Unmarshal(data, &preds); err != nil {
		return nil, fmt.Errorf("%w: parsing predicates file %s: %v", ErrConfig, path, err)
	}
	return checkPredicates(preds)
}

// ParseConversation decodes a JSON list of {"role","content"} messages.
func ParseConversation(data []byte) (Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: invalid conversation JSON: %v", ErrConfig, err)
	}
	return conv, ValidateConversation(conv)
}

// LoadConversationFile reads a conversation from a YAML or JSON file.
func LoadConversationFile(path string) (Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading conversation file: %v", ErrConfig, err)
	}
	var conv Conversation
	if err := yaml.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: parsing conversation file %s: %v", ErrConfig, path, err)
	}
	return conv, ValidateConversation(conv)
}

// ValidateConversation checks that conv is non-empty and every message has a
// known role and content.
func ValidateConversation(conv Conversation) error {
	if len(conv) == 0 {
		return fmt.Errorf("%w: conversation is empty", ErrConfig)
	}
	for i, m := range conv {
		if err := validate.Struct(m); err != nil {
			return fmt.Errorf("%w: message %d: %s", ErrConfig, i, describe(err))
		}
	}
	return nil
}

// ValidatePredicate checks the field-level rules of a single predicate.
// Uniqueness across a set is checked by the engine.
func ValidatePredicate(p Predicate) error {
	if err := validate.Struct(p); err != nil {
		label := p.ID
		if label == "" {
			label = "(no id)"
		}
		return fmt.Errorf("%w: predicate %s: %s", ErrConfig, label, describe(err))
	}
	return nil
}

func checkPredicates(preds []Predicate) ([]Predicate, error) {
	out := make([]Predicate, len(preds))
	for i, p := range preds {
		p = p.Normalize()
		if err := ValidatePredicate(p); err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// describe renders validator errors using wire field names.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := wireName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s %q must be one of: %s", field, fe.Value(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func wireName(field string) string {
	switch field {
	case "Kind":
		return "type"
	case "Spec":
		return "content"
	default:
		return strings.ToLower(field)
	}
}
