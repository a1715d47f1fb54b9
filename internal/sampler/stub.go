package sampler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/timvw/prompt-patrol/internal/model"
)

// Stub is a deterministic Backend for tests and offline dry runs.
// Calls are numbered from 1 in the order they reach the stub.
type Stub struct {
	fn    func(n int, conv model.Conversation) (string, error)
	calls atomic.Int64
}

// NewFuncStub returns a stub that delegates the n-th call to fn.
func NewFuncStub(fn func(n int, conv model.Conversation) (string, error)) *Stub {
	return &Stub{fn: fn}
}

// NewFixedStub returns a stub that always answers text.
func NewFixedStub(text string) *Stub {
	return NewFuncStub(func(int, model.Conversation) (string, error) {
		return text, nil
	})
}

// NewSequenceStub returns a stub answering fmt.Sprintf(format, n) for the
// n-th call, e.g. "This is a mock response %d".
func NewSequenceStub(format string) *Stub {
	return NewFuncStub(func(n int, _ model.Conversation) (string, error) {
		return fmt.Sprintf(format, n), nil
	})
}

// Sample returns the canned answer for the next call number.
func (s *Stub) Sample(ctx context.Context, conv model.Conversation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := s.calls.Add(1)
	return s.fn(int(n), conv)
}

// Calls returns how many times Sample was invoked.
func (s *Stub) Calls() int {
	return int(s.calls.Load())
}

// Provider returns "stub".
func (s *Stub) Provider() string {
	return "stub"
}

// Model returns "stub".
func (s *Stub) Model() string {
	return "stub"
}
