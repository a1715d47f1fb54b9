// Package predicate decides whether a sampled response satisfies a predicate.
//
// Pattern predicates are regular-expression matches and need no model call.
// Semantic predicates ask a judge model a yes/no question about the response.
// Every failure here is per call: the engine counts the pair as a non-match
// and moves on.
package predicate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/timvw/prompt-patrol/internal/model"
	ppotel "github.com/timvw/prompt-patrol/internal/otel"
	"github.com/timvw/prompt-patrol/internal/sampler"
)

// Evaluator applies predicates to responses. The zero value evaluates
// pattern predicates; semantic predicates need a Judge.
type Evaluator struct {
	// Judge answers semantic questions. Construct it with a small output cap.
	Judge sampler.Sampler
	// Cache reuses semantic verdicts for identical responses; nil disables.
	Cache *VerdictCache
	// Metrics records judge cache hits and misses; nil-safe.
	Metrics *ppotel.Metrics

	patterns sync.Map // source -> *regexp.Regexp
}

// Evaluate reports whether response satisfies p.
func (e *Evaluator) Evaluate(ctx context.Context, p model.Predicate, response string) (bool, error) {
	switch p.Kind {
	case model.KindPattern:
		return e.matchPattern(p, response)
	case model.KindSemantic:
		return e.askJudge(ctx, p, response)
	default:
		return false, fmt.Errorf("predicate %s: unknown kind %q", p.ID, p.Kind)
	}
}

// CheckPattern reports whether source compiles as a Go (RE2) regular
// expression. Patterns written for backtracking engines (lookaround,
// backreferences) fail here.
func CheckPattern(source string) error {
	_, err := regexp.Compile(source)
	return err
}

func (e *Evaluator) matchPattern(p model.Predicate, response string) (bool, error) {
	if cached, ok := e.patterns.Load(p.Spec); ok {
		return cached.(*regexp.Regexp).MatchString(response), nil
	}
	re, err := regexp.Compile(p.Spec)
	if err != nil {
		return false, fmt.Errorf("predicate %s: invalid pattern: %w", p.ID, err)
	}
	e.patterns.Store(p.Spec, re)
	return re.MatchString(response), nil
}

func (e *Evaluator) askJudge(ctx context.Context, p model.Predicate, response string) (bool, error) {
	if e.Judge == nil {
		return false, fmt.Errorf("predicate %s: no judge configured for semantic predicates", p.ID)
	}

	if e.Cache != nil {
		if passed, ok := e.Cache.Lookup(p.ID, response); ok {
			e.Metrics.RecordCacheHit(ctx)
			return passed, nil
		}
		e.Metrics.RecordCacheMiss(ctx)
	}

	reply, err := e.Judge.Sample(ctx, JudgeQuestion(p.Spec, response))
	if err != nil {
		return false, fmt.Errorf("predicate %s: judge call failed: %w", p.ID, err)
	}
	if strings.TrimSpace(reply) == "" {
		return false, fmt.Errorf("empty evaluator response for predicate %s", p.ID)
	}

	passed := IsAffirmative(reply)
	e.Cache.Store(p.ID, response, passed)
	return passed, nil
}
