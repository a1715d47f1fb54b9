// Package engine runs repeated-sampling evaluations.
//
// A run samples the model Trials times, applies every predicate to every
// sampled response, and returns the pass count per predicate. Trials and the
// predicates within a trial run concurrently. Only configuration errors abort
// a run, and they are detected before any sampling: a failed sample, a broken
// predicate or a misbehaving observer is logged and counted as "did not pass".
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/prompt-patrol/internal/model"
	ppotel "github.com/timvw/prompt-patrol/internal/otel"
	"github.com/timvw/prompt-patrol/internal/sampler"
)

// Configuration errors. All wrap model.ErrConfig.
var (
	ErrNoPredicates         = fmt.Errorf("%w: no predicates provided", model.ErrConfig)
	ErrDuplicatePredicateID = fmt.Errorf("%w: predicate ids must be unique", model.ErrConfig)
	ErrInvalidTrials        = fmt.Errorf("%w: trial count must be positive", model.ErrConfig)
)

var errEmptyResponse = errors.New("model returned an empty response")

var tracer = otel.Tracer("prompt-patrol/engine")

// PredicateEvaluator decides whether a response satisfies a predicate.
type PredicateEvaluator interface {
	Evaluate(ctx context.Context, p model.Predicate, response string) (bool, error)
}

// Observer receives one Update per scored (response, predicate) pair. It is
// called synchronously from the scoring goroutine, possibly concurrently
// with itself, in no particular order.
type Observer func(model.Update)

// Engine drives an evaluation run.
type Engine struct {
	Sampler   sampler.Sampler
	Evaluator PredicateEvaluator
	Observer  Observer        // optional
	Parallel  int             // max trials in flight; <= 0 means all at once
	Logger    *zerolog.Logger // nil discards diagnostics
	Metrics   *ppotel.Metrics // nil-safe
}

// Validate applies the run preconditions: at least one predicate, unique
// ids, well-formed predicates and a positive trial count.
func Validate(req model.Request) error {
	if len(req.Predicates) == 0 {
		return ErrNoPredicates
	}
	seen := make(map[string]struct{}, len(req.Predicates))
	for _, p := range req.Predicates {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePredicateID, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	for _, p := range req.Predicates {
		if err := model.ValidatePredicate(p.Normalize()); err != nil {
			return err
		}
	}
	if req.Trials <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTrials, req.Trials)
	}
	return nil
}

// Run evaluates req and returns the pass count for every declared predicate.
// The returned error is non-nil only for configuration errors (see Validate)
// or a missing Sampler/Evaluator; in both cases nothing was sampled.
func (e *Engine) Run(ctx context.Context, req model.Request) (model.Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if e.Sampler == nil || e.Evaluator == nil {
		return nil, errors.New("engine: sampler and evaluator are required")
	}

	predicates := make([]model.Predicate, len(req.Predicates))
	for i, p := range req.Predicates {
		predicates[i] = p.Normalize()
	}

	runID := uuid.NewString()
	logger := e.logger().With().Str("run_id", runID).Logger()

	ctx, span := tracer.Start(ctx, "evaluate",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.trials", req.Trials),
			attribute.Int("run.predicates", len(predicates)),

			// Langfuse trace-level attributes
			attribute.String("langfuse.trace.name", "prompt-patrol-run"),
			attribute.String("langfuse.session.id", runID),
			attribute.StringSlice("langfuse.trace.tags", []string{"prompt-patrol", "evaluate"}),
		))
	defer span.End()

	start := time.Now()
	logger.Debug().Int("trials", req.Trials).Int("predicates", len(predicates)).Msg("evaluation started")

	r := &run{
		engine:       e,
		conversation: req.Conversation,
		predicates:   predicates,
		tally:        newTally(predicates),
		logger:       logger,
	}

	var g errgroup.Group
	if e.Parallel > 0 {
		g.SetLimit(e.Parallel)
	}
	for trial := 1; trial <= req.Trials; trial++ {
		g.Go(func() error {
			r.trial(ctx, trial)
			return nil // trial failures never cancel siblings
		})
	}
	_ = g.Wait()

	result := r.tally.result()
	failed := int(r.failedTrials.Load())

	span.SetAttributes(
		attribute.Int("trials.failed", failed),
		attribute.Int("trials.sampled", req.Trials-failed),
	)
	logger.Info().
		Int("trials", req.Trials).
		Int("failed_trials", failed).
		Int("failed_evaluations", int(r.failedEvals.Load())).
		Dur("duration", time.Since(start)).
		Msg("evaluation finished")

	return result, nil
}

func (e *Engine) logger() *zerolog.Logger {
	if e.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return e.Logger
}

// run carries the state of one Run call shared by its trial goroutines.
type run struct {
	engine       *Engine
	conversation model.Conversation
	predicates   []model.Predicate
	tally        *tally
	logger       zerolog.Logger

	failedTrials atomic.Int64
	failedEvals  atomic.Int64
}

func (r *run) trial(ctx context.Context, trial int) {
	ctx, span := tracer.Start(ctx, "trial", trace.WithAttributes(attribute.Int("trial", trial)))
	defer span.End()

	logger := r.logger.With().Int("trial", trial).Logger()
	metrics := r.engine.Metrics

	response, err := r.sample(ctx)
	if err == nil && strings.TrimSpace(response) == "" {
		err = errEmptyResponse
	}
	if err != nil {
		r.failedTrials.Add(1)
		logger.Warn().Err(err).Msg("trial failed; no response to score")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordTrial(ctx, ppotel.OutcomeError)
		return
	}
	metrics.RecordTrial(ctx, ppotel.OutcomeSampled)
	span.SetAttributes(attribute.String("langfuse.observation.output", response))

	var g errgroup.Group
	for _, p := range r.predicates {
		g.Go(func() error {
			r.score(ctx, logger, p, response)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) score(ctx context.Context, logger zerolog.Logger, p model.Predicate, response string) {
	ctx, span := tracer.Start(ctx, "predicate", trace.WithAttributes(
		attribute.String("predicate.id", p.ID),
		attribute.String("predicate.kind", string(p.Kind)),
	))
	defer span.End()

	metrics := r.engine.Metrics

	passed, err := r.evaluate(ctx, p, response)
	if err != nil {
		r.failedEvals.Add(1)
		logger.Warn().Err(err).Str("predicate_id", p.ID).Msg("predicate evaluation failed; counted as no match")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordPredicate(ctx, string(p.Kind), ppotel.OutcomeError)
		return
	}

	span.SetAttributes(attribute.Bool("predicate.passed", passed))
	outcome := ppotel.OutcomeFail
	if passed {
		outcome = ppotel.OutcomePass
	}
	metrics.RecordPredicate(ctx, string(p.Kind), outcome)

	observer := r.engine.Observer
	snapshot := r.tally.record(p.ID, passed, observer != nil)
	if observer != nil {
		r.notify(logger, observer, model.Update{
			PredicateID: p.ID,
			Response:    response,
			Passed:      passed,
			Counts:      snapshot,
		})
	}
}

// sample calls the sampler, converting a panic into a trial error.
func (r *run) sample(ctx context.Context) (response string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sampler panicked: %v", rec)
		}
	}()
	return r.engine.Sampler.Sample(ctx, r.conversation)
}

// evaluate calls the evaluator, converting a panic into a pair error.
func (r *run) evaluate(ctx context.Context, p model.Predicate, response string) (passed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("predicate %s: evaluator panicked: %v", p.ID, rec)
		}
	}()
	return r.engine.Evaluator.Evaluate(ctx, p, response)
}

// notify delivers u, containing any observer panic.
func (r *run) notify(logger zerolog.Logger, observer Observer, u model.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn().Str("predicate_id", u.PredicateID).Interface("panic", rec).Msg("observer panicked; update dropped")
		}
	}()
	observer(u)
}

// tally is the mutex-guarded pass count per predicate id.
type tally struct {
	mu     sync.Mutex
	counts model.Result
}

func newTally(predicates []model.Predicate) *tally {
	counts := make(model.Result, len(predicates))
	for _, p := range predicates {
		counts[p.ID] = 0
	}
	return &tally{counts: counts}
}

// record counts a scored pair and, when snapshot is set, returns a copy of
// the counts including this pair.
func (t *tally) record(id string, passed, snapshot bool) model.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if passed {
		t.counts[id]++
	}
	if !snapshot {
		return nil
	}
	return t.counts.Clone()
}

func (t *tally) result() model.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts.Clone()
}
