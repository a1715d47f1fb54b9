package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/timvw/prompt-patrol/internal/engine"
	"github.com/timvw/prompt-patrol/internal/events"
	"github.com/timvw/prompt-patrol/internal/model"
	telem "github.com/timvw/prompt-patrol/internal/otel"
	"github.com/timvw/prompt-patrol/internal/pacing"
	"github.com/timvw/prompt-patrol/internal/predicate"
	"github.com/timvw/prompt-patrol/internal/progress"
)

var (
	flagTrials           int
	flagPrompt           string
	flagSystem           string
	flagConversation     string
	flagConversationFile string
	flagPredicates       string
	flagPredicatesFile   string
	flagJudgeMaxTokens   int64
	flagParallel         int
	flagInterval         string
	flagJudgeCacheTTL    string
	flagTimeout          string
	flagUpdates          bool
	flagByResponse       bool
	flagTUI              bool
	flagTheme            string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample a model N times and count predicate passes",
	Long: `Send the same conversation to the model --trials times and apply every
predicate to every response. Prints a JSON object mapping each predicate id
to the number of responses that satisfied it.

Predicates are a JSON (or, from a file, YAML) list of objects:

  [{"type": "pattern", "id": "mock", "content": "\\bmock\\b"},
   {"type": "semantic", "id": "polite", "content": "Is the text polite?"}]

A failed model call or a broken predicate counts as "did not pass" and is
logged; it never aborts the run. Only invalid input is fatal.`,
	Example: `  prompt-patrol run -n 20 --prompt "Tell me a fruit" \
    --predicates '[{"type":"pattern","id":"banana","content":"(?i)banana"}]'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluation(cmd)
	},
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().IntVarP(&flagTrials, "trials", "n", 0, "number of sampled responses (default: 1)")
	runCmd.Flags().Int64Var(&flagJudgeMaxTokens, "judge-max-tokens", 0, "max completion tokens for judge answers (default: 16)")
	runCmd.Flags().IntVar(&flagParallel, "parallel", 0, "max trials in flight (default: 10)")
	runCmd.Flags().StringVar(&flagInterval, "interval", "", `minimum spacing between model calls, e.g. "10ms"; "0" disables (default: 10ms)`)
	runCmd.Flags().StringVar(&flagJudgeCacheTTL, "judge-cache-ttl", "", `reuse judge verdicts for identical responses, e.g. "5m" (default: off)`)
	runCmd.Flags().StringVar(&flagTimeout, "timeout", "", `deadline for the whole run, e.g. "2m" (default: none)`)
	runCmd.Flags().BoolVar(&flagUpdates, "updates", false, "stream one JSON line per scored response and predicate to stderr")
	runCmd.Flags().BoolVar(&flagByResponse, "by-response", false, "also print which predicates each distinct response satisfied")
	runCmd.Flags().BoolVar(&flagTUI, "tui", false, "show a live dashboard on stderr")
	runCmd.Flags().StringVar(&flagTheme, "theme", "", "dashboard color theme: dark, light (default: dark)")
	rootCmd.AddCommand(runCmd)
}

// addInputFlags registers the conversation and predicate flags shared by
// run and validate.
func addInputFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagPrompt, "prompt", "", "user prompt (shorthand for a one-message conversation)")
	c.Flags().StringVar(&flagSystem, "system", "", "optional system message used with --prompt")
	c.Flags().StringVar(&flagConversation, "conversation", "", `conversation as a JSON list of {"role","content"} messages`)
	c.Flags().StringVar(&flagConversationFile, "conversation-file", "", "conversation file (JSON or YAML)")
	c.Flags().StringVar(&flagPredicates, "predicates", "", `predicates as a JSON list of {"type","id","content"} objects`)
	c.Flags().StringVar(&flagPredicatesFile, "predicates-file", "", "predicates file (JSON or YAML)")
	c.MarkFlagsMutuallyExclusive("prompt", "conversation", "conversation-file")
	c.MarkFlagsMutuallyExclusive("predicates", "predicates-file")
}

// applyRunFlags overrides cfg with the run flags that were set explicitly.
func applyRunFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("trials") {
		cfg.Trials = flagTrials
	}
	if flags.Changed("judge-max-tokens") {
		cfg.JudgeMaxTokens = flagJudgeMaxTokens
	}
	if flags.Changed("parallel") {
		cfg.Parallel = flagParallel
	}
	if flags.Changed("interval") {
		cfg.Interval = flagInterval
	}
	if flags.Changed("judge-cache-ttl") {
		cfg.JudgeCacheTTL = flagJudgeCacheTTL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if flags.Changed("theme") {
		cfg.Theme = flagTheme
	}
	return cfg.ParseDurations()
}

// buildRequest assembles the request from the input flags.
func buildRequest(trials int) (model.Request, error) {
	var (
		conv model.Conversation
		err  error
	)
	switch {
	case flagConversation != "":
		conv, err = model.ParseConversation([]byte(flagConversation))
	case flagConversationFile != "":
		conv, err = model.LoadConversationFile(flagConversationFile)
	case flagPrompt != "":
		conv = model.UserPrompt(flagSystem, flagPrompt)
	default:
		err = fmt.Errorf("%w: one of --prompt, --conversation or --conversation-file is required", model.ErrConfig)
	}
	if err != nil {
		return model.Request{}, err
	}

	var preds []model.Predicate
	switch {
	case flagPredicates != "":
		preds, err = model.ParsePredicates([]byte(flagPredicates))
	case flagPredicatesFile != "":
		preds, err = model.LoadPredicatesFile(flagPredicatesFile)
	}
	if err != nil {
		return model.Request{}, err
	}

	return model.Request{Conversation: conv, Predicates: preds, Trials: trials}, nil
}

func hasSemantic(preds []model.Predicate) bool {
	for _, p := range preds {
		if p.Normalize().Kind == model.KindSemantic {
			return true
		}
	}
	return false
}

func runEvaluation(cmd *cobra.Command) error {
	if err := applyRunFlags(cmd); err != nil {
		return err
	}
	req, err := buildRequest(cfg.Trials)
	if err != nil {
		return err
	}
	// Fail on bad input before contacting any backend.
	if err := engine.Validate(req); err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.TimeoutDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TimeoutDuration)
		defer cancel()
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("otel init failed; continuing without telemetry")
	}
	defer func() {
		// The run context may already be cancelled; flush on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}

	// One limiter spaces every outbound call, sampling and judging alike.
	limiter := pacing.New(cfg.IntervalDuration)

	backend, err := newBackend(roleSampler, limiter, metrics)
	if err != nil {
		return err
	}
	evaluator := &predicate.Evaluator{Metrics: metrics}
	if hasSemantic(req.Predicates) {
		judge, err := newBackend(roleJudge, limiter, metrics)
		if err != nil {
			return err
		}
		evaluator.Judge = judge
		if cfg.JudgeCacheTTLDuration > 0 {
			evaluator.Cache = predicate.NewVerdictCache(cfg.JudgeCacheTTLDuration)
		}
	}

	var (
		recorder  *events.Recorder
		dashboard *progress.Dashboard
		observers []func(model.Update)
	)
	if flagByResponse {
		recorder = events.NewRecorder()
		observers = append(observers, recorder.Observe)
	}
	if flagUpdates {
		observers = append(observers, events.NewJSONLWriter(os.Stderr))
	}
	if flagTUI {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			ids := make([]string, len(req.Predicates))
			for i, p := range req.Predicates {
				ids[i] = p.ID
			}
			dashboard = progress.NewDashboard(ids, req.Trials, progress.ThemeByName(cfg.Theme), os.Stderr)
			dashboard.Start()
			observers = append(observers, dashboard.Observe)
		} else {
			logger.Warn().Msg("--tui needs a terminal on stderr; dashboard disabled")
		}
	}

	eng := &engine.Engine{
		Sampler:   backend,
		Evaluator: evaluator,
		Observer:  events.Tee(observers...),
		Parallel:  cfg.Parallel,
		Logger:    &logger,
		Metrics:   metrics,
	}

	logger.Debug().
		Str("provider", backend.Provider()).
		Str("model", backend.Model()).
		Int("trials", req.Trials).
		Int("parallel", cfg.Parallel).
		Dur("interval", limiter.Interval()).
		Msg("starting run")

	result, err := eng.Run(ctx, req)
	if dashboard != nil {
		if derr := dashboard.Finish(err); derr != nil {
			logger.Warn().Err(derr).Msg("dashboard failed")
		}
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Warn().Err(ctx.Err()).Msg("run interrupted; counts cover completed calls only")
	}

	return printResult(result, recorder)
}

// runOutput is the --by-response output shape.
type runOutput struct {
	Counts     model.Result        `json:"counts"`
	ByResponse map[string][]string `json:"by_response"`
}

func printResult(result model.Result, recorder *events.Recorder) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if recorder == nil {
		return enc.Encode(result)
	}
	return enc.Encode(runOutput{Counts: result, ByResponse: recorder.ByResponse()})
}
