package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timvw/prompt-patrol/internal/config"
	"github.com/timvw/prompt-patrol/internal/logging"
	telem "github.com/timvw/prompt-patrol/internal/otel"
	"github.com/timvw/prompt-patrol/internal/pacing"
	"github.com/timvw/prompt-patrol/internal/sampler"
)

var (
	// Global flags.
	flagProvider    string
	flagModel       string
	flagBaseURL     string
	flagAPIKey      string
	flagMaxTokens   int64
	flagTemperature float64
	flagLogLevel    string
	flagLogFormat   string
)

var (
	// cfg is the resolved configuration: defaults -> file -> env -> flags.
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "prompt-patrol",
	Short: "Measure how often an LLM's answers satisfy a set of predicates",
	Long: `prompt-patrol samples a model repeatedly for the same conversation and
reports, for every predicate, in how many trials the response satisfied it.

Pattern predicates are regular expressions. Semantic predicates are yes/no
questions answered by the same model acting as a judge.

Configuration is loaded from .prompt-patrol.yaml, ~/.config/prompt-patrol/config.yaml
and PROMPT_PATROL_* environment variables. Flags override both.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command. SIGINT and SIGTERM cancel in-flight calls.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "LLM provider: openai, anthropic, compat, stub (default: openai)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "LLM model name (default: gpt-4o-mini for openai, claude-haiku-4-5 for anthropic, llama3.1 for compat)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "override LLM API base URL")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "override LLM API key")
	rootCmd.PersistentFlags().Int64Var(&flagMaxTokens, "max-tokens", 0, "max completion tokens for sampled responses (default: 1024)")
	rootCmd.PersistentFlags().Float64Var(&flagTemperature, "temperature", 0, "sampling temperature; negative leaves the provider default (default: 0.99)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: json, console (default: console on a terminal, json otherwise)")
}

// loadConfig resolves cfg and the logger before any subcommand runs.
func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = flagProvider
	}
	if flags.Changed("model") {
		cfg.Model = flagModel
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = flagBaseURL
	}
	if flags.Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens = flagMaxTokens
	}
	if flags.Changed("temperature") {
		cfg.Temperature = flagTemperature
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}

	logger, err = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	if cfg.ConfigFile != "" {
		logger.Debug().Str("path", cfg.ConfigFile).Msg("config loaded")
	}
	return nil
}

// backendRole selects the token budget and the offline stub for a backend.
type backendRole int

const (
	roleSampler backendRole = iota
	roleJudge
)

// newBackend returns the configured backend, paced by limiter.
func newBackend(role backendRole, limiter *pacing.Limiter, metrics *telem.Metrics) (sampler.Backend, error) {
	maxTokens := cfg.MaxTokens
	if role == roleJudge {
		maxTokens = cfg.JudgeMaxTokens
	}

	var (
		b   sampler.Backend
		err error
	)
	switch cfg.Provider {
	case "openai":
		b, err = newOpenAIBackend(maxTokens, metrics)
	case "anthropic":
		b, err = newAnthropicBackend(maxTokens, metrics)
	case "compat":
		b = newCompatBackend(maxTokens, metrics)
	case "stub":
		b = newStubBackend(role)
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: openai, anthropic, compat, stub)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return sampler.Paced(b, limiter), nil
}

// newOpenAIBackend creates an OpenAI backend with the resolved config.
func newOpenAIBackend(maxTokens int64, metrics *telem.Metrics) (sampler.Backend, error) {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key found. Set PROMPT_PATROL_API_KEY, AZURE_OPENAI_API_KEY, or OPENAI_API_KEY")
	}

	return sampler.NewOpenAI(sampler.OpenAIConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        model,
		MaxTokens:    maxTokens,
		Temperature:  cfg.Temperature,
		ExtraHeaders: azureHeaders(),
		Metrics:      metrics,
	}), nil
}

// newAnthropicBackend creates an Anthropic backend with the resolved config.
func newAnthropicBackend(maxTokens int64, metrics *telem.Metrics) (sampler.Backend, error) {
	model := cfg.Model
	if model == "" {
		model = "claude-haiku-4-5"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key found. Set PROMPT_PATROL_API_KEY, AZURE_OPENAI_API_KEY, or ANTHROPIC_API_KEY")
	}

	// The Anthropic SDK appends /v1/messages to the base URL; an empty base
	// URL uses https://api.anthropic.com/.
	return sampler.NewAnthropic(sampler.AnthropicConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        model,
		MaxTokens:    maxTokens,
		Temperature:  cfg.Temperature,
		ExtraHeaders: azureHeaders(),
		Metrics:      metrics,
	}), nil
}

// newCompatBackend creates a backend for a local OpenAI-compatible server.
func newCompatBackend(maxTokens int64, metrics *telem.Metrics) sampler.Backend {
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	temperature := float32(0)
	if cfg.Temperature > 0 {
		temperature = float32(cfg.Temperature)
	}
	return sampler.NewCompat(sampler.CompatConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       model,
		MaxTokens:   int(maxTokens),
		Temperature: temperature,
		Metrics:     metrics,
	})
}

// newStubBackend returns offline canned responses: numbered mock responses
// for sampling and a constant "no" from the judge.
func newStubBackend(role backendRole) sampler.Backend {
	if role == roleJudge {
		return sampler.NewFixedStub("no")
	}
	return sampler.NewSequenceStub("This is a mock response %d")
}

// azureHeaders returns the extra "api-key" header Azure endpoints need next
// to the SDK's own auth header.
func azureHeaders() map[string]string {
	headers := map[string]string{}
	if os.Getenv("AZURE_RESOURCE_NAME") != "" || config.IsAzureEndpoint(cfg.BaseURL) {
		headers["api-key"] = cfg.APIKey
	}
	return headers
}
