// Package config loads prompt-patrol configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Explicitly set command-line flags (applied by the caller)
//  2. Environment variables (PROMPT_PATROL_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order:
//  1. .prompt-patrol.yaml in current directory
//  2. ~/.config/prompt-patrol/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = ".prompt-patrol.yaml"

// Config holds all prompt-patrol configuration.
type Config struct {
	// LLM settings
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"` // empty picks the provider default
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	MaxTokens      int64   `yaml:"max_tokens"`
	JudgeMaxTokens int64   `yaml:"judge_max_tokens"`
	Temperature    float64 `yaml:"temperature"` // negative leaves the provider default

	// Run settings
	Trials        int    `yaml:"trials"`
	Parallel      int    `yaml:"parallel"`
	Interval      string `yaml:"interval"`        // Go duration string, e.g. "10ms"
	JudgeCacheTTL string `yaml:"judge_cache_ttl"` // Go duration string, e.g. "5m"
	Timeout       string `yaml:"timeout"`         // Go duration string; "0" waits forever

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json", "console" or empty for auto
	Theme     string `yaml:"theme"`      // "dark" or "light"

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed durations (not from YAML, set after loading)
	IntervalDuration      time.Duration `yaml:"-"`
	JudgeCacheTTLDuration time.Duration `yaml:"-"`
	TimeoutDuration       time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Provider:       "openai",
		MaxTokens:      1024,
		JudgeMaxTokens: 16,
		Temperature:    0.99,
		Trials:         1,
		Parallel:       10,
		Interval:       "10ms",
		JudgeCacheTTL:  "0",
		Timeout:        "0",
		LogLevel:       "info",
		Theme:          "dark",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.ParseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDurations refreshes the parsed duration fields from their string
// forms. Call it again after overriding the strings.
func (c *Config) ParseDurations() error {
	var err error
	c.IntervalDuration, err = parseDurationOrDisable(c.Interval, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", c.Interval, err)
	}
	c.JudgeCacheTTLDuration, err = parseDurationOrDisable(c.JudgeCacheTTL, 0)
	if err != nil {
		return fmt.Errorf("invalid judge cache TTL %q: %w", c.JudgeCacheTTL, err)
	}
	c.TimeoutDuration, err = parseDurationOrDisable(c.Timeout, 0)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(fileName); err == nil {
		return fileName, data, nil
	}

	// 2. ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "prompt-patrol", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	setString(&cfg.Provider, file.Provider)
	setString(&cfg.Model, file.Model)
	setString(&cfg.BaseURL, file.BaseURL)
	setString(&cfg.APIKey, file.APIKey)
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.JudgeMaxTokens > 0 {
		cfg.JudgeMaxTokens = file.JudgeMaxTokens
	}
	if file.Temperature != 0 {
		cfg.Temperature = file.Temperature
	}
	if file.Trials > 0 {
		cfg.Trials = file.Trials
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	setString(&cfg.Interval, file.Interval)
	setString(&cfg.JudgeCacheTTL, file.JudgeCacheTTL)
	setString(&cfg.Timeout, file.Timeout)
	setString(&cfg.LogLevel, file.LogLevel)
	setString(&cfg.LogFormat, file.LogFormat)
	setString(&cfg.Theme, file.Theme)
	setString(&cfg.OTELEndpoint, file.OTELEndpoint)
	setString(&cfg.OTELHeaders, file.OTELHeaders)
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	setString(&cfg.Provider, os.Getenv("PROMPT_PATROL_PROVIDER"))
	setString(&cfg.Model, os.Getenv("PROMPT_PATROL_MODEL"))
	setString(&cfg.BaseURL, os.Getenv("PROMPT_PATROL_BASE_URL"))
	setString(&cfg.APIKey, os.Getenv("PROMPT_PATROL_API_KEY"))
	setString(&cfg.Interval, os.Getenv("PROMPT_PATROL_INTERVAL"))
	setString(&cfg.JudgeCacheTTL, os.Getenv("PROMPT_PATROL_JUDGE_CACHE_TTL"))
	setString(&cfg.Timeout, os.Getenv("PROMPT_PATROL_TIMEOUT"))
	setString(&cfg.LogLevel, os.Getenv("PROMPT_PATROL_LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("PROMPT_PATROL_LOG_FORMAT"))
	setString(&cfg.Theme, os.Getenv("PROMPT_PATROL_THEME"))
	setString(&cfg.OTELEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	setString(&cfg.OTELHeaders, os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

	for _, n := range []struct {
		env string
		dst *int
	}{
		{"PROMPT_PATROL_TRIALS", &cfg.Trials},
		{"PROMPT_PATROL_PARALLEL", &cfg.Parallel},
	} {
		if v := os.Getenv(n.env); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", n.env, v, err)
			}
			*n.dst = i
		}
	}
	for _, n := range []struct {
		env string
		dst *int64
	}{
		{"PROMPT_PATROL_MAX_TOKENS", &cfg.MaxTokens},
		{"PROMPT_PATROL_JUDGE_MAX_TOKENS", &cfg.JudgeMaxTokens},
	} {
		if v := os.Getenv(n.env); v != "" {
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", n.env, v, err)
			}
			*n.dst = i
		}
	}
	if v := os.Getenv("PROMPT_PATROL_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PROMPT_PATROL_TEMPERATURE %q: %w", v, err)
		}
		cfg.Temperature = f
	}

	// API key fallbacks
	for _, env := range []string{"AZURE_OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
		if cfg.APIKey != "" {
			break
		}
		cfg.APIKey = os.Getenv(env)
	}

	// Azure base URL fallback
	if cfg.BaseURL == "" {
		if rn := os.Getenv("AZURE_RESOURCE_NAME"); rn != "" {
			switch cfg.Provider {
			case "anthropic":
				cfg.BaseURL = fmt.Sprintf("https://%s.services.ai.azure.com/anthropic/", rn)
			case "openai":
				cfg.BaseURL = fmt.Sprintf("https://%s.openai.azure.com/openai/v1", rn)
			}
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// IsAzureEndpoint returns true if the URL is an Azure endpoint.
func IsAzureEndpoint(url string) bool {
	return strings.Contains(url, ".azure.com") || strings.Contains(url, ".azure.us")
}
