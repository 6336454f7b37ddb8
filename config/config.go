// Package config loads taskrouter settings from the environment.
//
// Values come from TASKROUTER_* environment variables. Load first reads any
// .env files it is given; variables already set in the process win over the
// file contents.
//
// LLM:
//   - TASKROUTER_LLM_PROVIDER: openai, anthropic, gemini, ollama, ... (default: openai)
//   - TASKROUTER_LLM_MODEL: model id (default: the provider's catalog default)
//   - TASKROUTER_LLM_API_KEY: API key (default: the provider's conventional
//     variable, e.g. OPENAI_API_KEY)
//   - TASKROUTER_LLM_MAX_TOKENS, TASKROUTER_LLM_TEMPERATURE
//
// Agent:
//   - TASKROUTER_AGENT_HISTORY_WINDOW (default: 3)
//   - TASKROUTER_AGENT_ITERATION_DELAY (default: 0s)
//   - TASKROUTER_AGENT_MAX_TOTAL_TOKENS (default: 0, unlimited)
//   - TASKROUTER_AGENT_DIRECT_MAX_TOKENS (default: 500)
//   - TASKROUTER_AGENT_LOOP_MAX_TOKENS (default: 1500)
//   - TASKROUTER_AGENT_EXPERIENCE_RESULTS (default: 3)
//   - TASKROUTER_AGENT_DIRECT_QA_THRESHOLD (default: 0.7)
//   - TASKROUTER_AGENT_LANGUAGES (default: en,id)
//
// Store, HTTP, Log and Tools settings are listed on their structs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/martinemde/taskrouter/unifiedllm"
	"golang.org/x/text/language"
)

// Prefix is prepended to every variable name.
const Prefix = "TASKROUTER_"

// Config holds all application configuration.
type Config struct {
	LLM   LLMConfig   `envPrefix:"LLM_" json:"llm"`
	Agent AgentConfig `envPrefix:"AGENT_" json:"agent"`
	Store StoreConfig `envPrefix:"STORE_" json:"store"`
	HTTP  HTTPConfig  `envPrefix:"HTTP_" json:"http"`
	Log   LogConfig   `envPrefix:"LOG_" json:"log"`
	Tools ToolsConfig `envPrefix:"TOOLS_" json:"tools"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider    string        `env:"PROVIDER" envDefault:"openai" json:"provider"`
	Model       string        `env:"MODEL" json:"model"`
	APIKey      string        `env:"API_KEY" json:"-"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"2048" json:"max_tokens"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.3" json:"temperature"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"60s" json:"timeout"`
}

// AgentConfig tunes the orchestrator and classifier.
type AgentConfig struct {
	HistoryWindow     int           `env:"HISTORY_WINDOW" envDefault:"3" json:"history_window"`
	IterationDelay    time.Duration `env:"ITERATION_DELAY" envDefault:"0s" json:"iteration_delay"`
	MaxTotalTokens    int           `env:"MAX_TOTAL_TOKENS" envDefault:"0" json:"max_total_tokens"`
	DirectMaxTokens   int           `env:"DIRECT_MAX_TOKENS" envDefault:"500" json:"direct_max_tokens"`
	LoopMaxTokens     int           `env:"LOOP_MAX_TOKENS" envDefault:"1500" json:"loop_max_tokens"`
	ExperienceResults int           `env:"EXPERIENCE_RESULTS" envDefault:"3" json:"experience_results"`
	DirectQAThreshold float64       `env:"DIRECT_QA_THRESHOLD" envDefault:"0.7" json:"direct_qa_threshold"`
	Languages         []string      `env:"LANGUAGES" envDefault:"en,id" envSeparator:"," json:"languages"`
}

// StoreConfig locates the SQLite database that keeps sessions and
// experience. Enabled=false runs without persistence.
type StoreConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true" json:"enabled"`
	Path    string `env:"PATH" envDefault:"data/taskrouter.db" json:"path"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr           string   `env:"ADDR" envDefault:":8080" json:"addr"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:"," json:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `env:"LEVEL" envDefault:"info" json:"level"`
	Journal bool   `env:"JOURNAL" envDefault:"true" json:"journal"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	WorkDir        string        `env:"WORKDIR" envDefault:"workspace" json:"workdir"`
	MaxReadBytes   int64         `env:"MAX_READ_BYTES" envDefault:"1048576" json:"max_read_bytes"`
	CommandTimeout time.Duration `env:"COMMAND_TIMEOUT" envDefault:"30s" json:"command_timeout"`
	SearchURL      string        `env:"SEARCH_URL" envDefault:"https://html.duckduckgo.com/html/" json:"search_url"`
	SearchResults  int           `env:"SEARCH_RESULTS" envDefault:"5" json:"search_results"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"20s" json:"http_timeout"`
	Disabled       []string      `env:"DISABLED" envSeparator:"," json:"disabled"`
}

// Load reads the given .env files, skipping ones that do not exist, then
// parses and validates the process environment.
func Load(dotenvFiles ...string) (*Config, error) {
	for _, path := range dotenvFiles {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses configuration from environ instead of the process
// environment. Keys include the TASKROUTER_ prefix.
func FromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = unifiedllm.DefaultModel(cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerAPIKey(cfg.LLM.Provider, opts.Environment)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerAPIKeys are the conventional variables each provider SDK reads.
var providerAPIKeys = map[string][]string{
	"openai":     {"OPENAI_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"groq":       {"GROQ_API_KEY"},
	"mistral":    {"MISTRAL_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
	"deepseek":   {"DEEPSEEK_API_KEY"},
}

func providerAPIKey(provider string, environ map[string]string) string {
	lookup := os.Getenv
	if environ != nil {
		lookup = func(k string) string { return environ[k] }
	}
	for _, name := range providerAPIKeys[provider] {
		if v := lookup(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Provider == "" {
		errs = append(errs, errors.New("LLM_PROVIDER is required"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be within [0, 1], got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_TOKENS must not be negative, got %d", c.LLM.MaxTokens))
	}
	if c.Agent.DirectQAThreshold < 0 || c.Agent.DirectQAThreshold > 1 {
		errs = append(errs, fmt.Errorf("AGENT_DIRECT_QA_THRESHOLD must be within [0, 1], got %v", c.Agent.DirectQAThreshold))
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"AGENT_HISTORY_WINDOW", c.Agent.HistoryWindow},
		{"AGENT_MAX_TOTAL_TOKENS", c.Agent.MaxTotalTokens},
		{"AGENT_DIRECT_MAX_TOKENS", c.Agent.DirectMaxTokens},
		{"AGENT_LOOP_MAX_TOKENS", c.Agent.LoopMaxTokens},
		{"AGENT_EXPERIENCE_RESULTS", c.Agent.ExperienceResults},
		{"TOOLS_SEARCH_RESULTS", c.Tools.SearchResults},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.value))
		}
	}
	if c.Agent.IterationDelay < 0 {
		errs = append(errs, fmt.Errorf("AGENT_ITERATION_DELAY must not be negative, got %s", c.Agent.IterationDelay))
	}
	if _, err := c.LanguageTags(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// LanguageTags parses Agent.Languages.
func (c *Config) LanguageTags() ([]language.Tag, error) {
	tags := make([]language.Tag, 0, len(c.Agent.Languages))
	for _, s := range c.Agent.Languages {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		tag, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("AGENT_LANGUAGES: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
