package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/martinemde/taskrouter/agentloop"
	"github.com/martinemde/taskrouter/config"
	"github.com/martinemde/taskrouter/store"
	"github.com/martinemde/taskrouter/toolbox"
	"github.com/martinemde/taskrouter/unifiedllm"
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *unifiedllm.Client
	registry *agentloop.ToolRegistry
	store    *store.Store
	emitter  *agentloop.EventEmitter
	orch     *agentloop.Orchestrator
}

func newClassifier(cfg *config.Config) (*agentloop.Classifier, error) {
	langs, err := cfg.LanguageTags()
	if err != nil {
		return nil, err
	}
	cc := agentloop.DefaultClassifierConfig()
	if len(langs) > 0 {
		cc.Languages = langs
	}
	cc.DirectQAThreshold = cfg.Agent.DirectQAThreshold
	return agentloop.NewClassifier(cc), nil
}

func newRegistry(cfg *config.Config) (*agentloop.ToolRegistry, error) {
	reg := agentloop.NewToolRegistry()
	_, err := toolbox.RegisterDefaults(reg, toolbox.Config{
		WorkDir:        cfg.Tools.WorkDir,
		MaxReadBytes:   cfg.Tools.MaxReadBytes,
		CommandTimeout: cfg.Tools.CommandTimeout,
		SearchURL:      cfg.Tools.SearchURL,
		SearchResults:  cfg.Tools.SearchResults,
		HTTPTimeout:    cfg.Tools.HTTPTimeout,
		Disabled:       cfg.Tools.Disabled,
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// newClient builds the completion client for the configured provider. Gemini
// goes through the genai SDK; every other provider through gollm.
func newClient(ctx context.Context, cfg config.LLMConfig) (*unifiedllm.Client, error) {
	var (
		adapter unifiedllm.ProviderAdapter
		err     error
	)
	switch cfg.Provider {
	case "gemini":
		adapter, err = unifiedllm.NewGeminiAdapter(ctx, cfg.APIKey, cfg.Model)
	default:
		adapter, err = unifiedllm.NewGollmAdapter(cfg.Provider, cfg.APIKey,
			unifiedllm.WithModel(cfg.Model),
			unifiedllm.WithMaxTokens(cfg.MaxTokens),
			unifiedllm.WithTemperature(cfg.Temperature),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", cfg.Provider, err)
	}

	opts := []unifiedllm.ClientOption{
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithDefaultModel(cfg.Model),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, unifiedllm.WithMiddleware(timeoutMiddleware(cfg.Timeout)))
	}
	return unifiedllm.NewClient(opts...), nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	langs, _ := cfg.LanguageTags()

	a.registry, err = newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	a.client, err = newClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	opts := []agentloop.Option{
		agentloop.WithConfig(agentloop.Config{
			HistoryWindow:     cfg.Agent.HistoryWindow,
			IterationDelay:    cfg.Agent.IterationDelay,
			MaxTotalTokens:    cfg.Agent.MaxTotalTokens,
			DirectMaxTokens:   cfg.Agent.DirectMaxTokens,
			LoopMaxTokens:     cfg.Agent.LoopMaxTokens,
			ExperienceResults: cfg.Agent.ExperienceResults,
		}),
		agentloop.WithClassifier(classifier),
		agentloop.WithValidator(agentloop.NewValidator(agentloop.ValidatorConfig{Languages: langs})),
		agentloop.WithLogger(logger.With("component", "orchestrator")),
	}

	if cfg.Store.Enabled && cfg.Store.Path != "" {
		a.store, err = store.Open(cfg.Store.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		opts = append(opts, agentloop.WithLearner(a.store), agentloop.WithSessionStore(a.store))
	}

	a.emitter = agentloop.NewEventEmitter(256)
	opts = append(opts, agentloop.WithEmitter(a.emitter))

	a.orch = agentloop.NewOrchestrator(a.client, a.registry, opts...)
	return a, nil
}

func (a *app) close() error {
	var errs []error
	a.emitter.Close()
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
