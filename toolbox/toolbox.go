// Package toolbox provides the concrete tools the agent loop can call:
// file_manager, terminal, web_search and web_fetch. Each tool publishes a
// JSON schema reflected from its parameter struct and validates its input
// before execution.
package toolbox

import (
	"fmt"
	"time"

	"github.com/martinemde/taskrouter/agentloop"
)

// Config configures the default tool set.
type Config struct {
	WorkDir        string
	MaxReadBytes   int64
	CommandTimeout time.Duration
	SearchURL      string
	SearchResults  int
	UserAgent      string
	HTTPTimeout    time.Duration
	// Disabled lists tool names to leave unregistered.
	Disabled []string
}

// RegisterDefaults registers the built-in tools on reg and returns the names
// registered.
func RegisterDefaults(reg *agentloop.ToolRegistry, cfg Config) ([]string, error) {
	fm, err := NewFileManager(cfg.WorkDir, cfg.MaxReadBytes)
	if err != nil {
		return nil, fmt.Errorf("file manager: %w", err)
	}
	tools := []agentloop.Tool{
		fm,
		NewTerminal(fm.Root(), cfg.CommandTimeout),
		NewWebSearch(cfg.SearchURL, cfg.UserAgent, cfg.HTTPTimeout, cfg.SearchResults),
		NewWebFetch(nil, cfg.UserAgent, cfg.HTTPTimeout),
	}

	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}

	var names []string
	for _, t := range tools {
		if disabled[t.Name()] {
			continue
		}
		reg.Register(t)
		names = append(names, t.Name())
	}
	return names, nil
}
