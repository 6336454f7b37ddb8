package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFromMapDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)

	assert.Equal(t, 3, cfg.Agent.HistoryWindow)
	assert.Equal(t, time.Duration(0), cfg.Agent.IterationDelay)
	assert.Equal(t, 0, cfg.Agent.MaxTotalTokens)
	assert.Equal(t, 500, cfg.Agent.DirectMaxTokens)
	assert.Equal(t, 1500, cfg.Agent.LoopMaxTokens)
	assert.Equal(t, 0.7, cfg.Agent.DirectQAThreshold)
	assert.Equal(t, []string{"en", "id"}, cfg.Agent.Languages)

	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "data/taskrouter.db", cfg.Store.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Tools.CommandTimeout)
	assert.Equal(t, 5, cfg.Tools.SearchResults)
	assert.Empty(t, cfg.Tools.Disabled)
}

func TestFromMapOverrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"TASKROUTER_LLM_PROVIDER":              "Gemini",
		"GEMINI_API_KEY":                       "g-key",
		"TASKROUTER_AGENT_ITERATION_DELAY":     "250ms",
		"TASKROUTER_AGENT_MAX_TOTAL_TOKENS":    "4000",
		"TASKROUTER_AGENT_DIRECT_QA_THRESHOLD": "0.9",
		"TASKROUTER_AGENT_LANGUAGES":           "en",
		"TASKROUTER_TOOLS_DISABLED":            "terminal,web_search",
		"TASKROUTER_LOG_LEVEL":                 "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.IterationDelay)
	assert.Equal(t, 4000, cfg.Agent.MaxTotalTokens)
	assert.Equal(t, 0.9, cfg.Agent.DirectQAThreshold)
	assert.Equal(t, []string{"terminal", "web_search"}, cfg.Tools.Disabled)

	tags, err := cfg.LanguageTags()
	require.NoError(t, err)
	assert.Equal(t, []language.Tag{language.English}, tags)
}

func TestExplicitAPIKeyWins(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"TASKROUTER_LLM_API_KEY": "explicit",
		"OPENAI_API_KEY":         "conventional",
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"temperature", map[string]string{"TASKROUTER_LLM_TEMPERATURE": "1.5"}, "LLM_TEMPERATURE must be within [0, 1]"},
		{"threshold", map[string]string{"TASKROUTER_AGENT_DIRECT_QA_THRESHOLD": "-0.1"}, "AGENT_DIRECT_QA_THRESHOLD must be within [0, 1]"},
		{"budget", map[string]string{"TASKROUTER_AGENT_MAX_TOTAL_TOKENS": "-1"}, "AGENT_MAX_TOTAL_TOKENS must not be negative"},
		{"delay", map[string]string{"TASKROUTER_AGENT_ITERATION_DELAY": "-1s"}, "AGENT_ITERATION_DELAY must not be negative"},
		{"language", map[string]string{"TASKROUTER_AGENT_LANGUAGES": "en,not a language"}, "AGENT_LANGUAGES"},
		{"log level", map[string]string{"TASKROUTER_LOG_LEVEL": "loud"}, "LOG_LEVEL must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromMapBadValue(t *testing.T) {
	_, err := FromMap(map[string]string{"TASKROUTER_AGENT_HISTORY_WINDOW": "three"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse environment")
}

func TestLoadReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TASKROUTER_HTTP_ADDR=127.0.0.1:9999\nTASKROUTER_STORE_PATH=/tmp/from-file.db\n"), 0o644))

	// Process variables take precedence over the file.
	t.Setenv("TASKROUTER_STORE_PATH", "/tmp/from-env.db")
	t.Cleanup(func() { _ = os.Unsetenv("TASKROUTER_HTTP_ADDR") })

	cfg, err := Load(filepath.Join(dir, "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Addr)
	assert.Equal(t, "/tmp/from-env.db", cfg.Store.Path)
}
