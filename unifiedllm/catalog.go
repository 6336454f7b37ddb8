package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in catalog used to pick a default model per provider
// and to route requests that name a model but no provider. The first entry
// of each provider is its default.
var Models = []ModelInfo{
	// OpenAI
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini", ContextWindow: 128000, MaxOutput: 16384, Aliases: []string{"4o-mini"}},
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", ContextWindow: 128000, MaxOutput: 16384, Aliases: []string{"4o"}},

	// Anthropic
	{ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, MaxOutput: 16384, Aliases: []string{"sonnet"}},
	{ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5", ContextWindow: 200000, MaxOutput: 8192, Aliases: []string{"haiku"}},

	// Gemini
	{ID: "gemini-2.0-flash", Provider: "gemini", DisplayName: "Gemini 2.0 Flash", ContextWindow: 1048576, MaxOutput: 8192, Aliases: []string{"gemini-flash"}},

	// Local
	{ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1 (Ollama)", ContextWindow: 131072, MaxOutput: 4096},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModel returns the default model ID for a provider, or "" if the
// provider is not in the catalog.
func DefaultModel(provider string) string {
	for i := range Models {
		if Models[i].Provider == provider {
			return Models[i].ID
		}
	}
	return ""
}
