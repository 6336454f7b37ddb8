// Package unifiedllm provides the chat-completion client used by the task
// router. It presents a provider-agnostic Chat/Complete interface over
// concrete backends (gollm for OpenAI/Anthropic/Ollama, genai for Gemini),
// keeps cumulative token statistics, and classifies provider failures so the
// caller can tell rate limiting apart from everything else.
//
// # Architecture
//
//   - ProviderAdapter: one backend (GollmAdapter, GeminiAdapter).
//   - Client: routes requests to adapters, applies middleware and
//     accumulates Usage across calls until ResetTokenStats.
//   - Retry: generic retry loop driven by a RetryPolicy. The policy decides
//     which errors are retried; RateLimitRetryPolicy retries only
//     RateLimitError.
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter))
//
//	resp, err := unifiedllm.Retry(ctx, unifiedllm.RateLimitRetryPolicy(),
//	    func(ctx context.Context) (*unifiedllm.Response, error) {
//	        return client.Chat(ctx, []unifiedllm.Message{
//	            unifiedllm.UserMessage("Hello"),
//	        }, 0.2, 256)
//	    })
//	fmt.Println(resp.Content, client.TokenStats().TotalTokens)
package unifiedllm
