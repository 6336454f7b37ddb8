package unifiedllm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEncoding is the BPE used to estimate usage for backends that do not
// report it. Loading may fail offline; estimates then fall back to chars/4.
const tokenEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

func loadEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err == nil {
			encoder = enc
		}
	})
	return encoder
}

// CountTokens estimates the number of tokens in text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := loadEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateUsage approximates usage for a request and its generated text.
func EstimateUsage(req Request, completion string) Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += CountTokens(msg.Content)
	}
	if prompt == 0 {
		prompt = 10
	}
	out := CountTokens(completion)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}
