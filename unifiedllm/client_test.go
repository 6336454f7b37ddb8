package unifiedllm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error

	mu       sync.Mutex
	requests []Request
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	resp := *m.response
	return &resp, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func (m *mockAdapter) lastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Content:  text,
			Usage:    Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Text())
	assert.Equal(t, "test-provider", mock.lastRequest().Provider)
}

func TestClientProviderRouting(t *testing.T) {
	mock1 := newMockAdapter("provider1", "from provider 1")
	mock2 := newMockAdapter("provider2", "from provider 2")

	client := NewClient(
		WithProvider("provider1", mock1),
		WithProvider("provider2", mock2),
		WithDefaultProvider("provider1"),
	)

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.Equal(t, "from provider 1", resp.Text())

	resp, err = client.Complete(context.Background(), Request{
		Provider: "provider2",
		Messages: []Message{UserMessage("Hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "from provider 2", resp.Text())
}

func TestClientRoutesByCatalogModel(t *testing.T) {
	openai := newMockAdapter("openai", "gpt")
	gemini := newMockAdapter("gemini", "flash")
	client := &Client{providers: map[string]ProviderAdapter{"openai": openai, "gemini": gemini}}

	resp, err := client.Complete(context.Background(), Request{Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "flash", resp.Text())
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{Model: "test"})
	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithProvider("a", newMockAdapter("a", "x")))
	_, err := client.Complete(context.Background(), Request{Provider: "b"})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), `"b"`)
}

func TestClientDefaultModel(t *testing.T) {
	mock := newMockAdapter("p", "ok")
	client := NewClient(WithProvider("p", mock), WithDefaultModel("gpt-4o-mini"))

	_, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", mock.lastRequest().Model)

	_, err = client.Complete(context.Background(), Request{Model: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", mock.lastRequest().Model)
}

func TestClientMiddleware(t *testing.T) {
	mock := newMockAdapter("test", "response")

	var called bool
	mw := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		called = true
		return next(ctx, req)
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw),
	)

	_, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.True(t, called, "middleware should have been called")
}

func TestClientMiddlewareOrder(t *testing.T) {
	mock := newMockAdapter("test", "response")

	var order []string
	mw1 := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		order = append(order, "mw1-before")
		resp, err := next(ctx, req)
		order = append(order, "mw1-after")
		return resp, err
	}
	mw2 := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		order = append(order, "mw2-before")
		resp, err := next(ctx, req)
		order = append(order, "mw2-after")
		return resp, err
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw1, mw2),
	)

	_, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"mw1-before", "mw2-before", "mw2-after", "mw1-after"}, order)
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("test", newMockAdapter("test", "hello"))

	resp, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
}

func TestClientChat(t *testing.T) {
	mock := newMockAdapter("p", "answer")
	client := NewClient(WithProvider("p", mock))

	resp, err := client.Chat(context.Background(), []Message{
		SystemMessage("be brief"),
		UserMessage("question"),
	}, 0.3, 500)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text())

	req := mock.lastRequest()
	require.NotNil(t, req.Temperature)
	require.NotNil(t, req.MaxTokens)
	assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
	assert.Equal(t, 500, *req.MaxTokens)
	assert.Equal(t, "be brief", req.SystemPrompt())

	_, err = client.Chat(context.Background(), []Message{UserMessage("q")}, 0.7, 0)
	require.NoError(t, err)
	assert.Nil(t, mock.lastRequest().MaxTokens)
}

func TestClientTokenStats(t *testing.T) {
	mock := newMockAdapter("p", "ok")
	client := NewClient(WithProvider("p", mock))

	for i := 0; i < 3; i++ {
		_, err := client.Chat(context.Background(), []Message{UserMessage("q")}, 0.1, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, Usage{PromptTokens: 30, CompletionTokens: 60, TotalTokens: 90}, client.TokenStats())

	mock.err = &ServerError{}
	_, err := client.Chat(context.Background(), []Message{UserMessage("q")}, 0.1, 0)
	require.Error(t, err)
	assert.Equal(t, 90, client.TokenStats().TotalTokens, "failed calls add nothing")

	client.ResetTokenStats()
	assert.Equal(t, Usage{}, client.TokenStats())
}

func TestClientClose(t *testing.T) {
	mock := newMockAdapter("p", "ok")
	client := NewClient(WithProvider("p", mock))
	require.NoError(t, client.Close())
	assert.True(t, mock.closed)
}

func TestClientAutoSingleProviderDefault(t *testing.T) {
	client := NewClient(WithProvider("only-one", newMockAdapter("only-one", "auto")))

	resp, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.Equal(t, "auto", resp.Text())
}
