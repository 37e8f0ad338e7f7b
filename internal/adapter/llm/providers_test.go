package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testRequest() domain.ChatRequest {
	return domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are an energy analyst."},
			{Role: domain.RoleUser, Content: "How much solar in 2050?"},
		},
		MaxTokens:   200,
		Temperature: 0.3,
	}
}

func TestOpenAIProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Messages, 2)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		json.NewEncoder(w).Encode(openaiResponse{
			ID:      "chatcmpl-123",
			Model:   "gpt-4o-mini",
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "About 34 TWh."}}},
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{
		Name: "test", BaseURL: server.URL, APIKey: "test-key", Model: "gpt-4o-mini",
	}, newTestLogger())

	req := testRequest()
	req.JSONMode = true
	resp, err := p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "About 34 TWh.", resp.Message.Content)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.Equal(t, "test", p.Name())
}

func TestOpenAIProviderNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())
	_, err := p.Chat(context.Background(), testRequest())
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestOpenAIProviderHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusGatewayTimeout, domain.ErrTimeout},
		{http.StatusInternalServerError, domain.ErrProviderError},
		{http.StatusBadRequest, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			p := NewOpenAIProvider(config.ProviderConfig{Name: "t", BaseURL: server.URL}, newTestLogger())
			_, err := p.Chat(context.Background(), testRequest())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIProviderDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "t", BaseURL: server.URL}, newTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Chat(ctx, testRequest())
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestOpenRouterProviderHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "energyscope", r.Header.Get("X-Title"))
		assert.NotEmpty(t, r.Header.Get("HTTP-Referer"))
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}}})
	}))
	defer server.Close()

	p := NewOpenRouterProvider(config.ProviderConfig{Name: "or", BaseURL: server.URL, APIKey: "k"}, newTestLogger())
	resp, err := p.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
}

func TestOllamaProviderAppendsV1(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "local"}}}})
	}))
	defer server.Close()

	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: server.URL, Model: "llama3"}, newTestLogger())
	resp, err := p.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "local", resp.Message.Content)
}

func TestAnthropicProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ant-key", r.Header.Get("x-api-key"))
		assert.Equal(t, defaultAnthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "You are an energy analyst.", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, domain.RoleUser, req.Messages[0].Role)
		assert.Equal(t, 200, req.MaxTokens)

		json.NewEncoder(w).Encode(anthropicResponse{
			ID:      "msg_1",
			Model:   "claude-test",
			Content: []anthropicContent{{Type: "text", Text: "Solar "}, {Type: "text", Text: "grows."}},
			Usage:   anthropicUsage{InputTokens: 12, OutputTokens: 3},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider(config.ProviderConfig{Name: "anthropic", BaseURL: server.URL, APIKey: "ant-key", Model: "claude-test"}, newTestLogger())
	resp, err := p.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Solar grows.", resp.Message.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestToAnthropicRequestDefaults(t *testing.T) {
	req := toAnthropicRequest(domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		JSONMode: true,
	})
	assert.Equal(t, 4096, req.MaxTokens)
	assert.Nil(t, req.Temperature)
	assert.Contains(t, req.System, "JSON")
}

func TestGeminiProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		var req geminiRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.NotNil(t, req.SystemInstruction)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, 200, req.GenerationConfig.MaxOutputTokens)

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Gemini says hi"}]}}],
			"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":3,"totalTokenCount":7}}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(config.ProviderConfig{Name: "gemini", BaseURL: server.URL, APIKey: "g-key", Model: "gemini-test"}, newTestLogger())
	resp, err := p.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Gemini says hi", resp.Message.Content)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestGeminiProviderNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(config.ProviderConfig{Name: "gemini", BaseURL: server.URL, Model: "m"}, newTestLogger())
	_, err := p.Chat(context.Background(), testRequest())
	assert.True(t, errors.Is(err, domain.ErrProviderError))
}
