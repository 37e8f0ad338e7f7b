package llm

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"energyscope/internal/infra/config"
)

// Local models load slowly on first use.
const (
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
)

// NewOllamaProvider returns an OpenAI-compatible provider pointed at
// Ollama's /v1 endpoint.
func NewOllamaProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if cfg.RespTimeout == 0 {
		cfg.RespTimeout = ollamaDefaultRespTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return newOpenAIProvider(cfg, baseURL, NewHTTPClient(cfg), logger)
}

// openrouterTransport injects the attribution headers OpenRouter expects.
type openrouterTransport struct {
	base http.RoundTripper
}

func (t *openrouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", "https://github.com/energyscope/energyscope")
	clone.Header.Set("X-Title", "energyscope")
	return t.base.RoundTrip(clone)
}

// NewOpenRouterProvider returns an OpenAI-compatible provider for OpenRouter.
func NewOpenRouterProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	client := NewHTTPClient(cfg)
	client.Transport = &openrouterTransport{base: client.Transport}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return newOpenAIProvider(cfg, baseURL, client, logger)
}
