package domain

import "context"

// LLMProvider is a chat-completion backend. Specialists phrase their answers
// with it, the LLM classifier scores intents with it and the translation
// specialist translates through it. Implementations must be safe for
// concurrent use because the fan-out calls several specialists at once.
// Failures should wrap the provider sentinels (ErrRateLimit, ErrAuthInvalid,
// ErrCircuitOpen, ...) so callers can tell retryable errors apart.
type LLMProvider interface {
	// Chat sends a request and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the name the provider is registered under (e.g. "openai").
	Name() string
}
