package main

import (
	"fmt"
	"log/slog"

	"energyscope/internal/adapter/llm"
	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
)

// LLMComponents holds all LLM-related components.
type LLMComponents struct {
	Registry *llm.Registry
	// DefaultLLM is nil when no provider is configured; specialists then
	// answer offline.
	DefaultLLM domain.LLMProvider
}

// initLLM initializes LLM providers, registry, and failover.
func initLLM(cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()

	if len(cfg.LLM.Providers) == 0 {
		log.Warn("no llm providers configured, specialists answer offline")
		return &LLMComponents{Registry: registry}, nil
	}

	cbCfg := cfg.LLM.CircuitBreaker
	rlCfg := cfg.LLM.RateLimit
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		// Per-provider circuit breaker, then throttling on the outside so
		// waiting for a token never counts as a failure.
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}
		if rlCfg.Enabled {
			provider = llm.NewRateLimitedProvider(provider, rlCfg)
		}

		if err := registry.RegisterAs(pc.Name, provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}
	if rlCfg.Enabled {
		log.Info("llm rate limit enabled", "rps", rlCfg.RequestsPerSecond, "burst", rlCfg.Burst)
	}

	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}

	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.LLM.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		defaultLLM = llm.NewFailoverProvider(defaultLLM, fallbacks, log)
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	return &LLMComponents{
		Registry:   registry,
		DefaultLLM: defaultLLM,
	}, nil
}

// createLLMProvider builds the adapter for pc. An empty type falls back to
// the provider name.
func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	typ := pc.Type
	if typ == "" {
		typ = pc.Name
	}
	switch typ {
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "gemini":
		return llm.NewGeminiProvider(pc, log), nil
	case "openrouter":
		return llm.NewOpenRouterProvider(pc, log), nil
	case "ollama":
		return llm.NewOllamaProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", typ)
	}
}

// specialistLLM picks the provider a specialist talks to: its own override
// when configured, otherwise the default chain.
func (c *LLMComponents) specialistLLM(sc config.SpecialistConfig) (domain.LLMProvider, error) {
	if sc.Provider == "" || c.DefaultLLM == nil {
		return c.DefaultLLM, nil
	}
	p, err := c.Registry.Get(sc.Provider)
	if err != nil {
		return nil, err
	}
	return p, nil
}
