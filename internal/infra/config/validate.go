package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateRouter(cfg, ve)
	validateSynthesis(cfg, ve)
	validateSession(cfg, ve)
	validateTranslation(cfg, ve)
	validateSpecialists(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"gemini":     true,
	"openrouter": true,
	"ollama":     true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if cfg.LLM.RateLimit.Enabled {
		if cfg.LLM.RateLimit.RequestsPerSecond <= 0 {
			ve.Add("llm.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if cfg.LLM.RateLimit.Burst <= 0 {
			ve.Add("llm.rate_limit.burst must be > 0 when enabled")
		}
	}

	// No providers means the service runs with offline specialists only.
	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, gemini, openrouter, ollama)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via %sLLM_PROVIDER_%s_API_KEY)",
				i, p.Name, envPrefix, strings.ToUpper(p.Name))
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}
	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
		}
	}
}

func validateRouter(cfg *Config, ve *ValidationError) {
	r := cfg.Router
	switch r.Mode {
	case "lexical", "llm":
	default:
		ve.Add("router.mode %q is invalid (want: lexical, llm)", r.Mode)
	}
	if r.RelevanceThreshold <= 0 || r.RelevanceThreshold > 1 {
		ve.Add("router.relevance_threshold must be in (0, 1]")
	}
	if r.FanoutMargin < 0 || r.FanoutMargin > 1 {
		ve.Add("router.fanout_margin must be in [0, 1]")
	}
	if r.MaxSpecialists <= 0 {
		ve.Add("router.max_specialists must be > 0")
	}
	if r.DefaultSpecialist == "" {
		ve.Add("router.default_specialist must not be empty")
	} else if !slices.Contains(SpecialistNames, r.DefaultSpecialist) {
		ve.Add("router.default_specialist %q is not a known specialist", r.DefaultSpecialist)
	} else if !cfg.Specialist(r.DefaultSpecialist).IsEnabled() {
		ve.Add("router.default_specialist %q is disabled", r.DefaultSpecialist)
	}
}

func validateSynthesis(cfg *Config, ve *ValidationError) {
	if cfg.Synthesis.MaxSources <= 0 {
		ve.Add("synthesis.max_sources must be > 0")
	}
	if cfg.Synthesis.MaxSuggestions <= 0 {
		ve.Add("synthesis.max_suggestions must be > 0")
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	if cfg.Session.Capacity <= 0 {
		ve.Add("session.capacity must be > 0")
	}
}

func validateTranslation(cfg *Config, ve *ValidationError) {
	t := cfg.Translation
	if t.WorkingLanguage == "" {
		ve.Add("translation.working_language must not be empty")
	}
	if len(t.Supported) == 0 {
		ve.Add("translation.supported must list at least one language")
	} else if t.WorkingLanguage != "" && !slices.Contains(t.Supported, t.WorkingLanguage) {
		ve.Add("translation.working_language %q must be listed in translation.supported", t.WorkingLanguage)
	}
	if t.MinDetectConfidence < 0 || t.MinDetectConfidence > 1 {
		ve.Add("translation.min_detect_confidence must be in [0, 1]")
	}
}

func validateSpecialists(cfg *Config, ve *ValidationError) {
	for name, sc := range cfg.Specialists {
		if !slices.Contains(SpecialistNames, name) {
			ve.Add("specialists.%s: unknown specialist (want one of: %s)", name, strings.Join(SpecialistNames, ", "))
			continue
		}
		if sc.Timeout < 0 {
			ve.Add("specialists.%s.timeout must be >= 0", name)
		}
		if sc.Temperature < 0 || sc.Temperature > 2 {
			ve.Add("specialists.%s.temperature must be in [0, 2]", name)
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}
