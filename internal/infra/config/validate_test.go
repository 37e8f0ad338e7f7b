package config

import (
	"errors"
	"strings"
	"testing"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Router.RelevanceThreshold = 0
	cfg.Session.Capacity = 0
	cfg.Synthesis.MaxSources = -1

	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateRouter(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Router.Mode = "magic" }, `router.mode "magic" is invalid`},
		{"threshold above one", func(c *Config) { c.Router.RelevanceThreshold = 1.5 }, "router.relevance_threshold must be in (0, 1]"},
		{"negative margin", func(c *Config) { c.Router.FanoutMargin = -0.1 }, "router.fanout_margin must be in [0, 1]"},
		{"zero max", func(c *Config) { c.Router.MaxSpecialists = 0 }, "router.max_specialists must be > 0"},
		{"unknown default", func(c *Config) { c.Router.DefaultSpecialist = "weather" }, `router.default_specialist "weather" is not a known specialist`},
		{"disabled default", func(c *Config) {
			off := false
			sc := c.Specialists["data"]
			sc.Enabled = &off
			c.Specialists["data"] = sc
		}, `router.default_specialist "data" is disabled`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateLLMProviders(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.DefaultProvider = "missing"
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "a", Type: "openai", APIKey: "k"},
		{Name: "a", Type: "bedrock", APIKey: "k"},
		{Name: "local", Type: "ollama"},
	}
	cfg.LLM.Failover = FailoverConfig{Enabled: true, Fallbacks: []string{"ghost"}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, `duplicate provider name "a"`)
	assertContains(t, msg, `type "bedrock" is invalid`)
	assertContains(t, msg, `llm.default_provider "missing" does not match`)
	assertContains(t, msg, `unknown provider "ghost"`)
	if strings.Contains(msg, "(local): api_key is empty") {
		t.Error("ollama providers do not need an api key")
	}
}

func TestValidateTranslation(t *testing.T) {
	cfg := Defaults()
	cfg.Translation.WorkingLanguage = "es"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `translation.working_language "es" must be listed`)
}

func TestValidateUnknownSpecialist(t *testing.T) {
	cfg := Defaults()
	cfg.Specialists["weather"] = SpecialistConfig{}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "specialists.weather: unknown specialist")
}

func TestValidateRateLimit(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.RateLimit = RateLimitConfig{Enabled: true}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "llm.rate_limit.requests_per_second must be > 0")
	assertContains(t, err.Error(), "llm.rate_limit.burst must be > 0")
}
