package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"energyscope/internal/adapter/reports"
	"energyscope/internal/domain"
	"energyscope/internal/usecase"
	"energyscope/internal/usecase/multiagent"
	"energyscope/internal/usecase/specialist"
)

// Config holds integration test configuration from environment
type Config struct {
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string
	TestTimeout  time.Duration
	SkipSlow     bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		TestTimeout:  90 * time.Second,
		SkipSlow:     os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// PipelineOptions selects the classifier and the data the specialists see.
type PipelineOptions struct {
	Model      string
	Classifier multiagent.Classifier
	Store      domain.ScenarioStore
	Reports    map[string]string // source -> text
}

// NewPipeline wires a full orchestrator around a real provider.
func NewPipeline(t *testing.T, provider domain.LLMProvider, opts PipelineOptions) *usecase.Orchestrator {
	t.Helper()

	index := &reports.Index{}
	for source, text := range opts.Reports {
		index.Add(source, text)
	}

	sopts := specialist.Options{
		LLM:         provider,
		Model:       opts.Model,
		Temperature: 0.2,
		MaxTokens:   800,
		Timeout:     60 * time.Second,
	}
	translator := specialist.NewTranslation(sopts)

	registry := multiagent.NewRegistry("data", nil)
	for _, s := range []domain.Specialist{
		specialist.NewData(opts.Store, sopts),
		specialist.NewScenario(opts.Store, sopts),
		specialist.NewDocument(index, sopts),
		specialist.NewPolicy(nil, sopts),
		translator,
	} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Capabilities().Name, err)
		}
	}

	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Registry: registry,
		Router: multiagent.NewRouter(registry, opts.Classifier, multiagent.RouterOptions{
			Threshold: 0.3, Margin: 0.25, MaxSpecialists: 3,
		}, nil),
		FanOut: multiagent.NewFanOut(registry, 75*time.Second, nil),
		Translation: usecase.NewTranslationAdapter(translator, usecase.TranslationOptions{
			MinConfidence: 0.5,
			Timeout:       45 * time.Second,
		}, nil),
	})
}
