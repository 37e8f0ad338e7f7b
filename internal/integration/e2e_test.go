//go:build integration
// +build integration

package integration

import (
	"slices"
	"strings"
	"testing"
	"time"

	"energyscope/internal/adapter/dataset"
	"energyscope/internal/adapter/llm"
	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
	"energyscope/internal/usecase/multiagent"
)

const dataCSV = `scenario,indicator,sector,unit,year,value
ZERO Basis,Electricity demand,Total,TWh,2035,66.4
ZERO Basis,Electricity demand,Total,TWh,2050,76.3
WWB,Electricity demand,Total,TWh,2050,69.8
`

const methodologyReport = `# Energy Perspectives 2050+ methodology

The Energy Perspectives 2050+ model the Swiss energy system with bottom-up sector models for households, services, industry and transport, coupled to an electricity market model.

The ZERO Basis scenario reaches net-zero greenhouse gas emissions in 2050 with a strong expansion of photovoltaics and heat pumps.
`

func openAIProvider(cfg *Config) domain.LLMProvider {
	return llm.NewOpenAIProvider(config.ProviderConfig{
		Name:   "openai",
		APIKey: cfg.OpenAIKey,
		Model:  "gpt-4o-mini",
	}, nil)
}

func newStore(t *testing.T) domain.ScenarioStore {
	t.Helper()
	store, err := dataset.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, _, err := store.ImportCSV(t.Context(), strings.NewReader(dataCSV), "ep2050.csv"); err != nil {
		t.Fatalf("import: %v", err)
	}
	return store
}

func TestE2E_DataQuestionWithRealLLM(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")

	ctx := NewTestContext(t, cfg.TestTimeout)
	orch := NewPipeline(t, openAIProvider(cfg), PipelineOptions{Model: "gpt-4o-mini", Store: newStore(t)})

	resp, err := orch.ProcessQuery(ctx, "What is the electricity demand in 2050 in the ZERO Basis scenario?",
		domain.QueryContext{UserType: domain.UserJournalist})
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	t.Logf("response: %s (confidence %.2f)", resp.Content, resp.Confidence)

	if !slices.Contains(resp.Specialists, "data") {
		t.Errorf("data specialist not consulted: %v", resp.Specialists)
	}
	if !strings.Contains(resp.Content, "76") {
		t.Errorf("answer does not quote the dataset value: %s", resp.Content)
	}
	if resp.Confidence <= 0.4 {
		t.Errorf("confidence too low: %.2f", resp.Confidence)
	}
}

func TestE2E_GermanQuestionAnsweredInGerman(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")

	ctx := NewTestContext(t, 2*cfg.TestTimeout)
	orch := NewPipeline(t, openAIProvider(cfg), PipelineOptions{
		Model:   "gpt-4o-mini",
		Reports: map[string]string{"ep2050-methodology.md": methodologyReport},
	})

	resp, err := orch.ProcessQuery(ctx, "Welche Modelle verwenden die Energieperspektiven 2050+ in ihrer Methodik?",
		domain.QueryContext{UserType: domain.UserStudent})
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	t.Logf("response (%s): %s", resp.Language, resp.Content)

	if resp.Language != domain.LangGerman {
		t.Errorf("answer language = %s, want de (warnings: %v)", resp.Language, resp.Warnings)
	}
	if resp.Degraded {
		t.Errorf("unexpected degradation: %v", resp.Warnings)
	}
}

func TestE2E_MultiTurnFollowUp(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")
	if cfg.SkipSlow {
		t.Skip("slow test")
	}

	ctx := NewTestContext(t, 3*time.Minute)
	orch := NewPipeline(t, openAIProvider(cfg), PipelineOptions{Model: "gpt-4o-mini", Store: newStore(t)})
	qctx := domain.QueryContext{UserType: domain.UserCitizen}

	if _, err := orch.ProcessQuery(ctx, "How much electricity will Switzerland need in 2050 in the WWB scenario?", qctx); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	resp, err := orch.ProcessQuery(ctx, "And in ZERO Basis?", qctx)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !slices.Contains(resp.Specialists, "data") && !slices.Contains(resp.Specialists, "scenario") {
		t.Errorf("follow-up not routed to the data specialists: %v", resp.Specialists)
	}
	if orch.HistoryLen() != 2 {
		t.Errorf("history length = %d, want 2", orch.HistoryLen())
	}
}

func TestE2E_LLMClassifierRouting(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")

	ctx := NewTestContext(t, cfg.TestTimeout)
	provider := openAIProvider(cfg)
	classifier, err := multiagent.NewLLMClassifier(provider, "gpt-4o-mini", 30*time.Second, multiagent.NewLexicalClassifier(nil), nil)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}

	scores, err := classifier.Classify(ctx, "Which federal act introduced the CO2 levy on heating fuels?")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if scores[domain.IntentPolicy] < 0.5 {
		t.Errorf("policy score = %.2f, want >= 0.5 (%v)", scores[domain.IntentPolicy], scores)
	}
}

func TestE2E_TranslationProviders(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()

	providers := map[string]struct {
		key      string
		provider func() domain.LLMProvider
		model    string
	}{
		"ANTHROPIC": {cfg.AnthropicKey, func() domain.LLMProvider {
			return llm.NewAnthropicProvider(config.ProviderConfig{Name: "anthropic", APIKey: cfg.AnthropicKey, Model: "claude-3-5-haiku-latest"}, nil)
		}, "claude-3-5-haiku-latest"},
		"GEMINI": {cfg.GeminiKey, func() domain.LLMProvider {
			return llm.NewGeminiProvider(config.ProviderConfig{Name: "gemini", APIKey: cfg.GeminiKey, Model: "gemini-2.0-flash"}, nil)
		}, "gemini-2.0-flash"},
	}

	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			SkipIfNoAPIKey(t, p.key, name)
			ctx := NewTestContext(t, cfg.TestTimeout)
			orch := NewPipeline(t, p.provider(), PipelineOptions{Model: p.model})

			resp, err := orch.ProcessQuery(ctx, `Translate "security of electricity supply" into French`,
				domain.QueryContext{UserType: domain.UserCitizen, Language: domain.LangEnglish})
			if err != nil {
				t.Fatalf("ProcessQuery: %v", err)
			}
			t.Logf("%s: %s", name, resp.Content)
			if !slices.Contains(resp.Specialists, "translation") {
				t.Errorf("translation specialist not consulted: %v", resp.Specialists)
			}
			if !strings.Contains(strings.ToLower(resp.Content), "approvisionnement") {
				t.Errorf("unexpected translation: %s", resp.Content)
			}
		})
	}
}
