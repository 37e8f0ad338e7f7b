package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"energyscope/internal/adapter/dataset"
	"energyscope/internal/adapter/reports"
	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
	"energyscope/internal/usecase"
	"energyscope/internal/usecase/multiagent"
	"energyscope/internal/usecase/specialist"
)

// DataComponents holds the specialists' backing stores. Either may be nil
// when its source could not be loaded.
type DataComponents struct {
	Store  domain.ScenarioStore
	Index  domain.ReportIndex
	closer func() error
}

// initData opens the scenario store and loads the report corpus. Missing
// data is not fatal: the affected specialists report it per query.
func initData(ctx context.Context, cfg config.DataConfig, log *slog.Logger) *DataComponents {
	dc := &DataComponents{closer: func() error { return nil }}

	store, err := dataset.NewSQLiteStore(cfg.DBPath, log)
	if err != nil {
		log.Warn("scenario store unavailable", "db_path", cfg.DBPath, "error", err)
	} else {
		if _, err := store.ImportDir(ctx, cfg.Dir); err != nil {
			log.Warn("scenario dataset not imported", "dir", cfg.Dir, "error", err)
		}
		dc.Store = store
		dc.closer = store.Close
	}

	index, err := reports.Load(cfg.ReportsDir, log)
	if err != nil {
		log.Warn("report corpus unavailable", "dir", cfg.ReportsDir, "error", err)
	} else {
		dc.Index = index
	}
	return dc
}

// Close releases the scenario store.
func (dc *DataComponents) Close() error { return dc.closer() }

// initOrchestrator wires specialists, router, fan-out, synthesis,
// translation and the session into an Orchestrator.
func initOrchestrator(cfg *config.Config, llms *LLMComponents, data *DataComponents, log *slog.Logger) (*usecase.Orchestrator, error) {
	registry := multiagent.NewRegistry(cfg.Router.DefaultSpecialist, log)

	opts := func(name string) (specialist.Options, error) {
		sc := cfg.Specialist(name)
		provider, err := llms.specialistLLM(sc)
		if err != nil {
			return specialist.Options{}, fmt.Errorf("specialist %s: %w", name, err)
		}
		model := sc.Model
		if model == "" && provider != nil {
			model = providerModel(cfg, sc.Provider)
		}
		return specialist.Options{
			LLM:         provider,
			Model:       model,
			Temperature: sc.Temperature,
			MaxTokens:   sc.MaxTokens,
			Timeout:     sc.Timeout,
			Logger:      log,
		}, nil
	}

	// The translator backs the translation adapter even when the
	// specialist itself is disabled.
	trOpts, err := opts("translation")
	if err != nil {
		return nil, err
	}
	translator := specialist.NewTranslation(trOpts)

	fanoutTimeout := time.Duration(0)
	for _, name := range config.SpecialistNames {
		sc := cfg.Specialist(name)
		if !sc.IsEnabled() {
			log.Info("specialist disabled", "specialist", name)
			continue
		}
		o, err := opts(name)
		if err != nil {
			return nil, err
		}
		var s domain.Specialist
		switch name {
		case "data":
			s = specialist.NewData(data.Store, o)
		case "scenario":
			s = specialist.NewScenario(data.Store, o)
		case "document":
			s = specialist.NewDocument(data.Index, o)
		case "policy":
			s = specialist.NewPolicy(nil, o)
		case "translation":
			s = translator
		}
		if err := registry.Register(s); err != nil {
			return nil, err
		}
		fanoutTimeout = max(fanoutTimeout, sc.Timeout)
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("no specialists enabled")
	}
	if _, err := registry.Default(); err != nil {
		return nil, fmt.Errorf("router.default_specialist: %w", err)
	}

	classifier, err := initClassifier(cfg, llms, log)
	if err != nil {
		return nil, err
	}
	router := multiagent.NewRouter(registry, classifier, multiagent.RouterOptions{
		Threshold:      cfg.Router.RelevanceThreshold,
		Margin:         cfg.Router.FanoutMargin,
		MaxSpecialists: cfg.Router.MaxSpecialists,
	}, log)

	var backing domain.Translator
	if llms.DefaultLLM != nil {
		backing = translator
	}
	supported := make([]domain.LanguageCode, 0, len(cfg.Translation.Supported))
	for _, s := range cfg.Translation.Supported {
		if code, ok := domain.ParseLanguage(s); ok {
			supported = append(supported, code)
		}
	}
	translation := usecase.NewTranslationAdapter(backing, usecase.TranslationOptions{
		Working:       domain.LanguageCode(cfg.Translation.WorkingLanguage),
		Supported:     supported,
		MinConfidence: cfg.Translation.MinDetectConfidence,
		Timeout:       cfg.Translation.Timeout,
	}, log)

	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Registry: registry,
		Router:   router,
		FanOut:   multiagent.NewFanOut(registry, fanoutTimeout, log),
		Synthesizer: usecase.NewSynthesizer(usecase.SynthesizerOptions{
			MaxSources:     cfg.Synthesis.MaxSources,
			MaxSuggestions: cfg.Synthesis.MaxSuggestions,
		}, log),
		Translation: translation,
		Session:     usecase.NewSession(cfg.Session.Capacity),
		Logger:      log,
	}), nil
}

// initClassifier returns nil for the lexical router, which NewRouter
// substitutes itself.
func initClassifier(cfg *config.Config, llms *LLMComponents, log *slog.Logger) (multiagent.Classifier, error) {
	if cfg.Router.Mode != "llm" {
		return nil, nil
	}
	if llms.DefaultLLM == nil {
		log.Warn("router.mode is llm but no provider is configured, using lexical classifier")
		return nil, nil
	}
	c, err := multiagent.NewLLMClassifier(llms.DefaultLLM, providerModel(cfg, ""),
		cfg.Router.ClassifierTimeout, multiagent.NewLexicalClassifier(nil), log)
	if err != nil {
		return nil, fmt.Errorf("router classifier: %w", err)
	}
	return c, nil
}

// providerModel returns the model configured for the named provider, or for
// the default provider when name is empty.
func providerModel(cfg *config.Config, name string) string {
	if name == "" {
		name = cfg.LLM.DefaultProvider
	}
	for _, pc := range cfg.LLM.Providers {
		if pc.Name == name {
			return pc.Model
		}
	}
	return ""
}
