package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"energyscope/internal/domain"
	"energyscope/internal/usecase/multiagent"
	"energyscope/internal/usecase/specialist"
)

type stubSpecialist struct {
	desc        domain.CapabilityDescriptor
	resp        domain.AgentResponse
	delay       time.Duration
	calls       atomic.Int32
	mu          sync.Mutex
	lastQuery   string
	lastHistory int
	lastUser    domain.UserType
}

func newStub(name string, intents ...domain.Intent) *stubSpecialist {
	return &stubSpecialist{
		desc: domain.CapabilityDescriptor{Name: name, DisplayName: "Stub " + name, SupportedIntents: intents},
		resp: domain.AgentResponse{
			Content:     name + " answer",
			Confidence:  0.8,
			DataSources: []string{name + ".csv"},
			Suggestions: []string{"More about " + name + "?"},
		},
	}
}

func (s *stubSpecialist) Capabilities() domain.CapabilityDescriptor { return s.desc }

func (s *stubSpecialist) Process(ctx context.Context, query string, qctx domain.QueryContext) domain.AgentResponse {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastQuery, s.lastHistory, s.lastUser = query, len(qctx.History), qctx.UserType
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return specialist.SoftFailure(s.desc.Name, ctx.Err().Error())
		}
	}
	return s.resp
}

func (s *stubSpecialist) query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// fakeTranslator prefixes translations with the target code unless a fixed
// translation is configured for the input.
type fakeTranslator struct {
	mu           sync.Mutex
	fixed        map[string]string
	detect       domain.LanguageCode
	err          error
	translations int
	detections   int
}

func (f *fakeTranslator) Translate(_ context.Context, text string, from, to domain.LanguageCode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translations++
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.fixed[text]; ok {
		return out, nil
	}
	return fmt.Sprintf("[%s] %s", to, text), nil
}

func (f *fakeTranslator) DetectLanguage(context.Context, string) (domain.LanguageCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections++
	if f.detect == "" {
		return "", domain.ErrTranslationFailed
	}
	return f.detect, nil
}

type fixture struct {
	orch       *Orchestrator
	stubs      map[string]*stubSpecialist
	translator *fakeTranslator
	session    *Session
}

// newFixture builds an orchestrator over stub specialists. Language
// detection always defers to the fake translator.
func newFixture(capacity int) *fixture {
	stubs := map[string]*stubSpecialist{
		"data":        newStub("data", domain.IntentStatistics, domain.IntentTrend, domain.IntentComparison),
		"scenario":    newStub("scenario", domain.IntentScenario, domain.IntentComparison),
		"document":    newStub("document", domain.IntentReport, domain.IntentMethodology),
		"policy":      newStub("policy", domain.IntentPolicy, domain.IntentImplementation),
		"translation": newStub("translation", domain.IntentTranslation),
	}
	reg := multiagent.NewRegistry("data", nil)
	for _, name := range []string{"data", "scenario", "document", "policy", "translation"} {
		if err := reg.Register(stubs[name]); err != nil {
			panic(err)
		}
	}
	tr := &fakeTranslator{detect: domain.LangEnglish}
	session := NewSession(capacity)
	orch := NewOrchestrator(OrchestratorDeps{
		Registry:    reg,
		Router:      multiagent.NewRouter(reg, nil, multiagent.RouterOptions{Threshold: 0.3, Margin: 0.25, MaxSpecialists: 3}, nil),
		FanOut:      multiagent.NewFanOut(reg, 2*time.Second, nil),
		Synthesizer: NewSynthesizer(SynthesizerOptions{MaxSources: 5, MaxSuggestions: 5}, nil),
		Translation: NewTranslationAdapter(tr, TranslationOptions{Working: domain.LangEnglish, MinConfidence: 2}, nil),
		Session:     session,
	})
	return &fixture{orch: orch, stubs: stubs, translator: tr, session: session}
}

func (f *fixture) totalCalls() int {
	n := 0
	for _, s := range f.stubs {
		n += int(s.calls.Load())
	}
	return n
}
