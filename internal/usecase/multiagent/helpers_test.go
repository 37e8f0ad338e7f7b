package multiagent

import (
	"context"
	"sync/atomic"
	"time"

	"energyscope/internal/domain"
	"energyscope/internal/usecase/specialist"
)

type stubSpecialist struct {
	desc      domain.CapabilityDescriptor
	resp      domain.AgentResponse
	delay     time.Duration
	ignoreCtx bool
	panicMsg  string
	calls     atomic.Int32
}

func newStub(name string, intents ...domain.Intent) *stubSpecialist {
	return &stubSpecialist{
		desc: domain.CapabilityDescriptor{
			Name:             name,
			DisplayName:      "Stub " + name,
			SupportedIntents: intents,
		},
		resp: domain.AgentResponse{Content: name + " answer", Confidence: 0.8, DataSources: []string{name + ".csv"}},
	}
}

func (s *stubSpecialist) Capabilities() domain.CapabilityDescriptor { return s.desc }

func (s *stubSpecialist) Process(ctx context.Context, _ string, _ domain.QueryContext) domain.AgentResponse {
	s.calls.Add(1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return specialist.SoftFailure(s.desc.Name, ctx.Err().Error())
			}
		}
	}
	return s.resp
}

// standardRegistry registers stubs mirroring the production intent mapping.
func standardRegistry() (*Registry, map[string]*stubSpecialist) {
	stubs := map[string]*stubSpecialist{
		"data":        newStub("data", domain.IntentStatistics, domain.IntentTrend, domain.IntentComparison),
		"scenario":    newStub("scenario", domain.IntentScenario, domain.IntentComparison),
		"document":    newStub("document", domain.IntentReport, domain.IntentMethodology),
		"policy":      newStub("policy", domain.IntentPolicy, domain.IntentImplementation),
		"translation": newStub("translation", domain.IntentTranslation),
	}
	r := NewRegistry("data", nil)
	for _, name := range []string{"data", "scenario", "document", "policy", "translation"} {
		if err := r.Register(stubs[name]); err != nil {
			panic(err)
		}
	}
	return r, stubs
}

type scriptedLLM struct {
	reply string
	err   error
	calls atomic.Int32
}

func (l *scriptedLLM) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: l.reply}}, nil
}

func (l *scriptedLLM) Name() string { return "scripted" }
