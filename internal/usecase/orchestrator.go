package usecase

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
	"energyscope/internal/infra/tracer"
	"energyscope/internal/usecase/multiagent"
)

// historyWindow is how many earlier turns specialists and the router see.
const historyWindow = 3

// OrchestratorDeps wires the orchestrator's collaborators.
type OrchestratorDeps struct {
	Registry    *multiagent.Registry
	Router      *multiagent.Router
	FanOut      *multiagent.FanOut
	Synthesizer *Synthesizer
	Translation *TranslationAdapter
	Session     *Session
	Logger      *slog.Logger
}

// Orchestrator is the single entry point that answers a query end to end.
type Orchestrator struct {
	registry    *multiagent.Registry
	router      *multiagent.Router
	fanout      *multiagent.FanOut
	synthesizer *Synthesizer
	translation *TranslationAdapter
	session     *Session
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Missing synthesizer, translation
// adapter and session are replaced by defaults.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	log := logger.OrNop(deps.Logger)
	if deps.Synthesizer == nil {
		deps.Synthesizer = NewSynthesizer(SynthesizerOptions{MaxSources: 5, MaxSuggestions: 5}, log)
	}
	if deps.Translation == nil {
		deps.Translation = NewTranslationAdapter(nil, TranslationOptions{}, log)
	}
	if deps.Session == nil {
		deps.Session = NewSession(DefaultSessionCapacity)
	}
	if deps.Router == nil {
		deps.Router = multiagent.NewRouter(deps.Registry, nil, multiagent.RouterOptions{Threshold: 0.3, Margin: 0.25, MaxSpecialists: 3}, log)
	}
	if deps.FanOut == nil {
		deps.FanOut = multiagent.NewFanOut(deps.Registry, 30*time.Second, log)
	}
	return &Orchestrator{
		registry:    deps.Registry,
		router:      deps.Router,
		fanout:      deps.FanOut,
		synthesizer: deps.Synthesizer,
		translation: deps.Translation,
		session:     deps.Session,
		logger:      log,
	}
}

// ProcessQuery answers query. The only error for a live context is
// domain.ErrInvalidQuery; specialist and translation failures are reported
// in-band through confidence, Degraded and Warnings. If ctx is cancelled the
// partial work is discarded, nothing is recorded and ctx's error is returned.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, qctx domain.QueryContext) (*domain.SynthesizedResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrInvalidQuery
	}
	start := time.Now()
	if _, ok := domain.ParseUserType(string(qctx.UserType)); !ok {
		qctx.UserType = domain.UserCitizen
	}

	ctx, span := tracer.StartSpan(ctx, "orchestrator.process_query", trace.WithAttributes(
		tracer.StringAttr("query.user_type", string(qctx.UserType)),
		tracer.IntAttr("query.length", len(query)),
	))
	defer span.End()

	var warnings []string

	// Normalize to the working language.
	detected := o.translation.ResolveLanguage(ctx, query, qctx.Language)
	working := o.translation.ToWorking(ctx, query, detected)
	if working.Degraded {
		warnings = append(warnings, "query not translated: "+working.Cause)
	}
	qctx.History = o.session.Last(historyWindow)

	decision, err := o.router.Route(ctx, working.Text, qctx.History)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	results, err := o.fanout.Run(ctx, decision.Specialists, working.Text, qctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp := o.synthesizer.Synthesize(results)
	resp.Intents = decision.Intents

	// Restore the display language.
	target := detected
	if o.translation.Supports(qctx.Language) {
		target = qctx.Language
	}
	resp.Language = o.translation.Working()
	if target != resp.Language {
		warnings = append(warnings, o.localize(ctx, resp, target)...)
	}
	if err := ctx.Err(); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if decision.Fallback {
		warnings = append(warnings, "no specialist matched the question; answered by the default specialist")
	}
	if len(warnings) > 0 {
		resp.Warnings = append(resp.Warnings, warnings...)
	}
	if working.Degraded || resp.Language != target {
		resp.Degraded = true
	}
	resp.Confidence = domain.ClampConfidence(resp.Confidence)

	o.session.Append(domain.ConversationEntry{
		Query:    query,
		UserType: qctx.UserType,
		Language: target,
		Response: resp,
	})

	span.SetAttributes(
		tracer.StringsAttr("query.specialists", resp.Specialists),
		tracer.FloatAttr("response.confidence", resp.Confidence),
		tracer.BoolAttr("response.degraded", resp.Degraded),
	)
	tracer.SetOK(span)
	o.logger.Info("query processed",
		"specialists", resp.Specialists,
		"fallback", decision.Fallback,
		"language", resp.Language,
		"confidence", resp.Confidence,
		"degraded", resp.Degraded,
		"duration", time.Since(start),
	)
	return resp, nil
}

// localize translates content, reasoning and suggestions into target. The
// response language only changes when the content was translated.
func (o *Orchestrator) localize(ctx context.Context, resp *domain.SynthesizedResponse, target domain.LanguageCode) []string {
	var warnings []string
	content := o.translation.FromWorking(ctx, resp.Content, target)
	if content.Degraded {
		return append(warnings, "answer not translated: "+content.Cause)
	}
	resp.Content = content.Text
	resp.Language = target

	if resp.Reasoning != "" {
		if r := o.translation.FromWorking(ctx, resp.Reasoning, target); !r.Degraded {
			resp.Reasoning = r.Text
		}
	}
	if len(resp.Suggestions) > 0 {
		joined := strings.Join(resp.Suggestions, "\n")
		r := o.translation.FromWorking(ctx, joined, target)
		lines := nonBlankLines(r.Text)
		if !r.Degraded && len(lines) == len(resp.Suggestions) {
			resp.Suggestions = lines
		} else if !r.Degraded {
			warnings = append(warnings, "suggestions not translated")
		}
	}
	return warnings
}

func nonBlankLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Specialists returns the registered capability descriptors in registration order.
func (o *Orchestrator) Specialists() iter.Seq[domain.CapabilityDescriptor] {
	return o.registry.List()
}

// History yields recorded turns, most recent first. n <= 0 yields all.
func (o *Orchestrator) History(n int) iter.Seq[domain.ConversationEntry] {
	return o.session.Recent(n)
}

// HistoryLen returns the number of recorded turns.
func (o *Orchestrator) HistoryLen() int { return o.session.Len() }

// ClearHistory forgets every recorded turn.
func (o *Orchestrator) ClearHistory() {
	o.session.Clear()
	o.logger.Info("conversation history cleared")
}
