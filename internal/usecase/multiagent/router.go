package multiagent

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
	"energyscope/internal/infra/tracer"
)

// RouterOptions tunes specialist selection.
type RouterOptions struct {
	// Threshold is the minimum specialist score to be selected.
	Threshold float64
	// Margin admits every specialist scoring within Margin of the best one.
	Margin float64
	// MaxSpecialists caps the fan-out; 0 means no cap.
	MaxSpecialists int
}

// Router selects the specialists relevant to a query.
type Router struct {
	registry   *Registry
	classifier Classifier
	opts       RouterOptions
	logger     *slog.Logger
}

// NewRouter creates a Router. A nil classifier selects the lexical one.
func NewRouter(registry *Registry, classifier Classifier, opts RouterOptions, log *slog.Logger) *Router {
	if classifier == nil {
		classifier = NewLexicalClassifier(nil)
	}
	return &Router{
		registry:   registry,
		classifier: classifier,
		opts:       opts,
		logger:     logger.OrNop(log),
	}
}

// Route classifies query and returns the selected specialists. When the
// query alone selects nothing, the most recent history entry is used as
// context for short follow-ups before falling back to the default specialist.
// It fails only for empty queries or a cancelled context.
func (r *Router) Route(ctx context.Context, query string, history []domain.ConversationEntry) (domain.RoutingDecision, error) {
	ctx, span := tracer.StartSpan(ctx, "router.route")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		tracer.RecordError(span, domain.ErrInvalidQuery)
		return domain.RoutingDecision{}, domain.ErrInvalidQuery
	}

	intents, err := r.classifier.Classify(ctx, query)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.RoutingDecision{}, err
	}
	decision := r.decide(intents)

	if len(decision.Specialists) == 0 && len(history) > 0 {
		prev := history[len(history)-1].Query
		intents, err = r.classifier.Classify(ctx, prev+" "+query)
		if err != nil {
			tracer.RecordError(span, err)
			return domain.RoutingDecision{}, err
		}
		decision = r.decide(intents)
		if len(decision.Specialists) > 0 {
			r.logger.Debug("routed using conversation context", "previous", prev)
		}
	}

	if len(decision.Specialists) == 0 {
		decision.Specialists = []string{r.registry.DefaultName()}
		decision.Fallback = true
	}

	span.SetAttributes(
		tracer.StringsAttr("router.specialists", decision.Specialists),
		tracer.BoolAttr("router.fallback", decision.Fallback),
	)
	tracer.SetOK(span)
	r.logger.Debug("query routed",
		"specialists", decision.Specialists,
		"intents", decision.Intents,
		"fallback", decision.Fallback,
	)
	return decision, nil
}

// decide applies threshold, margin and cap to the specialist scores.
func (r *Router) decide(intents IntentScores) domain.RoutingDecision {
	type candidate struct {
		name  string
		score float64
		order int
	}
	var candidates []candidate
	scores := make(map[string]float64)
	i := 0
	for desc := range r.registry.List() {
		s := specialistScore(desc, intents)
		if s > 0 {
			scores[desc.Name] = s
		}
		candidates = append(candidates, candidate{name: desc.Name, score: s, order: i})
		i++
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return a.order - b.order
		}
	})

	decision := domain.RoutingDecision{Scores: scores, Intents: rankedIntents(intents)}
	if len(candidates) == 0 {
		return decision
	}
	top := candidates[0].score
	const eps = 1e-9
	for _, c := range candidates {
		if c.score < r.opts.Threshold-eps || c.score <= 0 || top-c.score > r.opts.Margin+eps {
			break
		}
		decision.Specialists = append(decision.Specialists, c.name)
		if r.opts.MaxSpecialists > 0 && len(decision.Specialists) == r.opts.MaxSpecialists {
			break
		}
	}
	return decision
}

// specialistScore combines the strengths of the supported intents with a
// noisy-or: 1 - prod(1 - s).
func specialistScore(desc domain.CapabilityDescriptor, intents IntentScores) float64 {
	miss := 1.0
	for _, in := range desc.SupportedIntents {
		miss *= 1 - domain.ClampConfidence(intents[in])
	}
	return 1 - miss
}

// rankedIntents lists intents by descending strength, ties in AllIntents order.
func rankedIntents(intents IntentScores) []domain.Intent {
	var out []domain.Intent
	for _, in := range domain.AllIntents {
		if intents[in] > 0 {
			out = append(out, in)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Intent) int {
		switch {
		case intents[a] > intents[b]:
			return -1
		case intents[a] < intents[b]:
			return 1
		}
		return 0
	})
	return out
}
