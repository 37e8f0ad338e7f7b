package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
)

// sectionSeparator divides per-specialist sections in a merged answer.
const sectionSeparator = "\n\n---\n\n"

// TotalFailureContent is returned when no specialist produced an answer.
const TotalFailureContent = "No specialist could answer this question. Please try rephrasing it or ask about a more specific topic."

// SynthesizerOptions caps the merged provenance and suggestion lists.
type SynthesizerOptions struct {
	MaxSources     int
	MaxSuggestions int
}

// Synthesizer merges specialist results into one response.
type Synthesizer struct {
	opts   SynthesizerOptions
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer. Non-positive caps disable capping.
func NewSynthesizer(opts SynthesizerOptions, log *slog.Logger) *Synthesizer {
	return &Synthesizer{opts: opts, logger: logger.OrNop(log)}
}

// Synthesize merges results, which are in router order.
func (s *Synthesizer) Synthesize(results []domain.SpecialistResult) *domain.SynthesizedResponse {
	out := &domain.SynthesizedResponse{}
	for _, r := range results {
		out.Specialists = append(out.Specialists, r.Name)
	}

	var answered []domain.SpecialistResult
	var failures []string
	for _, r := range results {
		if r.Response.Failed() {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, failureDetail(r.Response)))
			continue
		}
		answered = append(answered, r)
	}

	switch {
	case len(answered) == 0:
		out.Content = TotalFailureContent
		out.Confidence = 0
		out.Degraded = true
		out.Reasoning = "all specialists failed: " + strings.Join(failures, "; ")
		s.logger.Warn("no specialist answered", "specialists", out.Specialists)
		return out

	case len(results) == 1:
		r := results[0].Response
		out.Content = r.Content
		out.Confidence = domain.ClampConfidence(r.Confidence)
		out.Reasoning = r.Reasoning
		out.DataSources, out.SourcesOmitted = capList(dedupe(r.DataSources, false), s.opts.MaxSources)
		out.Suggestions, out.SuggestionsOmitted = capList(dedupe(r.Suggestions, true), s.opts.MaxSuggestions)
		return out
	}

	sections := make([]string, 0, len(answered))
	var reasons, sources, suggestions []string
	var sum, sumSq float64
	for _, r := range answered {
		sections = append(sections, "## "+r.DisplayName+"\n\n"+strings.TrimSpace(r.Response.Content))
		c := domain.ClampConfidence(r.Response.Confidence)
		sum += c
		sumSq += c * c
		if r.Response.Reasoning != "" {
			reasons = append(reasons, r.Name+": "+r.Response.Reasoning)
		}
		sources = append(sources, r.Response.DataSources...)
		suggestions = append(suggestions, r.Response.Suggestions...)
	}
	if len(failures) > 0 {
		reasons = append(reasons, "omitted: "+strings.Join(failures, "; "))
	}

	out.Content = strings.Join(sections, sectionSeparator)
	// Weighted mean with each confidence as its own weight.
	out.Confidence = domain.ClampConfidence(sumSq / sum)
	out.Reasoning = strings.Join(reasons, "\n")
	out.DataSources, out.SourcesOmitted = capList(dedupe(sources, false), s.opts.MaxSources)
	out.Suggestions, out.SuggestionsOmitted = capList(dedupe(suggestions, true), s.opts.MaxSuggestions)
	return out
}

func failureDetail(r domain.AgentResponse) string {
	if r.Reasoning != "" {
		return r.Reasoning
	}
	if strings.TrimSpace(r.Content) == "" {
		return "empty answer"
	}
	return "zero confidence"
}

// dedupe keeps the first occurrence of each non-blank item.
func dedupe(items []string, foldCase bool) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := item
		if foldCase {
			key = strings.ToLower(item)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// capList truncates items to limit and reports how many were dropped.
func capList(items []string, limit int) ([]string, int) {
	if limit <= 0 || len(items) <= limit {
		return items, 0
	}
	return items[:limit], len(items) - limit
}
