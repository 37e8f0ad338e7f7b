package specialist

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"energyscope/internal/domain"
)

const (
	passageLimit   = 4
	documentPrior  = 0.7
	excerptMaxRune = 600
)

// Document answers methodology and report questions from the report corpus.
type Document struct {
	base
	index domain.ReportIndex
}

// NewDocument creates the document specialist. index may be nil.
func NewDocument(index domain.ReportIndex, opts Options) *Document {
	return &Document{
		base: newBase(domain.CapabilityDescriptor{
			Name:        "document",
			DisplayName: "Reports & Methodology",
			Description: "Finds and explains passages from the Energy Perspectives reports and their methodology.",
			SupportedIntents: []domain.Intent{
				domain.IntentReport, domain.IntentMethodology,
			},
		}, opts),
		index: index,
	}
}

// Process implements domain.Specialist.
func (d *Document) Process(ctx context.Context, query string, qctx domain.QueryContext) domain.AgentResponse {
	if d.index == nil {
		return d.fail(domain.ErrDataUnavailable.Error())
	}
	passages, err := d.index.Search(ctx, query, passageLimit)
	if err != nil {
		d.log.Warn("report search failed", "error", err)
		return d.fail(fmt.Sprintf("report search failed: %v", err))
	}
	if len(passages) == 0 {
		return d.fail("no relevant passage in the report corpus")
	}

	var sources []string
	var excerpts strings.Builder
	for i, p := range passages {
		if !slices.Contains(sources, p.Source) {
			sources = append(sources, p.Source)
		}
		if i > 0 {
			excerpts.WriteString("\n\n")
		}
		fmt.Fprintf(&excerpts, "[%s]\n%s", p.Source, truncateRunes(p.Text, excerptMaxRune))
	}
	reasoning := fmt.Sprintf("retrieved %d passages from %d documents", len(passages), len(sources))
	suggestions := []string{"What assumptions does this rest on?"}

	if !d.hasLLM() {
		content := "Relevant report excerpts:\n\n" + quoteBlock(excerpts.String())
		return d.respond(content, documentPrior-0.1, query, sources, reasoning+" (offline rendering)", suggestions)
	}
	system := d.systemPrompt("You are a research assistant for the Swiss Energy Perspectives 2050+ reports. Answer from the excerpts and name the document you quote.", qctx)
	answer, err := d.ask(ctx, system, userPrompt(query, excerpts.String(), qctx))
	if err != nil {
		return d.llmFailure(ctx, err)
	}
	return d.respond(answer, documentPrior, query, sources, reasoning, suggestions)
}

func quoteBlock(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
