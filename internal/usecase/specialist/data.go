package specialist

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"energyscope/internal/domain"
)

const (
	dataRowLimit  = 60
	dataPrior     = 0.75
	dataWeakPrior = 0.35
)

// Data answers statistics and trend questions from the scenario dataset.
type Data struct {
	base
	store domain.ScenarioStore
}

// NewData creates the data specialist. store may be nil when no dataset is
// loaded; every query then fails softly.
func NewData(store domain.ScenarioStore, opts Options) *Data {
	return &Data{
		base: newBase(domain.CapabilityDescriptor{
			Name:        "data",
			DisplayName: "Energy Data",
			Description: "Statistics and trends from the Energy Perspectives 2050+ scenario dataset.",
			SupportedIntents: []domain.Intent{
				domain.IntentStatistics, domain.IntentTrend, domain.IntentComparison,
			},
		}, opts),
		store: store,
	}
}

// Process implements domain.Specialist.
func (d *Data) Process(ctx context.Context, query string, qctx domain.QueryContext) domain.AgentResponse {
	if d.store == nil {
		return d.fail(domain.ErrDataUnavailable.Error())
	}
	filter, err := buildFilter(ctx, d.store, query)
	if err != nil {
		d.log.Warn("dataset lookup failed", "error", err)
		return d.fail(fmt.Sprintf("%s: %v", domain.ErrDataUnavailable, err))
	}
	filter.Limit = dataRowLimit
	rows, err := d.store.Query(ctx, filter)
	if err != nil {
		d.log.Warn("dataset query failed", "error", err)
		return d.fail(fmt.Sprintf("%s: %v", domain.ErrDataUnavailable, err))
	}

	prior, reasoning := dataPrior, fmt.Sprintf("matched %d observations", len(rows))
	if len(rows) == 0 {
		prior, reasoning = dataWeakPrior, "no matching observations in the scenario dataset"
	}
	sources := observationSources(rows)
	suggestions := dataSuggestions(filter)

	if !d.hasLLM() {
		if len(rows) == 0 {
			return d.fail(reasoning)
		}
		content := "Matching values from the scenario dataset:\n\n" + observationTable(rows)
		return d.respond(content, prior, query, sources, reasoning+" (offline rendering)", suggestions)
	}

	system := d.systemPrompt("You are an energy data analyst for Switzerland. Answer with concrete figures, units and years from the scenario dataset.", qctx)
	table := observationTable(rows)
	if table == "" {
		table = "(no matching rows)"
	}
	answer, err := d.ask(ctx, system, userPrompt(query, table, qctx))
	if err != nil {
		return d.llmFailure(ctx, err)
	}
	return d.respond(answer, prior, query, sources, reasoning, suggestions)
}

// buildFilter narrows the dataset to the scenarios, indicators and years the
// query mentions. Unmentioned dimensions stay unfiltered.
func buildFilter(ctx context.Context, store domain.ScenarioStore, query string) (domain.ObservationQuery, error) {
	scenarios, err := store.Scenarios(ctx)
	if err != nil {
		return domain.ObservationQuery{}, err
	}
	indicators, err := store.Indicators(ctx)
	if err != nil {
		return domain.ObservationQuery{}, err
	}
	return domain.ObservationQuery{
		Scenarios:  mentionedScenarios(query, scenarios),
		Indicators: mentioned(query, indicators),
		Years:      mentionedYears(query),
	}, nil
}

// mentionedScenarios matches scenario names by their full phrase only:
// scenario names share words ("ZERO Basis", "ZERO A") so word overlap would
// select all of them.
func mentionedScenarios(query string, scenarios []string) []string {
	q := " " + normalize(query) + " "
	var out []string
	for _, s := range scenarios {
		if n := normalize(s); n != "" && strings.Contains(q, " "+n+" ") {
			out = append(out, s)
		}
	}
	return out
}

func observationSources(rows []domain.Observation) []string {
	var out []string
	for _, r := range rows {
		if r.Source != "" && !slices.Contains(out, r.Source) {
			out = append(out, r.Source)
		}
	}
	return out
}

// observationTable renders rows as a markdown table.
func observationTable(rows []domain.Observation) string {
	if len(rows) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("| Scenario | Indicator | Sector | Year | Value | Unit |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %s | %s |\n",
			r.Scenario, r.Indicator, r.Sector, r.Year, formatValue(r.Value), r.Unit)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dataSuggestions(f domain.ObservationQuery) []string {
	switch {
	case len(f.Indicators) > 0 && len(f.Scenarios) < 2:
		return []string{fmt.Sprintf("How does %s differ between scenarios?", strings.ReplaceAll(f.Indicators[0], "_", " "))}
	case len(f.Indicators) == 0:
		return []string{"Which indicators does the scenario dataset cover?"}
	default:
		return nil
	}
}
