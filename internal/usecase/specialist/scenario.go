package specialist

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"energyscope/internal/domain"
)

// milestoneYears are compared when the query names no year.
var milestoneYears = []int{2030, 2040, 2050}

const (
	maxComparedIndicators = 5
	scenarioPrior         = 0.75
)

// Scenario compares the Energy Perspectives scenarios with each other.
type Scenario struct {
	base
	store domain.ScenarioStore
}

// NewScenario creates the scenario specialist.
func NewScenario(store domain.ScenarioStore, opts Options) *Scenario {
	return &Scenario{
		base: newBase(domain.CapabilityDescriptor{
			Name:        "scenario",
			DisplayName: "Scenario Analysis",
			Description: "Compares the ZERO and business-as-usual pathways at milestone years and explains their differences.",
			SupportedIntents: []domain.Intent{
				domain.IntentScenario, domain.IntentComparison,
			},
		}, opts),
		store: store,
	}
}

// Process implements domain.Specialist.
func (s *Scenario) Process(ctx context.Context, query string, qctx domain.QueryContext) domain.AgentResponse {
	if s.store == nil {
		return s.fail(domain.ErrDataUnavailable.Error())
	}
	filter, err := buildFilter(ctx, s.store, query)
	if err != nil {
		s.log.Warn("dataset lookup failed", "error", err)
		return s.fail(fmt.Sprintf("%s: %v", domain.ErrDataUnavailable, err))
	}
	if len(filter.Years) == 0 {
		filter.Years = milestoneYears
	}
	if len(filter.Indicators) == 0 {
		all, err := s.store.Indicators(ctx)
		if err != nil {
			return s.fail(fmt.Sprintf("%s: %v", domain.ErrDataUnavailable, err))
		}
		filter.Indicators = all
	}
	if len(filter.Indicators) > maxComparedIndicators {
		filter.Indicators = filter.Indicators[:maxComparedIndicators]
	}
	rows, err := s.store.Query(ctx, filter)
	if err != nil {
		s.log.Warn("dataset query failed", "error", err)
		return s.fail(fmt.Sprintf("%s: %v", domain.ErrDataUnavailable, err))
	}
	cmp := compareScenarios(rows)
	if len(cmp.scenarios) == 0 {
		return s.fail("no scenario values for the requested indicators and years")
	}

	reasoning := fmt.Sprintf("compared %d scenarios across %d indicator-years", len(cmp.scenarios), len(cmp.keys))
	sources := observationSources(rows)
	suggestions := []string{"Which policy instruments drive the difference between the scenarios?"}

	if !s.hasLLM() {
		content := "Scenario comparison:\n\n" + cmp.table()
		return s.respond(content, scenarioPrior, query, sources, reasoning+" (offline rendering)", suggestions)
	}
	system := s.systemPrompt("You are a scenario analyst for the Swiss Energy Perspectives 2050+. Explain how the pathways differ and why, citing the values.", qctx)
	answer, err := s.ask(ctx, system, userPrompt(query, cmp.table(), qctx))
	if err != nil {
		return s.llmFailure(ctx, err)
	}
	return s.respond(answer, scenarioPrior, query, sources, reasoning, suggestions)
}

type cmpKey struct {
	indicator, sector, unit string
	year                    int
}

// comparison pivots observations to one row per indicator-year and one
// column per scenario.
type comparison struct {
	scenarios []string
	keys      []cmpKey
	values    map[cmpKey]map[string]float64
}

func compareScenarios(rows []domain.Observation) comparison {
	c := comparison{values: make(map[cmpKey]map[string]float64)}
	for _, r := range rows {
		if !slices.Contains(c.scenarios, r.Scenario) {
			c.scenarios = append(c.scenarios, r.Scenario)
		}
		k := cmpKey{indicator: r.Indicator, sector: r.Sector, unit: r.Unit, year: r.Year}
		if _, ok := c.values[k]; !ok {
			c.keys = append(c.keys, k)
			c.values[k] = make(map[string]float64)
		}
		c.values[k][r.Scenario] = r.Value
	}
	return c
}

// table renders the pivot. With two or more scenarios a delta column shows
// the second scenario relative to the first.
func (c comparison) table() string {
	var sb strings.Builder
	sb.WriteString("| Indicator | Year | Unit |")
	for _, s := range c.scenarios {
		fmt.Fprintf(&sb, " %s |", s)
	}
	withDelta := len(c.scenarios) >= 2
	if withDelta {
		fmt.Fprintf(&sb, " %s vs %s |", c.scenarios[1], c.scenarios[0])
	}
	sb.WriteString("\n|---|---|---|")
	sb.WriteString(strings.Repeat("---|", len(c.scenarios)))
	if withDelta {
		sb.WriteString("---|")
	}
	for _, k := range c.keys {
		name := k.indicator
		if k.sector != "" {
			name += " (" + k.sector + ")"
		}
		fmt.Fprintf(&sb, "\n| %s | %d | %s |", name, k.year, k.unit)
		vals := c.values[k]
		for _, s := range c.scenarios {
			if v, ok := vals[s]; ok {
				fmt.Fprintf(&sb, " %s |", formatValue(v))
			} else {
				sb.WriteString(" - |")
			}
		}
		if withDelta {
			a, okA := vals[c.scenarios[0]]
			b, okB := vals[c.scenarios[1]]
			if okA && okB {
				fmt.Fprintf(&sb, " %s |", formatDelta(b-a))
			} else {
				sb.WriteString(" - |")
			}
		}
	}
	return sb.String()
}

func formatDelta(d float64) string {
	d = math.Round(d*1e4) / 1e4
	if d > 0 {
		return "+" + formatValue(d)
	}
	return formatValue(d)
}
