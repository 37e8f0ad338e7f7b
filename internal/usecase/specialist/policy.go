package specialist

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"energyscope/internal/domain"
)

const (
	policyPrior      = 0.7
	policyWeakPrior  = 0.45
	maxPolicyMatches = 3
)

// Instrument is one entry of the policy catalogue.
type Instrument struct {
	Name     string
	Summary  string
	Keywords []string
	// Overview entries are used when a query matches no keyword.
	Overview bool
}

// DefaultInstruments is the built-in catalogue of Swiss energy and climate
// policy instruments.
var DefaultInstruments = []Instrument{
	{
		Name:     "Energy Strategy 2050",
		Summary:  "Accepted by referendum in 2017. Phases out new nuclear plants, raises efficiency and expands domestic renewable generation through the revised Energy Act.",
		Keywords: []string{"energy strategy", "nuclear", "energy act", "efficiency", "phase-out", "phase out"},
		Overview: true,
	},
	{
		Name:     "Climate and Innovation Act (KlG)",
		Summary:  "Accepted by referendum in 2023. Sets the legally binding net-zero target for 2050 with sectoral interim targets and funds heating replacement and industrial innovation.",
		Keywords: []string{"net zero", "net-zero", "climate act", "climate and innovation", "klg", "2050 target", "interim target"},
		Overview: true,
	},
	{
		Name:     "Federal Act on a Secure Electricity Supply from Renewable Energies",
		Summary:  "Accepted in 2024. Sets binding targets for renewable electricity production, speeds up permitting of large hydro, solar and wind projects and adds a winter reserve.",
		Keywords: []string{"electricity supply", "renewable", "solar", "wind", "hydro", "winter", "security of supply", "mantelerlass"},
	},
	{
		Name:     "CO2 Act and CO2 levy",
		Summary:  "The CO2 Act sets reduction targets and a levy on heating and process fuels; part of the revenue is redistributed to the population and part funds the Buildings Programme.",
		Keywords: []string{"co2 act", "co2 levy", "carbon tax", "levy", "heating oil", "fuel", "emission"},
	},
	{
		Name:     "Buildings Programme",
		Summary:  "Joint federal and cantonal subsidy programme for building envelope insulation, heat pumps and district heating connections.",
		Keywords: []string{"building", "insulation", "heat pump", "renovation", "district heating", "heating"},
	},
	{
		Name:     "Swiss Emissions Trading System linked with the EU ETS",
		Summary:  "Large emitters and aviation trade emission allowances; the Swiss system has been linked with the EU ETS since 2020.",
		Keywords: []string{"ets", "emissions trading", "allowance", "industry", "aviation", "cap and trade"},
	},
	{
		Name:     "Renewable investment contributions",
		Summary:  "One-off remuneration and investment contributions replace the former feed-in tariff for photovoltaics, hydropower, wind and biomass plants.",
		Keywords: []string{"feed-in", "feed in", "subsidy", "subsidies", "remuneration", "investment contribution", "photovoltaic", "pv"},
	},
	{
		Name:     "CO2 emission regulations for vehicles",
		Summary:  "Average CO2 emission limits for newly registered cars and vans aligned with EU fleet targets, supporting the shift to electric mobility.",
		Keywords: []string{"vehicle", "car", "cars", "transport", "mobility", "electric vehicle", "ev"},
	},
}

// Policy explains the policy instruments relevant to a question.
type Policy struct {
	base
	catalogue []Instrument
}

// NewPolicy creates the policy specialist. A nil catalogue selects
// DefaultInstruments.
func NewPolicy(catalogue []Instrument, opts Options) *Policy {
	if catalogue == nil {
		catalogue = DefaultInstruments
	}
	return &Policy{
		base: newBase(domain.CapabilityDescriptor{
			Name:        "policy",
			DisplayName: "Policy Context",
			Description: "Explains the Swiss policy instruments behind the energy transition and how they are implemented.",
			SupportedIntents: []domain.Intent{
				domain.IntentPolicy, domain.IntentImplementation,
			},
		}, opts),
		catalogue: catalogue,
	}
}

// Process implements domain.Specialist.
func (p *Policy) Process(ctx context.Context, query string, qctx domain.QueryContext) domain.AgentResponse {
	if len(p.catalogue) == 0 {
		return p.fail(domain.ErrDataUnavailable.Error())
	}
	matches := p.match(query)
	prior, reasoning := policyPrior, fmt.Sprintf("matched %d policy instruments", len(matches))
	if len(matches) == 0 {
		for _, in := range p.catalogue {
			if in.Overview {
				matches = append(matches, in)
			}
		}
		prior, reasoning = policyWeakPrior, "no instrument matched; using overview instruments"
	}
	if len(matches) == 0 {
		return p.fail("no policy instrument matched")
	}

	var sources []string
	var sb strings.Builder
	for i, in := range matches {
		sources = append(sources, in.Name)
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- **%s**: %s", in.Name, in.Summary)
	}
	suggestions := []string{fmt.Sprintf("How does the %s affect the scenario results?", matches[0].Name)}

	if !p.hasLLM() {
		content := "Relevant policy instruments:\n\n" + sb.String()
		return p.respond(content, prior-0.1, query, sources, reasoning+" (offline rendering)", suggestions)
	}
	system := p.systemPrompt("You are a Swiss energy and climate policy expert. Explain which instruments apply and how they are implemented.", qctx)
	answer, err := p.ask(ctx, system, userPrompt(query, sb.String(), qctx))
	if err != nil {
		return p.llmFailure(ctx, err)
	}
	return p.respond(answer, prior, query, sources, reasoning, suggestions)
}

// match ranks instruments by the number of keywords found in the query.
func (p *Policy) match(query string) []Instrument {
	q := " " + normalize(query) + " "
	type hit struct {
		in Instrument
		count int
	}
	var hits []hit
	for _, in := range p.catalogue {
		n := 0
		for _, kw := range in.Keywords {
			if strings.Contains(q, " "+normalize(kw)+" ") {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, hit{in: in, count: n})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return b.count - a.count })
	var out []Instrument
	for _, h := range hits {
		if len(out) == maxPolicyMatches {
			break
		}
		out = append(out, h.in)
	}
	return out
}
