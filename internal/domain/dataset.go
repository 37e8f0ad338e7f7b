package domain

import "context"

// Observation is one value of an indicator in a scenario for a given year.
type Observation struct {
	Scenario  string  `json:"scenario"`
	Indicator string  `json:"indicator"`
	Sector    string  `json:"sector,omitempty"`
	Unit      string  `json:"unit"`
	Year      int     `json:"year"`
	Value     float64 `json:"value"`
	Source    string  `json:"source"`
}

// ObservationQuery filters observations. Empty slices match everything.
type ObservationQuery struct {
	Scenarios  []string
	Indicators []string
	Sectors    []string
	Years      []int
	Limit      int
}

// ScenarioStore serves the scenario dataset to the data and scenario specialists.
type ScenarioStore interface {
	Query(ctx context.Context, q ObservationQuery) ([]Observation, error)
	Scenarios(ctx context.Context) ([]string, error)
	Indicators(ctx context.Context) ([]string, error)
	Sources(ctx context.Context) ([]string, error)
}

// Passage is a scored excerpt from a report.
type Passage struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// ReportIndex retrieves report passages relevant to a query.
type ReportIndex interface {
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
	Documents() []string
}
