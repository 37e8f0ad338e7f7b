package domain

import "time"

// RoutingDecision is the router's output. Specialists is never empty.
type RoutingDecision struct {
	Specialists []string           `json:"specialists"`
	Intents     []Intent           `json:"intents,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	// Fallback is true when no specialist cleared the relevance threshold
	// and the default specialist was chosen.
	Fallback bool `json:"fallback"`
}

// SpecialistResult pairs a specialist's response with its identity, in
// router order.
type SpecialistResult struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Response    AgentResponse `json:"response"`
}

// SynthesizedResponse is the final answer returned to the caller.
type SynthesizedResponse struct {
	Content     string   `json:"content"`
	Confidence  float64  `json:"confidence"`
	DataSources []string `json:"data_sources,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	// SourcesOmitted and SuggestionsOmitted count entries dropped by the caps.
	SourcesOmitted     int `json:"sources_omitted,omitempty"`
	SuggestionsOmitted int `json:"suggestions_omitted,omitempty"`

	Specialists []string     `json:"specialists"`
	Intents     []Intent     `json:"intents,omitempty"`
	Language    LanguageCode `json:"language"`
	Degraded    bool         `json:"degraded,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// ConversationEntry is one recorded query/response pair.
type ConversationEntry struct {
	ID        string               `json:"id"`
	Seq       uint64               `json:"seq"`
	Query     string               `json:"query"`
	UserType  UserType             `json:"user_type"`
	Language  LanguageCode         `json:"language"`
	Response  *SynthesizedResponse `json:"response"`
	Timestamp time.Time            `json:"timestamp"`
}
