package domain

import (
	"context"
	"strings"
)

// Intent is a coarse category of user need the router classifies queries into.
type Intent string

const (
	IntentStatistics     Intent = "statistics"
	IntentTrend          Intent = "trend"
	IntentComparison     Intent = "comparison"
	IntentScenario       Intent = "scenario"
	IntentMethodology    Intent = "methodology"
	IntentReport         Intent = "report"
	IntentPolicy         Intent = "policy"
	IntentImplementation Intent = "implementation"
	IntentTranslation    Intent = "translation"
)

// AllIntents lists every intent in a stable order.
var AllIntents = []Intent{
	IntentStatistics, IntentTrend, IntentComparison, IntentScenario,
	IntentMethodology, IntentReport, IntentPolicy, IntentImplementation,
	IntentTranslation,
}

// ParseIntent returns the Intent named by s and whether it is known.
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range AllIntents {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

// CapabilityDescriptor describes what a specialist handles. It is an
// immutable value owned by the specialist.
type CapabilityDescriptor struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"display_name"`
	Description      string   `json:"description"`
	ModelID          string   `json:"model_id"`
	SupportedIntents []Intent `json:"supported_intents"`
}

// Supports reports whether the descriptor lists the given intent.
func (c CapabilityDescriptor) Supports(in Intent) bool {
	for _, s := range c.SupportedIntents {
		if s == in {
			return true
		}
	}
	return false
}

// Specialist handles one domain of questions. Process never returns an
// error: failures are reported as a response with zero confidence and the
// cause in Reasoning.
type Specialist interface {
	Capabilities() CapabilityDescriptor
	Process(ctx context.Context, query string, qctx QueryContext) AgentResponse
}

// AgentResponse is what a single specialist produces for a query.
type AgentResponse struct {
	Content     string   `json:"content"`
	Confidence  float64  `json:"confidence"`
	DataSources []string `json:"data_sources,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Failed reports whether the response carries no usable answer.
func (r AgentResponse) Failed() bool {
	return r.Confidence <= 0 || strings.TrimSpace(r.Content) == ""
}

// ClampConfidence bounds c to [0,1]. NaN maps to 0.
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// UserType tailors how answers are phrased. It never changes routing.
type UserType string

const (
	UserCitizen     UserType = "citizen"
	UserJournalist  UserType = "journalist"
	UserStudent     UserType = "student"
	UserPolicymaker UserType = "policymaker"
)

// UserTypes lists the supported user types.
var UserTypes = []UserType{UserCitizen, UserJournalist, UserStudent, UserPolicymaker}

// ParseUserType returns the UserType named by s, or false if unknown.
func ParseUserType(s string) (UserType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, u := range UserTypes {
		if string(u) == s {
			return u, true
		}
	}
	return "", false
}

// QueryContext carries per-query metadata into every specialist.
type QueryContext struct {
	UserType UserType
	// Language is the language the caller wants the answer in. Empty means
	// "answer in the language the query was written in".
	Language LanguageCode
	History  []ConversationEntry
}
