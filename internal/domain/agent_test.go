package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.3))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
	assert.Equal(t, 0.0, ClampConfidence(math.NaN()))
}

func TestAgentResponseFailed(t *testing.T) {
	assert.True(t, AgentResponse{Content: "x", Confidence: 0}.Failed())
	assert.True(t, AgentResponse{Content: "  ", Confidence: 0.8}.Failed())
	assert.False(t, AgentResponse{Content: "x", Confidence: 0.1}.Failed())
}

func TestCapabilityDescriptorSupports(t *testing.T) {
	c := CapabilityDescriptor{Name: "data", SupportedIntents: []Intent{IntentStatistics, IntentTrend}}
	assert.True(t, c.Supports(IntentTrend))
	assert.False(t, c.Supports(IntentPolicy))
}

func TestParseHelpers(t *testing.T) {
	in, ok := ParseIntent(" Policy ")
	assert.True(t, ok)
	assert.Equal(t, IntentPolicy, in)
	_, ok = ParseIntent("weather")
	assert.False(t, ok)

	u, ok := ParseUserType("Journalist")
	assert.True(t, ok)
	assert.Equal(t, UserJournalist, u)
	_, ok = ParseUserType("robot")
	assert.False(t, ok)

	l, ok := ParseLanguage("DE")
	assert.True(t, ok)
	assert.Equal(t, LangGerman, l)
	_, ok = ParseLanguage("es")
	assert.False(t, ok)
}
