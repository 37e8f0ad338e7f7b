package multiagent

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyscope/internal/domain"
)

func defaultOpts() RouterOptions {
	return RouterOptions{Threshold: 0.3, Margin: 0.25, MaxSpecialists: 3}
}

func TestLexicalClassifier(t *testing.T) {
	c := NewLexicalClassifier(nil)
	tests := []struct {
		query string
		want  IntentScores
	}{
		{"hello there", IntentScores{}},
		{"What was electricity demand in 2030?", IntentScores{domain.IntentStatistics: 0.75}},
		{"Which policy targets apply?", IntentScores{domain.IntentPolicy: 0.75}},
		{"Compare the scenarios", IntentScores{domain.IntentComparison: 0.5, domain.IntentScenario: 0.5}},
		{"How was the methodology of the model chosen?", IntentScores{domain.IntentMethodology: 0.9375}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.query)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for in, score := range tt.want {
				assert.InDelta(t, score, got[in], 1e-9, "intent %s", in)
			}
		})
	}
}

func TestMatchKeyword(t *testing.T) {
	words := tokenize("Business as usual vs. ZERO-Basis policies")
	padded := " " + joinWords(words) + " "
	assert.True(t, matchKeyword("business as usual", words, padded))
	assert.True(t, matchKeyword("zero basis", words, padded))
	assert.True(t, matchKeyword("polic*", words, padded))
	assert.True(t, matchKeyword("vs", words, padded))
	assert.False(t, matchKeyword("act", words, padded))
}

func joinWords(w []string) string {
	out := ""
	for i, s := range w {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

func TestRouteEmptyQuery(t *testing.T) {
	r, _ := standardRegistry()
	router := NewRouter(r, nil, defaultOpts(), nil)
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := router.Route(context.Background(), q, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	}
}

func TestRouteFallsBackToDefault(t *testing.T) {
	r, _ := standardRegistry()
	router := NewRouter(r, nil, defaultOpts(), nil)

	d, err := router.Route(context.Background(), "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"data"}, d.Specialists)
	assert.True(t, d.Fallback)
}

func TestRouteFanOutWithinMargin(t *testing.T) {
	r, _ := standardRegistry()
	router := NewRouter(r, nil, defaultOpts(), nil)

	d, err := router.Route(context.Background(), "What policy supports the scenario's emissions target?", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"policy", "data", "scenario"}, d.Specialists)
	assert.False(t, d.Fallback)
	assert.Equal(t, domain.IntentPolicy, d.Intents[0])
	assert.InDelta(t, 0.75, d.Scores["policy"], 1e-9)
}

func TestRouteCapAndTieBreak(t *testing.T) {
	r, _ := standardRegistry()
	opts := defaultOpts()
	opts.MaxSpecialists = 2
	router := NewRouter(r, nil, opts, nil)

	d, err := router.Route(context.Background(), "What policy supports the scenario's emissions target?", nil)
	require.NoError(t, err)
	// data and scenario tie; data was registered first.
	assert.Equal(t, []string{"policy", "data"}, d.Specialists)
}

func TestRouteDeterministic(t *testing.T) {
	r, _ := standardRegistry()
	router := NewRouter(r, nil, defaultOpts(), nil)
	first, err := router.Route(context.Background(), "Compare the scenarios", nil)
	require.NoError(t, err)
	for range 20 {
		d, err := router.Route(context.Background(), "Compare the scenarios", nil)
		require.NoError(t, err)
		assert.Equal(t, first.Specialists, d.Specialists)
	}
	// comparison is shared, so scenario scores 0.75 and data 0.5.
	assert.Equal(t, []string{"scenario", "data"}, first.Specialists)
}

func TestRouteThreshold(t *testing.T) {
	r, _ := standardRegistry()
	opts := defaultOpts()
	opts.Threshold = 0.8
	router := NewRouter(r, nil, opts, nil)

	d, err := router.Route(context.Background(), "Which policy applies?", nil)
	require.NoError(t, err)
	assert.True(t, d.Fallback)
	assert.Equal(t, []string{"data"}, d.Specialists)
}

func TestRouteUsesHistoryForFollowUps(t *testing.T) {
	r, _ := standardRegistry()
	router := NewRouter(r, nil, defaultOpts(), nil)
	history := []domain.ConversationEntry{{Query: "Which policy instruments exist?"}}

	d, err := router.Route(context.Background(), "what about it?", history)
	require.NoError(t, err)
	assert.False(t, d.Fallback)
	assert.Equal(t, []string{"policy"}, d.Specialists)
}

func TestLLMClassifier(t *testing.T) {
	llm := &scriptedLLM{reply: "```json\n{\"intents\":[{\"intent\":\"policy\",\"score\":0.9},{\"intent\":\"bogus\",\"score\":1}]}\n```"}
	c, err := NewLLMClassifier(llm, "test-model", time.Second, NewLexicalClassifier(nil), nil)
	require.NoError(t, err)

	scores, err := c.Classify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, IntentScores{domain.IntentPolicy: 0.9}, scores)

	r, _ := standardRegistry()
	d, err := NewRouter(r, c, defaultOpts(), nil).Route(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"policy"}, d.Specialists)
}

func TestLLMClassifierFallsBack(t *testing.T) {
	tests := map[string]*scriptedLLM{
		"provider error":   {err: domain.ErrProviderError},
		"invalid json":     {reply: "policy, probably"},
		"schema violation": {reply: `{"intents":[{"intent":"policy","score":7}]}`},
		"missing field":    {reply: `{"labels":["policy"]}`},
	}
	for name, llm := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := NewLLMClassifier(llm, "m", time.Second, NewLexicalClassifier(nil), nil)
			require.NoError(t, err)
			scores, err := c.Classify(context.Background(), "electricity demand")
			require.NoError(t, err)
			assert.InDelta(t, 0.5, scores[domain.IntentStatistics], 1e-9)
			assert.NotContains(t, scores, domain.IntentPolicy)
		})
	}
}

func TestLLMClassifierCancelled(t *testing.T) {
	llm := &scriptedLLM{err: context.Canceled}
	c, err := NewLLMClassifier(llm, "m", time.Second, NewLexicalClassifier(nil), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Classify(ctx, "demand")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSpecialistScoreNoisyOr(t *testing.T) {
	desc := domain.CapabilityDescriptor{SupportedIntents: []domain.Intent{domain.IntentStatistics, domain.IntentTrend}}
	got := specialistScore(desc, IntentScores{domain.IntentStatistics: 0.5, domain.IntentTrend: 0.5, domain.IntentPolicy: 1})
	assert.InDelta(t, 0.75, got, 1e-9)
	assert.True(t, slices.Equal(rankedIntents(IntentScores{domain.IntentTrend: 0.5, domain.IntentPolicy: 0.9}),
		[]domain.Intent{domain.IntentPolicy, domain.IntentTrend}))
}
