package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyscope/internal/domain"
)

func TestProcessQueryRejectsEmpty(t *testing.T) {
	f := newFixture(10)
	for _, q := range []string{"", "  ", "\t\n"} {
		resp, err := f.orch.ProcessQuery(context.Background(), q, domain.QueryContext{})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	}
	assert.Zero(t, f.totalCalls(), "no specialist may run for an empty query")
	assert.Zero(t, f.session.Len())
}

func TestProcessQuerySingleSpecialist(t *testing.T) {
	f := newFixture(10)
	resp, err := f.orch.ProcessQuery(context.Background(), "What was electricity demand in 2030?", domain.QueryContext{UserType: domain.UserStudent})
	require.NoError(t, err)

	assert.Equal(t, []string{"data"}, resp.Specialists)
	assert.Equal(t, "data answer", resp.Content)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	assert.Equal(t, domain.LangEnglish, resp.Language)
	assert.False(t, resp.Degraded)
	assert.Equal(t, domain.UserStudent, f.stubs["data"].lastUser)
	assert.Zero(t, f.stubs["policy"].calls.Load())

	require.Equal(t, 1, f.session.Len())
	for e := range f.orch.History(0) {
		assert.Equal(t, "What was electricity demand in 2030?", e.Query)
		assert.Equal(t, uint64(1), e.Seq)
		assert.NotEmpty(t, e.ID)
		assert.Same(t, resp, e.Response)
	}
}

func TestProcessQueryFanOutMergesSources(t *testing.T) {
	f := newFixture(10)
	f.stubs["data"].resp.DataSources = []string{"ep2050.csv", "data.csv"}
	f.stubs["scenario"].resp.DataSources = []string{"ep2050.csv", "scenario.csv"}
	f.stubs["data"].delay = 50 * time.Millisecond

	resp, err := f.orch.ProcessQuery(context.Background(), "Compare the scenarios", domain.QueryContext{})
	require.NoError(t, err)

	assert.Equal(t, []string{"scenario", "data"}, resp.Specialists)
	assert.Equal(t, []string{"ep2050.csv", "scenario.csv", "data.csv"}, resp.DataSources)
	assert.True(t, strings.Index(resp.Content, "## Stub scenario") < strings.Index(resp.Content, "## Stub data"))
	assert.Contains(t, resp.Intents, domain.IntentComparison)
}

func TestProcessQueryTotalFailure(t *testing.T) {
	f := newFixture(10)
	for _, s := range f.stubs {
		s.resp = domain.AgentResponse{Content: "could not answer", Confidence: 0, Reasoning: "backend down"}
	}
	resp, err := f.orch.ProcessQuery(context.Background(), "Compare the scenarios", domain.QueryContext{})
	require.NoError(t, err)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, TotalFailureContent, resp.Content)
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Reasoning, "scenario: backend down")
	assert.Contains(t, resp.Reasoning, "data: backend down")
}

func TestProcessQueryFallback(t *testing.T) {
	f := newFixture(10)
	resp, err := f.orch.ProcessQuery(context.Background(), "hello there", domain.QueryContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"data"}, resp.Specialists)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[len(resp.Warnings)-1], "default specialist")
}

func TestProcessQueryConfidenceAlwaysBounded(t *testing.T) {
	f := newFixture(10)
	f.stubs["data"].resp.Confidence = 4
	f.stubs["scenario"].resp.Confidence = -3
	queries := []string{"Compare the scenarios", "demand in 2050", "x", "policy levy", "what report?"}
	for _, q := range queries {
		resp, err := f.orch.ProcessQuery(context.Background(), q, domain.QueryContext{})
		require.NoError(t, err, q)
		assert.GreaterOrEqual(t, resp.Confidence, 0.0, q)
		assert.LessOrEqual(t, resp.Confidence, 1.0, q)
	}
}

func TestProcessQueryTranslatesRoundTrip(t *testing.T) {
	f := newFixture(10)
	f.translator.detect = domain.LangGerman
	f.translator.fixed = map[string]string{
		"Welche Politik gilt?": "Which policy applies?",
	}

	resp, err := f.orch.ProcessQuery(context.Background(), "Welche Politik gilt?", domain.QueryContext{})
	require.NoError(t, err)

	assert.Equal(t, "Which policy applies?", f.stubs["policy"].query())
	assert.Equal(t, domain.LangGerman, resp.Language)
	assert.Equal(t, "[de] policy answer", resp.Content)
	assert.Equal(t, []string{"[de] More about policy?"}, resp.Suggestions)
	assert.False(t, resp.Degraded)

	var entry domain.ConversationEntry
	for e := range f.orch.History(1) {
		entry = e
	}
	assert.Equal(t, "Welche Politik gilt?", entry.Query, "history keeps the original query")
	assert.Equal(t, domain.LangGerman, entry.Language)
}

func TestProcessQueryDeclaredLanguageIsDisplayTarget(t *testing.T) {
	f := newFixture(10)
	resp, err := f.orch.ProcessQuery(context.Background(), "Which policy applies?", domain.QueryContext{Language: domain.LangFrench})
	require.NoError(t, err)
	assert.Equal(t, "Which policy applies?", f.stubs["policy"].query())
	assert.Equal(t, domain.LangFrench, resp.Language)
	assert.Equal(t, "[fr] policy answer", resp.Content)
}

func TestProcessQueryWorkingLanguageIsNoOp(t *testing.T) {
	f := newFixture(10)
	_, err := f.orch.ProcessQuery(context.Background(), "Which policy applies?", domain.QueryContext{Language: domain.LangEnglish})
	require.NoError(t, err)
	assert.Zero(t, f.translator.translations)
}

func TestProcessQueryTranslationFailureDegrades(t *testing.T) {
	f := newFixture(10)
	f.translator.detect = domain.LangGerman
	f.translator.err = domain.ErrTranslationFailed

	resp, err := f.orch.ProcessQuery(context.Background(), "Welche Politik gilt?", domain.QueryContext{})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, domain.LangEnglish, resp.Language)
	assert.Equal(t, "Welche Politik gilt?", f.stubs["policy"].query(), "untranslated query is routed as-is")
	assert.True(t, slices.ContainsFunc(resp.Warnings, func(w string) bool {
		return strings.HasPrefix(w, "query not translated")
	}))
	assert.True(t, slices.ContainsFunc(resp.Warnings, func(w string) bool {
		return strings.HasPrefix(w, "answer not translated")
	}))
}

func TestProcessQueryCancelledRecordsNothing(t *testing.T) {
	f := newFixture(10)
	f.stubs["data"].delay = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	resp, err := f.orch.ProcessQuery(ctx, "demand in 2050", domain.QueryContext{})

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, f.session.Len())
}

func TestProcessQueryPassesHistory(t *testing.T) {
	f := newFixture(10)
	for _, q := range []string{"demand in 2030", "demand in 2040", "demand in 2050", "demand in 2060"} {
		_, err := f.orch.ProcessQuery(context.Background(), q, domain.QueryContext{})
		require.NoError(t, err)
	}
	assert.Equal(t, historyWindow, f.stubs["data"].lastHistory)
}

func TestProcessQueryEvictsOldest(t *testing.T) {
	f := newFixture(2)
	for _, q := range []string{"demand in 2030", "demand in 2040", "demand in 2050"} {
		_, err := f.orch.ProcessQuery(context.Background(), q, domain.QueryContext{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.orch.HistoryLen())
	var got []string
	for e := range f.orch.History(0) {
		got = append(got, e.Query)
	}
	assert.Equal(t, []string{"demand in 2050", "demand in 2040"}, got)

	f.orch.ClearHistory()
	assert.Zero(t, f.orch.HistoryLen())
}

func TestOrchestratorSpecialists(t *testing.T) {
	f := newFixture(10)
	var names []string
	for d := range f.orch.Specialists() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"data", "scenario", "document", "policy", "translation"}, names)
}

func TestProcessQueryShortEnglishOffline(t *testing.T) {
	f := newFixture(10)
	f.orch.translation = NewTranslationAdapter(nil, TranslationOptions{MinConfidence: 0.5}, nil)

	for _, q := range []string{"emissions trend", "hydrogen demand 2050"} {
		resp, err := f.orch.ProcessQuery(context.Background(), q, domain.QueryContext{})
		require.NoError(t, err)
		assert.Equal(t, domain.LangEnglish, resp.Language, q)
		assert.False(t, resp.Degraded, q)
		for _, w := range resp.Warnings {
			assert.NotContains(t, w, "not translated", q)
		}
	}
}
