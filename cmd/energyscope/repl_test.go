package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyscope/internal/domain"
)

type fakeAnswerer struct {
	queries []string
	qctxs   []domain.QueryContext
	history []domain.ConversationEntry
	cleared int
	err     error
}

func (f *fakeAnswerer) ProcessQuery(_ context.Context, query string, qctx domain.QueryContext) (*domain.SynthesizedResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, query)
	f.qctxs = append(f.qctxs, qctx)
	return &domain.SynthesizedResponse{
		Content:     "answer to " + query,
		Confidence:  0.8,
		Specialists: []string{"data"},
	}, nil
}

func (f *fakeAnswerer) Specialists() iter.Seq[domain.CapabilityDescriptor] {
	return slices.Values([]domain.CapabilityDescriptor{{Name: "data", DisplayName: "Energy Data"}})
}

func (f *fakeAnswerer) History(n int) iter.Seq[domain.ConversationEntry] {
	return slices.Values(f.history)
}

func (f *fakeAnswerer) ClearHistory() { f.cleared++ }

func newTestREPL(app Answerer) (*REPL, *bytes.Buffer) {
	var out bytes.Buffer
	return NewREPL(app, &out, NewRenderer(80, true), domain.QueryContext{}), &out
}

func TestREPLDefaultsToCitizen(t *testing.T) {
	r, _ := newTestREPL(&fakeAnswerer{})
	assert.Equal(t, domain.UserCitizen, r.QueryContext().UserType)
}

func TestREPLUserCommand(t *testing.T) {
	app := &fakeAnswerer{}
	r, out := newTestREPL(app)
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, "user Journalist"))
	assert.Equal(t, domain.UserJournalist, r.QueryContext().UserType)
	assert.Contains(t, out.String(), "journalist")

	err := r.Handle(ctx, "user astronaut")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "citizen, journalist, student, policymaker")
	assert.Equal(t, domain.UserJournalist, r.QueryContext().UserType)

	require.NoError(t, r.Handle(ctx, "How much solar in 2035?"))
	require.Len(t, app.qctxs, 1)
	assert.Equal(t, domain.UserJournalist, app.qctxs[0].UserType)
}

func TestREPLLangCommand(t *testing.T) {
	r, _ := newTestREPL(&fakeAnswerer{})
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, "lang DE"))
	assert.Equal(t, domain.LangGerman, r.QueryContext().Language)
	assert.Contains(t, r.prompt(), "/de")

	require.Error(t, r.Handle(ctx, "lang es"))
	assert.Equal(t, domain.LangGerman, r.QueryContext().Language)

	require.NoError(t, r.Handle(ctx, "lang auto"))
	assert.Empty(t, r.QueryContext().Language)
}

func TestREPLCommands(t *testing.T) {
	app := &fakeAnswerer{history: []domain.ConversationEntry{{
		Seq: 1, Query: "earlier question",
		Response: &domain.SynthesizedResponse{Content: "earlier answer", Confidence: 0.6},
	}}}
	r, out := newTestREPL(app)
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, "help"))
	assert.Contains(t, out.String(), "Example questions:")
	assert.Contains(t, out.String(), exampleQueries[0])

	require.NoError(t, r.Handle(ctx, "agents"))
	assert.Contains(t, out.String(), "Energy Data")

	require.NoError(t, r.Handle(ctx, "history"))
	assert.Contains(t, out.String(), "earlier question")

	require.NoError(t, r.Handle(ctx, "clear"))
	assert.Equal(t, 1, app.cleared)

	require.NoError(t, r.Handle(ctx, "   "))
	assert.Empty(t, app.queries)

	assert.ErrorIs(t, r.Handle(ctx, "exit"), errQuit)
}

func TestREPLQuestionError(t *testing.T) {
	r, _ := newTestREPL(&fakeAnswerer{err: domain.ErrInvalidQuery})
	assert.ErrorIs(t, r.Handle(context.Background(), "anything"), domain.ErrInvalidQuery)
}

func TestREPLRun(t *testing.T) {
	app := &fakeAnswerer{}
	r, out := newTestREPL(app)

	in := strings.NewReader("What is the CO2 levy?\nuser bogus\nexit\nnever asked\n")
	require.NoError(t, r.Run(context.Background(), in))

	assert.Equal(t, []string{"What is the CO2 levy?"}, app.queries)
	assert.Contains(t, out.String(), "answer to What is the CO2 levy?")
	assert.Contains(t, out.String(), "Error: unknown user type")
	assert.Contains(t, out.String(), "Goodbye.")
}

func TestREPLRunEOF(t *testing.T) {
	r, _ := newTestREPL(&fakeAnswerer{})
	assert.NoError(t, r.Run(context.Background(), strings.NewReader("")))
}

func TestREPLRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, _ := newTestREPL(&fakeAnswerer{err: errors.New("unreachable")})
	pr, pw := io.Pipe()
	defer pw.Close()
	assert.NoError(t, r.Run(ctx, pr))
}
