// Package specialist holds the domain specialists the orchestrator fans out to.
// Each specialist answers from its own data (scenario dataset, report corpus,
// policy catalogue) and, when an LLM is configured, phrases the answer with it.
// Without an LLM the specialists fall back to deterministic renderings.
package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/trace"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
	"energyscope/internal/infra/tracer"
)

// errNoLLM means the specialist runs without a language model.
var errNoLLM = errors.New("no llm configured")

// Options configures the shared specialist plumbing.
type Options struct {
	LLM         domain.LLMProvider // nil selects offline rendering
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single LLM call. The orchestrator applies its own
	// per-specialist deadline on top.
	Timeout time.Duration
	Logger  *slog.Logger
}

type base struct {
	desc domain.CapabilityDescriptor
	opts Options
	log  *slog.Logger
}

func newBase(desc domain.CapabilityDescriptor, opts Options) base {
	if desc.ModelID == "" {
		desc.ModelID = opts.Model
	}
	if desc.ModelID == "" {
		desc.ModelID = "offline"
	}
	return base{
		desc: desc,
		opts: opts,
		log:  logger.OrNop(opts.Logger).With("specialist", desc.Name),
	}
}

// Capabilities returns a copy so callers cannot mutate the descriptor.
func (b *base) Capabilities() domain.CapabilityDescriptor {
	d := b.desc
	d.SupportedIntents = slices.Clone(b.desc.SupportedIntents)
	return d
}

func (b *base) hasLLM() bool { return b.opts.LLM != nil }

// ask sends a system + user prompt to the configured LLM.
func (b *base) ask(ctx context.Context, system, user string) (string, error) {
	if b.opts.LLM == nil {
		return "", errNoLLM
	}
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	ctx, span := tracer.StartSpan(ctx, "specialist.llm",
		trace.WithAttributes(tracer.StringAttr("specialist.name", b.desc.Name)))
	defer span.End()

	resp, err := b.opts.LLM.Chat(ctx, domain.ChatRequest{
		Model: b.opts.Model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: user},
		},
		MaxTokens:   b.opts.MaxTokens,
		Temperature: b.opts.Temperature,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	return strings.TrimSpace(resp.Message.Content), nil
}

// systemPrompt assembles the role description, audience guidance and the
// suggestion convention shared by every specialist.
func (b *base) systemPrompt(role string, qctx domain.QueryContext) string {
	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString("\n\n")
	sb.WriteString(audienceGuidance(qctx.UserType))
	sb.WriteString("\nOnly use the facts provided in the context; say so when they are insufficient.")
	sb.WriteString("\nAfter the answer, add up to three lines of the form \"SUGGESTION: <follow-up question>\".")
	return sb.String()
}

// userPrompt combines recent conversation turns, domain context and the query.
func userPrompt(query, context string, qctx domain.QueryContext) string {
	var sb strings.Builder
	if turns := recentTurns(qctx.History, 3); turns != "" {
		sb.WriteString("Earlier in this conversation:\n")
		sb.WriteString(turns)
		sb.WriteString("\n")
	}
	if context != "" {
		sb.WriteString("Context:\n")
		sb.WriteString(context)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

func recentTurns(history []domain.ConversationEntry, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var sb strings.Builder
	for _, e := range history {
		fmt.Fprintf(&sb, "- Q: %s\n", truncateRunes(e.Query, 200))
	}
	return sb.String()
}

func audienceGuidance(u domain.UserType) string {
	switch u {
	case domain.UserJournalist:
		return "Audience: a journalist. Be precise and quotable, lead with the key numbers and name their sources."
	case domain.UserStudent:
		return "Audience: a student. Explain step by step and define technical terms."
	case domain.UserPolicymaker:
		return "Audience: a policymaker. Focus on implications, trade-offs and available policy levers."
	default:
		return "Audience: an interested citizen. Use plain language and avoid jargon."
	}
}

var suggestionLine = regexp.MustCompile(`(?im)^[ \t]*[-*]?[ \t]*suggestion:[ \t]*(.+?)[ \t]*$`)

// splitSuggestions removes SUGGESTION lines from text and returns them separately.
func splitSuggestions(text string) (string, []string) {
	var suggestions []string
	for _, m := range suggestionLine.FindAllStringSubmatch(text, -1) {
		suggestions = append(suggestions, m[1])
	}
	content := suggestionLine.ReplaceAllString(text, "")
	return strings.TrimSpace(content), suggestions
}

// failurePhrases mark answers in which the model declined or could not answer.
var failurePhrases = []string{
	"translation error", "unable to", "cannot translate", "cannot answer",
	"i don't know", "i do not know", "insufficient information", "not enough information",
}

// estimateConfidence applies the shared heuristic: start from prior, reward
// short queries, penalise very long ones and cap answers that read as failures.
func estimateConfidence(prior float64, query, answer string) float64 {
	c := prior
	switch words := len(strings.Fields(query)); {
	case words <= 10:
		c += 0.1
	case words > 100:
		c -= 0.1
	}
	lower := strings.ToLower(answer)
	for _, p := range failurePhrases {
		if strings.Contains(lower, p) {
			c = min(c, 0.2)
			break
		}
	}
	return domain.ClampConfidence(c)
}

// respond turns raw model output into an AgentResponse.
func (b *base) respond(raw string, prior float64, query string, sources []string, reasoning string, fallbackSuggestions []string) domain.AgentResponse {
	content, suggestions := splitSuggestions(raw)
	if len(suggestions) == 0 {
		suggestions = fallbackSuggestions
	}
	if content == "" {
		return b.fail("empty answer")
	}
	return domain.AgentResponse{
		Content:     content,
		Confidence:  estimateConfidence(prior, query, content),
		DataSources: sources,
		Reasoning:   reasoning,
		Suggestions: suggestions,
	}
}

// SoftFailure is the response a specialist returns instead of an error.
func SoftFailure(name, cause string) domain.AgentResponse {
	return domain.AgentResponse{
		Content:    fmt.Sprintf("The %s specialist could not answer this question.", name),
		Confidence: 0,
		Reasoning:  cause,
	}
}

func (b *base) fail(cause string) domain.AgentResponse {
	return SoftFailure(b.desc.Name, cause)
}

// llmFailure logs err and converts it into a soft failure. A caller
// cancellation keeps its own cause so the orchestrator can tell them apart.
func (b *base) llmFailure(ctx context.Context, err error) domain.AgentResponse {
	if ctx.Err() != nil {
		return b.fail("cancelled: " + ctx.Err().Error())
	}
	kind := classifyLLMError(err)
	b.log.Warn("llm call failed", "error", err, "retryable", kind.category == failureRetryable)
	return b.fail(kind.describe(err))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var yearPattern = regexp.MustCompile(`\b(19[5-9]\d|20\d\d|2100)\b`)

// mentionedYears extracts four-digit years from text in order of appearance.
func mentionedYears(text string) []int {
	var years []int
	for _, m := range yearPattern.FindAllString(text, -1) {
		y, _ := strconv.Atoi(m)
		if !slices.Contains(years, y) {
			years = append(years, y)
		}
	}
	return years
}

// mentioned returns the candidates that occur in the query. A candidate
// matches when its normalized phrase appears, or when any of its words of
// at least four letters appears as a query word prefix.
func mentioned(query string, candidates []string) []string {
	q := normalize(query)
	qwords := strings.Fields(q)
	var out []string
	for _, c := range candidates {
		phrase := normalize(c)
		if phrase == "" {
			continue
		}
		if strings.Contains(" "+q+" ", " "+phrase+" ") || wordsOverlap(strings.Fields(phrase), qwords) {
			out = append(out, c)
		}
	}
	return out
}

// genericWords are too common in energy questions to select an indicator on their own.
var genericWords = map[string]bool{
	"energy": true, "total": true, "share": true, "swiss": true, "switzerland": true,
	"scenario": true, "scenarios": true, "year": true, "years": true,
}

func wordsOverlap(words, qwords []string) bool {
	for _, w := range words {
		if len(w) < 4 || genericWords[w] {
			continue
		}
		for _, qw := range qwords {
			if genericWords[qw] {
				continue
			}
			if strings.HasPrefix(qw, w) || (len(qw) >= 4 && strings.HasPrefix(w, qw)) {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
