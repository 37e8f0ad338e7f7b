package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/kaptinlin/jsonschema"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
)

// IntentScores maps each detected intent to a strength in [0,1].
type IntentScores map[domain.Intent]float64

// Classifier tags a working-language query with intents.
type Classifier interface {
	Classify(ctx context.Context, query string) (IntentScores, error)
}

// DefaultLexicon lists the keywords per intent. A trailing "*" marks a stem
// that matches any word it prefixes; multi-word entries match as phrases.
// A few German, French and Italian stems cover queries whose translation
// was skipped or failed.
var DefaultLexicon = map[domain.Intent][]string{
	domain.IntentStatistics: {
		"how much", "how many", "statistic*", "number*", "figure*", "data", "value*", "amount*",
		"total", "twh", "gwh", "pj", "percent*", "share", "consumption", "demand", "production",
		"generation", "emission*", "capacity", "level*", "verbrauch*", "consommation", "consumo",
	},
	domain.IntentTrend: {
		"trend*", "increas*", "decreas*", "grow*", "growth", "declin*", "develop*", "evolution",
		"over time", "chang*", "rise", "rising", "fall", "trajector*", "entwicklung", "évolution",
	},
	domain.IntentComparison: {
		"compar*", "versus", "vs", "differ*", "between", "relative to", "than", "contrast",
		"vergleich*", "unterschied*", "confront*",
	},
	domain.IntentScenario: {
		"scenario*", "zero basis", "zero a", "zero b", "zero c", "wwb", "business as usual",
		"pathway*", "variant*", "net zero", "projection*", "perspectives", "szenari*", "scénario*",
	},
	domain.IntentMethodology: {
		"methodolog*", "method*", "model*", "assumption*", "calculat*", "how was", "how were",
		"approach", "estimat*", "annahme*", "hypothès*",
	},
	domain.IntentReport: {
		"report*", "document*", "publication*", "chapter*", "section*", "summary", "study",
		"according to", "bericht*", "rapport*",
	},
	domain.IntentPolicy: {
		"polic*", "law*", "act", "regulat*", "legislat*", "subsid*", "levy", "tax*", "strategy",
		"target*", "government", "federal", "canton*", "referendum", "incentive*", "politi*", "gesetz*", "loi",
	},
	domain.IntentImplementation: {
		"implement*", "measure*", "instrument*", "programme*", "program*", "rollout", "deploy*",
		"achiev*", "how can", "steps", "action*", "massnahme*", "maßnahme*", "mesure*", "misur*",
	},
	domain.IntentTranslation: {
		"translat*", "in german", "in french", "in italian", "in english", "übersetz*", "tradu*",
		"auf deutsch", "en français", "in italiano",
	},
}

var yearToken = regexp.MustCompile(`^(19[5-9]\d|20\d\d|2100)$`)

// LexicalClassifier scores intents by keyword hits: strength = 1 - 0.5^hits.
// Four-digit years count as statistics hits.
type LexicalClassifier struct {
	lexicon map[domain.Intent][]string
}

// NewLexicalClassifier creates a classifier over lexicon, or DefaultLexicon when nil.
func NewLexicalClassifier(lexicon map[domain.Intent][]string) *LexicalClassifier {
	if lexicon == nil {
		lexicon = DefaultLexicon
	}
	return &LexicalClassifier{lexicon: lexicon}
}

// Classify implements Classifier. It never fails.
func (c *LexicalClassifier) Classify(_ context.Context, query string) (IntentScores, error) {
	words := tokenize(query)
	padded := " " + strings.Join(words, " ") + " "
	scores := make(IntentScores)
	for intent, keywords := range c.lexicon {
		hits := 0
		for _, kw := range keywords {
			if matchKeyword(kw, words, padded) {
				hits++
			}
		}
		if intent == domain.IntentStatistics {
			for _, w := range words {
				if yearToken.MatchString(w) {
					hits++
				}
			}
		}
		if hits > 0 {
			scores[intent] = 1 - math.Pow(0.5, float64(hits))
		}
	}
	return scores, nil
}

func matchKeyword(kw string, words []string, padded string) bool {
	kw = strings.ToLower(kw)
	if stem, ok := strings.CutSuffix(kw, "*"); ok {
		for _, w := range words {
			if strings.HasPrefix(w, stem) {
				return true
			}
		}
		return false
	}
	if strings.Contains(kw, " ") {
		return strings.Contains(padded, " "+kw+" ")
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

const classifierSchema = `{
  "type": "object",
  "required": ["intents"],
  "properties": {
    "intents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["intent", "score"],
        "properties": {
          "intent": {"type": "string"},
          "score": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

// LLMClassifier asks a language model to tag the query and falls back to
// another classifier when the call fails or the answer does not validate.
type LLMClassifier struct {
	llm      domain.LLMProvider
	model    string
	timeout  time.Duration
	schema   *jsonschema.Schema
	fallback Classifier
	logger   *slog.Logger
}

// NewLLMClassifier creates an LLM-backed classifier. fallback must not be nil.
func NewLLMClassifier(llm domain.LLMProvider, model string, timeout time.Duration, fallback Classifier, log *slog.Logger) (*LLMClassifier, error) {
	schema, err := jsonschema.NewCompiler().Compile([]byte(classifierSchema))
	if err != nil {
		return nil, fmt.Errorf("compile classifier schema: %w", err)
	}
	return &LLMClassifier{
		llm:      llm,
		model:    model,
		timeout:  timeout,
		schema:   schema,
		fallback: fallback,
		logger:   logger.OrNop(log),
	}, nil
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, query string) (IntentScores, error) {
	scores, err := c.classify(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("llm classifier failed, using fallback", "error", err)
		return c.fallback.Classify(ctx, query)
	}
	return scores, nil
}

func (c *LLMClassifier) classify(ctx context.Context, query string) (IntentScores, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	names := make([]string, len(domain.AllIntents))
	for i, in := range domain.AllIntents {
		names[i] = string(in)
	}
	system := "You classify questions about the Swiss energy transition. " +
		"Known intents: " + strings.Join(names, ", ") + ". " +
		`Reply with JSON only: {"intents":[{"intent":"<name>","score":<0..1>}]}. ` +
		"Do not wrap in markdown fences."

	resp, err := c.llm.Chat(ctx, domain.ChatRequest{
		Model: c.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: query},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}
	raw := stripCodeFences(resp.Message.Content)

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrClassifierResponse, err)
	}
	if result := c.schema.Validate(parsed); !result.IsValid() {
		return nil, fmt.Errorf("%w: schema mismatch: %s", domain.ErrClassifierResponse, result.Error())
	}
	var out struct {
		Intents []struct {
			Intent string  `json:"intent"`
			Score  float64 `json:"score"`
		} `json:"intents"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClassifierResponse, err)
	}
	scores := make(IntentScores)
	for _, item := range out.Intents {
		if in, ok := domain.ParseIntent(item.Intent); ok && item.Score > 0 {
			scores[in] = max(scores[in], domain.ClampConfidence(item.Score))
		}
	}
	return scores, nil
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
