package specialist

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"energyscope/internal/domain"
)

const translationPrior = 0.8

const translatorRole = `You are a professional translator specialising in Swiss energy and climate policy terminology.
Keep official scenario names such as "ZERO" and "WWB", acronyms, numbers and units exactly as written.
Use a formal, technical register and return only the translation without explanations.`

// languageAliases maps language names in the four working languages to codes.
var languageAliases = map[string]domain.LanguageCode{
	"english": domain.LangEnglish, "englisch": domain.LangEnglish, "anglais": domain.LangEnglish, "inglese": domain.LangEnglish,
	"german": domain.LangGerman, "deutsch": domain.LangGerman, "allemand": domain.LangGerman, "tedesco": domain.LangGerman,
	"french": domain.LangFrench, "französisch": domain.LangFrench, "français": domain.LangFrench, "francais": domain.LangFrench, "francese": domain.LangFrench,
	"italian": domain.LangItalian, "italienisch": domain.LangItalian, "italien": domain.LangItalian, "italiano": domain.LangItalian,
}

// Translation translates between the supported languages. It serves both as
// a specialist for explicit translation requests and as the backing
// domain.Translator of the translation adapter.
type Translation struct {
	base
}

var _ domain.Translator = (*Translation)(nil)

// NewTranslation creates the translation specialist.
func NewTranslation(opts Options) *Translation {
	return &Translation{
		base: newBase(domain.CapabilityDescriptor{
			Name:             "translation",
			DisplayName:      "Translation",
			Description:      "Translates energy texts between English, German, French and Italian.",
			SupportedIntents: []domain.Intent{domain.IntentTranslation},
		}, opts),
	}
}

// Process implements domain.Specialist for queries such as
// `translate "net zero" into German`.
func (t *Translation) Process(ctx context.Context, query string, qctx domain.QueryContext) domain.AgentResponse {
	text, target := parseTranslationRequest(query)
	if target == "" {
		target = qctx.Language
	}
	if target == "" {
		target = domain.LangEnglish
	}
	if text == "" {
		return t.fail("no text to translate")
	}
	out, err := t.Translate(ctx, text, "", target)
	if err != nil {
		if ctx.Err() != nil {
			return t.fail("cancelled: " + ctx.Err().Error())
		}
		return t.fail(err.Error())
	}
	return domain.AgentResponse{
		Content:     out,
		// Refusals never reach here, so failure wording in out is content.
		Confidence:  estimateConfidence(translationPrior, text, ""),
		DataSources: []string{"LLM translation (" + t.desc.ModelID + ")"},
		Reasoning:   "translated into " + domain.LanguageNames[target],
	}
}

// Translate implements domain.Translator. An empty from lets the model infer
// the source language.
func (t *Translation) Translate(ctx context.Context, text string, from, to domain.LanguageCode) (string, error) {
	if from == to || strings.TrimSpace(text) == "" {
		return text, nil
	}
	toName, ok := domain.LanguageNames[to]
	if !ok {
		return "", fmt.Errorf("unsupported target language %q: %w", to, domain.ErrTranslationFailed)
	}
	instruction := "Translate the following text into " + toName + "."
	if fromName, ok := domain.LanguageNames[from]; ok {
		instruction = "Translate the following text from " + fromName + " into " + toName + "."
	}
	out, err := t.ask(ctx, translatorRole, instruction+"\n\n"+text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTranslationFailed, err)
	}
	if out == "" || declined(text, out) {
		return "", fmt.Errorf("%w: translator declined: %s", domain.ErrTranslationFailed, truncateRunes(out, 80))
	}
	return out, nil
}

// refusalPhrases are replies in which the model refused to translate. Failure
// wording in general is not one: "we are unable to" is a valid translation.
var refusalPhrases = []string{"translation error", "cannot translate", "can't translate", "unable to translate"}

// declined reports whether out is a refusal rather than a translation of text.
func declined(text, out string) bool {
	lowerIn, lowerOut := strings.ToLower(text), strings.ToLower(out)
	for _, p := range refusalPhrases {
		if strings.Contains(lowerOut, p) && !strings.Contains(lowerIn, p) {
			return true
		}
	}
	return false
}

// aliasNames lists the keys of languageAliases, longest first so that a
// longer name wins over its prefix at the same position.
var aliasNames = func() []string {
	names := slices.Collect(maps.Keys(languageAliases))
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return names
}()

// firstLanguageName returns the language whose name appears earliest in text.
func firstLanguageName(text string) (domain.LanguageCode, bool) {
	lower := strings.ToLower(text)
	best, bestAt := domain.LanguageCode(""), -1
	for _, name := range aliasNames {
		if i := strings.Index(lower, name); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = languageAliases[name], i
		}
	}
	return best, bestAt >= 0
}

var isoCode = regexp.MustCompile(`\b(en|de|fr|it)\b`)

// DetectLanguage implements domain.Translator by asking the model for an
// ISO 639-1 code.
func (t *Translation) DetectLanguage(ctx context.Context, text string) (domain.LanguageCode, error) {
	out, err := t.ask(ctx, "You identify languages. Reply with the ISO 639-1 code only: en, de, fr or it.", text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTranslationFailed, err)
	}
	if code, ok := firstLanguageName(out); ok {
		return code, nil
	}
	lower := strings.ToLower(out)
	if m := isoCode.FindString(lower); m != "" {
		return domain.LanguageCode(m), nil
	}
	return "", fmt.Errorf("%w: unrecognised language %q", domain.ErrTranslationFailed, truncateRunes(out, 40))
}

var (
	quoted    = regexp.MustCompile(`["“„«]([^"”“«»]+)["”“»]`)
	targetArg = regexp.MustCompile(`(?i)\b(?:into|to|in|auf|en)\s+(\p{L}+)`)
	verbs     = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:translate|übersetze|übersetzen|traduire|traduis|traduci|tradurre)\b\s*:?\s*`)
)

// parseTranslationRequest extracts the text and target language from a
// free-form translation request. Quoted text wins; otherwise the text after
// a colon, otherwise the request without its verb and target clause.
func parseTranslationRequest(query string) (string, domain.LanguageCode) {
	var target domain.LanguageCode
	for _, m := range targetArg.FindAllStringSubmatch(query, -1) {
		if code, ok := languageAliases[strings.ToLower(m[1])]; ok {
			target = code
		}
	}
	if m := quoted.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), target
	}
	if _, after, ok := strings.Cut(query, ":"); ok && strings.TrimSpace(after) != "" {
		return strings.TrimSpace(after), target
	}
	text := verbs.ReplaceAllString(query, "")
	if loc := targetArg.FindAllStringSubmatchIndex(text, -1); len(loc) > 0 {
		last := loc[len(loc)-1]
		if _, ok := languageAliases[strings.ToLower(text[last[2]:last[3]])]; ok {
			text = text[:last[0]] + text[last[1]:]
		}
	}
	return strings.TrimSpace(text), target
}
