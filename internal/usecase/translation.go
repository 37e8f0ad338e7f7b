package usecase

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"go.opentelemetry.io/otel/trace"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
	"energyscope/internal/infra/tracer"
)

// whatlangCodes maps supported languages to the detector's identifiers.
var whatlangCodes = map[domain.LanguageCode]whatlanggo.Lang{
	domain.LangEnglish: whatlanggo.Eng,
	domain.LangGerman:  whatlanggo.Deu,
	domain.LangFrench:  whatlanggo.Fra,
	domain.LangItalian: whatlanggo.Ita,
}

// TranslationOptions configures the TranslationAdapter.
type TranslationOptions struct {
	Working   domain.LanguageCode
	Supported []domain.LanguageCode
	// MinConfidence is the detector confidence below which the backing
	// translator is asked instead.
	MinConfidence float64
	// Timeout bounds each call to the backing translator.
	Timeout time.Duration
}

// TranslationResult is the outcome of a best-effort translation.
type TranslationResult struct {
	Text       string
	Translated bool
	// Degraded is set when translation failed and Text is the original input.
	Degraded bool
	Cause    string
}

// TranslationAdapter keeps the pipeline language-agnostic: it detects the
// query language and translates to and from the working language. It never
// fails; a failed translation returns the original text marked as degraded.
type TranslationAdapter struct {
	translator domain.Translator
	opts       TranslationOptions
	whitelist  map[whatlanggo.Lang]bool
	logger     *slog.Logger
}

// NewTranslationAdapter creates an adapter. translator may be nil, in which
// case only detection works and every translation degrades.
func NewTranslationAdapter(translator domain.Translator, opts TranslationOptions, log *slog.Logger) *TranslationAdapter {
	if opts.Working == "" {
		opts.Working = domain.LangEnglish
	}
	if len(opts.Supported) == 0 {
		opts.Supported = []domain.LanguageCode{domain.LangEnglish, domain.LangGerman, domain.LangFrench, domain.LangItalian}
	}
	whitelist := make(map[whatlanggo.Lang]bool)
	for _, code := range opts.Supported {
		if lang, ok := whatlangCodes[code]; ok {
			whitelist[lang] = true
		}
	}
	return &TranslationAdapter{
		translator: translator,
		opts:       opts,
		whitelist:  whitelist,
		logger:     logger.OrNop(log),
	}
}

// Working returns the working language.
func (a *TranslationAdapter) Working() domain.LanguageCode { return a.opts.Working }

// Supports reports whether code is one of the supported languages.
func (a *TranslationAdapter) Supports(code domain.LanguageCode) bool {
	return slices.Contains(a.opts.Supported, code)
}

// minDetectWords is the number of words below which trigram detection is
// not trusted. Short keyword queries like "hydrogen demand 2050" are
// confidently misdetected.
const minDetectWords = 4

// Detect identifies the language of text among the supported set. Trigram
// detection is used when it is confident and the text is long enough;
// otherwise the backing translator decides, and the working language is the
// last resort.
func (a *TranslationAdapter) Detect(ctx context.Context, text string) domain.LanguageCode {
	info := whatlanggo.DetectWithOptions(text, whatlanggo.Options{Whitelist: a.whitelist})
	code := domain.LanguageCode(info.Lang.Iso6391())
	if a.Supports(code) && info.Confidence >= a.opts.MinConfidence && countWords(text) >= minDetectWords {
		return code
	}
	if a.translator != nil {
		ctx, cancel := a.withTimeout(ctx)
		defer cancel()
		detected, err := a.translator.DetectLanguage(ctx, text)
		if err == nil && a.Supports(detected) {
			return detected
		}
		if err != nil {
			a.logger.Debug("translator language detection failed", "error", err)
		}
	}
	a.logger.Debug("language detection inconclusive, using working language",
		"guess", code, "confidence", info.Confidence)
	return a.opts.Working
}

// countWords counts the words of text that contain at least one letter.
func countWords(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if strings.IndexFunc(w, unicode.IsLetter) >= 0 {
			n++
		}
	}
	return n
}

// ResolveLanguage returns the language used for routing. The detected
// language wins over a declared one that disagrees with it.
func (a *TranslationAdapter) ResolveLanguage(ctx context.Context, text string, declared domain.LanguageCode) domain.LanguageCode {
	detected := a.Detect(ctx, text)
	if declared != "" && declared != detected {
		a.logger.Debug("declared language differs from detected", "declared", declared, "detected", detected)
	}
	return detected
}

// ToWorking translates text from source into the working language.
func (a *TranslationAdapter) ToWorking(ctx context.Context, text string, source domain.LanguageCode) TranslationResult {
	return a.translate(ctx, text, source, a.opts.Working)
}

// FromWorking translates text from the working language into target.
func (a *TranslationAdapter) FromWorking(ctx context.Context, text string, target domain.LanguageCode) TranslationResult {
	return a.translate(ctx, text, a.opts.Working, target)
}

func (a *TranslationAdapter) translate(ctx context.Context, text string, from, to domain.LanguageCode) TranslationResult {
	if from == to || !a.Supports(from) || !a.Supports(to) || strings.TrimSpace(text) == "" {
		return TranslationResult{Text: text}
	}
	if a.translator == nil {
		return a.degrade(text, from, to, "no translator configured")
	}

	ctx, span := tracer.StartSpan(ctx, "translation.translate", trace.WithAttributes(
		tracer.StringAttr("translation.from", string(from)),
		tracer.StringAttr("translation.to", string(to)),
	))
	defer span.End()

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	out, err := a.translator.Translate(ctx, text, from, to)
	if err != nil {
		tracer.RecordError(span, err)
		return a.degrade(text, from, to, err.Error())
	}
	if strings.TrimSpace(out) == "" {
		return a.degrade(text, from, to, "translator returned empty text")
	}
	tracer.SetOK(span)
	return TranslationResult{Text: out, Translated: true}
}

func (a *TranslationAdapter) degrade(text string, from, to domain.LanguageCode, cause string) TranslationResult {
	a.logger.Warn("translation degraded, passing text through", "from", from, "to", to, "cause", cause)
	return TranslationResult{Text: text, Degraded: true, Cause: cause}
}

func (a *TranslationAdapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.Timeout > 0 {
		return context.WithTimeout(ctx, a.opts.Timeout)
	}
	return context.WithCancel(ctx)
}
