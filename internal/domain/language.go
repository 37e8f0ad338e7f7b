package domain

import (
	"context"
	"strings"
)

// LanguageCode is an ISO 639-1 code.
type LanguageCode string

const (
	LangEnglish LanguageCode = "en"
	LangGerman  LanguageCode = "de"
	LangFrench  LanguageCode = "fr"
	LangItalian LanguageCode = "it"
)

// LanguageNames maps supported codes to their English names.
var LanguageNames = map[LanguageCode]string{
	LangEnglish: "English",
	LangGerman:  "German",
	LangFrench:  "French",
	LangItalian: "Italian",
}

// ParseLanguage normalizes s into a LanguageCode. Unknown codes return false.
func ParseLanguage(s string) (LanguageCode, bool) {
	code := LanguageCode(strings.ToLower(strings.TrimSpace(s)))
	_, ok := LanguageNames[code]
	return code, ok
}

// Translator is the primitive used by the translation adapter.
type Translator interface {
	Translate(ctx context.Context, text string, from, to LanguageCode) (string, error)
	DetectLanguage(ctx context.Context, text string) (LanguageCode, error)
}
