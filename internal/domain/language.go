package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is used when neither the caller nor the configuration names one.
const DefaultLanguage = "en"

// NormalizeLanguage reduces a BCP 47 tag to its base language ("fr-CA" -> "fr").
// Empty or unparsable input yields fallback, or DefaultLanguage when fallback is empty too.
func NormalizeLanguage(code, fallback string) string {
	if fallback == "" {
		fallback = DefaultLanguage
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fallback
	}
	tag, err := language.Parse(code)
	if err != nil {
		return fallback
	}
	base, conf := tag.Base()
	if conf == language.No {
		return fallback
	}
	return base.String()
}

// LanguageFromAcceptHeader picks the preferred language of an Accept-Language header.
func LanguageFromAcceptHeader(header, fallback string) string {
	if header == "" {
		return NormalizeLanguage("", fallback)
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return NormalizeLanguage("", fallback)
	}
	return NormalizeLanguage(tags[0].String(), fallback)
}
