package models

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage canonicalizes a language tag ("EN-us" -> "en-US",
// "eng" -> "en"). Unparseable values are returned trimmed and unchanged.
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	return tag.String()
}

// BaseLanguage returns the primary language subtag ("pt-BR" -> "pt").
func BaseLanguage(lang string) string {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			return strings.ToLower(lang[:i])
		}
		return strings.ToLower(strings.TrimSpace(lang))
	}
	base, _ := tag.Base()
	return base.String()
}
