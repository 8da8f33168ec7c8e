// Package i18n renders user-facing alert and notification text.
package i18n

import (
	"embed"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

// Translator wraps a go-i18n bundle loaded from the embedded message files.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
}

// NewTranslator loads every embedded locale. defaultLocale is used when the
// caller's language has no translation.
func NewTranslator(defaultLocale string) (*Translator, error) {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range []string{"active.en.toml", "active.fr.toml"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	return &Translator{bundle: bundle, defaultLanguage: tag}, nil
}

// T renders key for locale, which may be a tag ("fr") or a raw
// Accept-Language header. Unknown keys render as the key itself.
func (t *Translator) T(locale, key string, data map[string]any) string {
	if key == "" {
		return ""
	}

	localizer := i18n.NewLocalizer(t.bundle, locale, t.defaultLanguage.String())
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		return key
	}
	return msg
}

// Localize renders key without template data.
func (t *Translator) Localize(locale, key string) string {
	return t.T(locale, key, nil)
}
