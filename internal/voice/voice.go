// Package voice builds the localized spoken announcement for a ringing
// reminder and selects a synthesis voice from whatever catalog the host
// exposes.
package voice

import (
	"fmt"
	"strings"
)

// DefaultLang is the fallback when no template or voice matches.
const DefaultLang = "en"

// Voice identifies one entry in a host voice catalog.
type Voice struct {
	ID   string
	Lang string // BCP 47 tag, e.g. "en-US"
}

// Provider exposes the host's available voices. The web channel forwards the
// browser's speechSynthesis catalog; tests inject a fixed one.
type Provider interface {
	Voices() []Voice
}

// CatalogProvider is a Provider over a static list.
type CatalogProvider struct {
	Catalog []Voice
}

func (p CatalogProvider) Voices() []Voice {
	return p.Catalog
}

// templates substitute patient name, medicine, and dose, in that order.
var templates = map[string]string{
	"en": "%s, it's time to take your medicine: %s, %s.",
	"es": "%s, es hora de tomar tu medicina: %s, %s.",
	"fr": "%s, il est temps de prendre votre médicament : %s, %s.",
	"de": "%s, es ist Zeit, Ihre Medizin einzunehmen: %s, %s.",
	"hi": "%s, अपनी दवा लेने का समय हो गया है: %s, %s।",
	"zh": "%s，该吃药了：%s，%s。",
}

// BaseCode strips a BCP 47 tag down to its primary subtag ("en-GB" -> "en").
func BaseCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}

// Announcement renders the spoken message for the given language. Lookup is
// exact base-code match, else the default-language template.
func Announcement(lang, patient, medicine, dose string) string {
	tmpl, ok := templates[BaseCode(lang)]
	if !ok {
		tmpl = templates[DefaultLang]
	}
	if strings.TrimSpace(patient) == "" {
		patient = "Hello"
	}
	return fmt.Sprintf(tmpl, patient, medicine, dose)
}

// Languages lists the language codes with a dedicated template.
func Languages() []string {
	out := make([]string, 0, len(templates))
	for lang := range templates {
		out = append(out, lang)
	}
	return out
}

// Select picks the best voice for the desired language: exact tag match
// first, then any voice sharing the base code, then a default-language voice,
// then the first voice in the catalog. Selection is deterministic: among
// equally good matches the one listed first wins. ok is false only when the
// catalog is empty.
func Select(p Provider, lang string) (Voice, bool) {
	voices := p.Voices()
	if len(voices) == 0 {
		return Voice{}, false
	}

	want := strings.ToLower(strings.TrimSpace(lang))
	for _, v := range voices {
		if strings.ToLower(v.Lang) == want {
			return v, true
		}
	}

	base := BaseCode(lang)
	for _, v := range voices {
		if BaseCode(v.Lang) == base {
			return v, true
		}
	}

	for _, v := range voices {
		if BaseCode(v.Lang) == DefaultLang {
			return v, true
		}
	}

	return voices[0], true
}
