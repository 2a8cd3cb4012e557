package pronunciation

import (
	"fmt"
	"strings"
)

var phonemeTips = map[string]string{
	"ð": "Place your tongue between your teeth and voice the 'th' sound, as in 'this'",
	"θ": "Place your tongue between your teeth and blow air for the 'th' sound, as in 'think'",
	"æ": "Open your mouth wide and keep your tongue low, as in 'cat'",
	"ə": "Relax your mouth for the short neutral vowel, as in 'about'",
	"ŋ": "Press the back of your tongue against the soft palate, as in 'sing'",
	"r": "Curl your tongue back without touching the roof of your mouth",
	"l": "Touch the tip of your tongue to the ridge behind your upper teeth",
	"w": "Round your lips tightly and then open them",
	"v": "Touch your upper teeth to your lower lip and voice the sound",
	"z": "Make an 's' sound while vibrating your vocal cords",
}

// PhonemeTip returns articulation advice for phoneme in word.
func PhonemeTip(phoneme, word string) string {
	if tip, ok := phonemeTips[strings.ToLower(phoneme)]; ok {
		return fmt.Sprintf("%s: %s", word, tip)
	}
	return fmt.Sprintf("Pay attention to the '%s' sound in '%s'", phoneme, word)
}

var accentLocales = map[string]map[string]string{
	"en": {"us": "en-US", "neutral": "en-US", "british": "en-GB", "australian": "en-AU"},
	"fr": {"neutral": "fr-FR", "canadian": "fr-CA"},
	"es": {"neutral": "es-ES", "mexican": "es-MX"},
	"ar": {"neutral": "ar-EG", "eg": "ar-EG", "sa": "ar-SA"},
}

var languageLocales = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
	"es": "es-ES",
	"ar": "ar-EG",
	"it": "it-IT",
	"zh": "zh-CN",
	"pt": "pt-BR",
}

// ResolveLocale maps a language code and an accent label to a recognition
// locale. An empty accent selects the language's default locale; unknown
// pairs become "language-ACCENT".
func ResolveLocale(language, accent string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	accent = strings.ToLower(strings.TrimSpace(accent))
	if language == "" {
		language = "en"
	}
	if accent == "" {
		if loc, ok := languageLocales[language]; ok {
			return loc
		}
		return language
	}
	if loc, ok := accentLocales[language][accent]; ok {
		return loc
	}
	if accent == "neutral" {
		if loc, ok := languageLocales[language]; ok {
			return loc
		}
	}
	return language + "-" + strings.ToUpper(accent)
}
