// Package tokenizer estimates LLM token counts without a model vocabulary.
package tokenizer

import (
	"strings"
	"unicode"
)

// CountTokens provides a rough token count estimate: about four tokens per
// three words of space-separated text, and one token per character for
// scripts written without spaces.
func CountTokens(text string) int {
	words := 0
	dense := 0
	for _, w := range strings.Fields(text) {
		n := 0
		for _, r := range w {
			if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul, unicode.Thai) {
				n++
			}
		}
		if n > 0 {
			dense += n
		} else {
			words++
		}
	}
	return max(words*4/3+dense, 1)
}

// CompletionBudget is a max_tokens value large enough for a translation of
// text. Translations can run longer than their source, so it doubles the
// estimate and adds headroom.
func CompletionBudget(text string) int {
	return 2*CountTokens(text) + 64
}
