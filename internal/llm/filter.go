package llm

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
)

// fillerPhrases are produced by the speech model on near-silent audio.
var fillerPhrases = []string{
	"thank you for watching",
	"share this video",
	"subscribe",
	"like and subscribe",
	"I'm still here. I'm still here. I'm still here.",
	"Shh.",
	"Thank you so much for watching",
	"Thank you.",
	"follow me on",
	"Thank you",
}

var normalizedFillers = func() []string {
	out := make([]string, 0, len(fillerPhrases))
	for _, p := range fillerPhrases {
		out = append(out, strings.ToLower(p))
	}
	// Longest first so "thank you so much for watching" is removed before "thank you".
	slices.SortFunc(out, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	return out
}()

// IsMeaningfulTranscript reports whether anything besides filler phrases,
// punctuation and whitespace remains in the transcript.
func IsMeaningfulTranscript(text string) bool {
	rest := strings.ToLower(strings.TrimSpace(text))
	if rest == "" {
		return false
	}
	for _, p := range normalizedFillers {
		rest = strings.ReplaceAll(rest, p, " ")
	}
	return strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
