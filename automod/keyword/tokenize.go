package keyword

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Lower-cases text and folds combining marks away (eg, "Gdańsk" becomes "gdansk"). Whitespace and punctuation are
// left in place.
func Normalize(text string) string {
	// the transformer is stateful, so it is built fresh for every call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lower := strings.ToLower(text)
	out, _, err := transform.String(normFunc, lower)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		return lower
	}
	return out
}

// Splits free-form chat text in to lower-case, normalized tokens. Any run of characters which are not letters,
// digits, or whitespace acts as a separator, so "bad-word" and "bad.word" both become ["bad", "word"].
func TokenizeTextWithRegex(text string, nonTokenCharsRegex *regexp.Regexp) []string {
	split := nonTokenCharsRegex.ReplaceAllString(Normalize(text), " ")
	return strings.Fields(split)
}

func TokenizeText(text string) []string {
	return TokenizeTextWithRegex(text, nonTokenChars)
}
