package keyword

import (
	"slices"
	"strings"
)

// Reports whether phrase occurs as a contiguous run of whole tokens within tokens.
func ContainsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

// Returns the first phrase found in text on token boundaries, joined with single spaces, or "" for no match.
func FirstPhraseMatch(text string, phrases [][]string) string {
	if len(phrases) == 0 {
		return ""
	}
	tokens := TokenizeText(text)
	for _, p := range phrases {
		if ContainsPhrase(tokens, p) {
			return strings.Join(p, " ")
		}
	}
	return ""
}

// Returns the first phrase found anywhere in the normalized text, ignoring token boundaries, or "" for no match.
//
// Both the text and each phrase are compared in normalized form with separators collapsed to single spaces.
func FirstSubstringMatch(text string, phrases [][]string) string {
	if len(phrases) == 0 {
		return ""
	}
	joined := strings.Join(TokenizeText(text), " ")
	for _, p := range phrases {
		needle := strings.Join(p, " ")
		if needle != "" && strings.Contains(joined, needle) {
			return needle
		}
	}
	return ""
}
