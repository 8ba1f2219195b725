package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstPhraseMatch(t *testing.T) {
	assert := assert.New(t)

	phrases := [][]string{
		{"scam"},
		{"free", "nitro"},
	}

	fixtures := []struct {
		text string
		out  string
	}{
		{text: "", out: ""},
		{text: "hello there", out: ""},
		{text: "this is a SCAM!", out: "scam"},
		{text: "scammer", out: ""},
		{text: "get FREE nitro here", out: "free nitro"},
		{text: "free-nitro.gift", out: "free nitro"},
		{text: "free stuff, nitro later", out: ""},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, FirstPhraseMatch(fix.text, phrases), fix.text)
	}
}

func TestFirstSubstringMatch(t *testing.T) {
	assert := assert.New(t)

	phrases := [][]string{{"scam"}}

	assert.Equal("scam", FirstSubstringMatch("scammer", phrases))
	assert.Equal("scam", FirstSubstringMatch("SCAMS", phrases))
	assert.Equal("", FirstSubstringMatch("s c a m", phrases))
	assert.Equal("", FirstSubstringMatch("anything", nil))
}

func TestContainsPhrase(t *testing.T) {
	assert := assert.New(t)

	assert.True(ContainsPhrase([]string{"a", "b", "c"}, []string{"b", "c"}))
	assert.False(ContainsPhrase([]string{"a", "b", "c"}, []string{"a", "c"}))
	assert.False(ContainsPhrase([]string{"a"}, []string{"a", "b"}))
	assert.False(ContainsPhrase([]string{"a"}, nil))
}
