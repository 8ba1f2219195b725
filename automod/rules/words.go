package rules

import (
	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/keyword"
)

var _ RuleFunc = WordRule

func WordRule(in *Input) (Verdict, error) {
	if !in.Config.WordFilter.Enabled {
		return None, nil
	}
	return CheckWords(in.Config.WordFilter, in.Content), nil
}

// Case-insensitive blocked word match. By default words only match on token boundaries ("ass" does not match
// "class"); MatchSubstring relaxes this. Text is unicode-normalized first, so the result depends only on the content
// and the blocklist.
func CheckWords(cfg config.WordFilter, content string) Verdict {
	phrases := cfg.Phrases()
	if len(phrases) == 0 || content == "" {
		return None
	}
	var match string
	if cfg.MatchSubstring {
		match = keyword.FirstSubstringMatch(content, phrases)
	} else {
		match = keyword.FirstPhraseMatch(content, phrases)
	}
	if match == "" {
		return None
	}
	return triggered(KindWord, match)
}
