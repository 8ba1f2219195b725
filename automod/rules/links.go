package rules

import (
	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/helpers"
)

var _ RuleFunc = LinkRule

func LinkRule(in *Input) (Verdict, error) {
	if !in.Config.LinkFilter.Enabled {
		return None, nil
	}
	return CheckLinks(in.Config.LinkFilter, in.Content), nil
}

// Blocks a message when any link in it points at a blacklisted domain which is not also whitelisted. Both lists
// match the link's host or any parent domain of it, so whitelisting "bad.com" also allows "cdn.bad.com". Domains in
// neither list pass.
//
// The verdict detail is the blacklist entry matched by the first blocked link.
func CheckLinks(cfg config.LinkFilter, content string) Verdict {
	if len(cfg.Blacklist) == 0 {
		return None
	}
	for _, l := range helpers.ExtractLinks(content) {
		if _, ok := cfg.Whitelisted(l.Host); ok {
			continue
		}
		if entry, ok := cfg.Blacklisted(l.Host); ok {
			return triggered(KindLink, entry)
		}
	}
	return None
}
