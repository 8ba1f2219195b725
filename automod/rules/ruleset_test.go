package rules

import (
	"testing"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/window"

	"github.com/stretchr/testify/assert"
)

func testInput(content string) *Input {
	cfg := config.Default("g1")
	cfg.Enabled = true
	cfg.AntiSpam = config.AntiSpam{Enabled: true, MaxMessages: 1, WindowMs: 10_000}
	cfg.LinkFilter = config.LinkFilter{Enabled: true, Blacklist: []string{"bad.com"}}
	cfg.WordFilter = config.WordFilter{Enabled: true, BlockedWords: []string{"scam"}}
	cfg.Prepare()
	return &Input{
		Message: Message{GuildID: "g1", AuthorID: "u1", Content: content, ArrivedAt: at(0)},
		Config:  cfg,
		Window:  window.New(1),
	}
}

func TestRuleSetCallsAllRules(t *testing.T) {
	assert := assert.New(t)

	rs := DefaultRules()
	in := testInput("scam at bad.com")
	res := rs.Call(in, nil)
	assert.True(res.Verdict.Triggered)
	assert.Equal(KindLink, res.Verdict.Kind)
	assert.Equal(2, len(res.Triggered))
	assert.Empty(res.Errors)
	// spam rule still recorded the arrival
	assert.Equal(1, in.Window.Len())

	// second message in window trips spam first
	in.ArrivedAt = at(10)
	res = rs.Call(in, nil)
	assert.Equal(KindSpam, res.Verdict.Kind)
	assert.Equal(3, len(res.Triggered))
}

func TestRuleSetSkip(t *testing.T) {
	assert := assert.New(t)

	rs := DefaultRules()
	in := testInput("scam at bad.com")
	res := rs.Call(in, map[string]bool{config.FilterLinks: true, config.FilterAntiSpam: true})
	assert.Equal(KindWord, res.Verdict.Kind)
	assert.Equal(0, in.Window.Len())
}

func TestRuleSetErrors(t *testing.T) {
	assert := assert.New(t)

	rs := RuleSet{
		Rules: []Rule{
			{Filter: "panics", Func: func(in *Input) (Verdict, error) { panic("boom") }},
			{Filter: config.FilterAntiSpam, Func: SpamRule},
			{Filter: config.FilterWords, Func: WordRule},
		},
	}
	in := testInput("scam")
	in.Config.AntiSpam.MaxMessages = 0
	res := rs.Call(in, nil)
	assert.Equal(2, len(res.Errors))
	assert.Equal(1, len(ConfigurationErrors(res.Errors)))
	assert.Equal(KindWord, res.Verdict.Kind)
}
