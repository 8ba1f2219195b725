package rules

import (
	"testing"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"

	"github.com/stretchr/testify/assert"
)

func linkFilter(white, black []string) config.LinkFilter {
	cfg := config.GuildAutomodConfig{
		LinkFilter: config.LinkFilter{
			Enabled:   true,
			Whitelist: white,
			Blacklist: black,
		},
	}
	cfg.Prepare()
	return cfg.LinkFilter
}

func TestCheckLinksBlacklist(t *testing.T) {
	assert := assert.New(t)

	lf := linkFilter(nil, []string{"bad.com"})
	v := CheckLinks(lf, "check this out http://bad.com/x")
	assert.True(v.Triggered)
	assert.Equal(KindLink, v.Kind)
	assert.Equal("bad.com", v.Detail)
}

func TestCheckLinksFixtures(t *testing.T) {
	assert := assert.New(t)

	lf := linkFilter(
		[]string{"good.bad.com", "Both.org"},
		[]string{"BAD.com", "both.org", "evil.net"},
	)

	fixtures := []struct {
		text   string
		out    bool
		detail string
	}{
		{text: "", out: false},
		{text: "no links at all", out: false},
		{text: "unknown.example.com is fine", out: false},
		{text: "https://www.bad.com", out: true, detail: "bad.com"},
		{text: "cdn.bad.com/file.zip", out: true, detail: "bad.com"},
		{text: "https://good.bad.com/page", out: false},
		{text: "both.org is listed twice", out: false},
		{text: "sub.both.org too", out: false},
		{text: "fine.com then evil.net then bad.com", out: true, detail: "evil.net"},
		{text: "notbad.com is a different domain", out: false},
	}

	for _, fix := range fixtures {
		v := CheckLinks(lf, fix.text)
		assert.Equal(fix.out, v.Triggered, fix.text)
		if fix.out {
			assert.Equal(fix.detail, v.Detail, fix.text)
		}
	}
}

func TestCheckLinksWhitelistPrecedence(t *testing.T) {
	assert := assert.New(t)

	for _, d := range []string{"bad.com", "spam.io", "discord.gg"} {
		lf := linkFilter([]string{d}, []string{d})
		assert.False(CheckLinks(lf, "visit https://"+d+"/path now").Triggered, d)
		assert.False(CheckLinks(lf, d).Triggered, d)
	}
}

func TestCheckLinksUnprepared(t *testing.T) {
	assert := assert.New(t)

	lf := config.LinkFilter{Enabled: true, Blacklist: []string{"bad.com"}}
	assert.True(CheckLinks(lf, "bad.com").Triggered)
}
