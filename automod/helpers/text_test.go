package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURL(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out []string
	}{
		{
			s:   "this is a description with example.com mentioned in the middle",
			out: []string{"example.com"},
		},
		{
			s:   "this is another example with https://en.wikipedia.org/index.html: and archive.org, and https://eff.org/... and bsky.app.",
			out: []string{"https://en.wikipedia.org/index.html", "archive.org", "https://eff.org/", "bsky.app"},
		},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, ExtractTextURLs(fix.s))
	}
}

func TestExtractLinks(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text    string
		domains []string
		hosts   []string
	}{
		{text: "no links here", domains: nil, hosts: nil},
		{text: "see http://bad.com/x", domains: []string{"bad.com"}, hosts: []string{"bad.com"}},
		{text: "HTTPS://WWW.Example.CO.UK/path", domains: []string{"example.co.uk"}, hosts: []string{"example.co.uk"}},
		{text: "join discord.gg/abc and cdn.discordapp.com/x.png", domains: []string{"discord.gg", "discordapp.com"}, hosts: []string{"discord.gg", "cdn.discordapp.com"}},
		{text: "http://10.0.0.1:8080/admin", domains: []string{"10.0.0.1"}, hosts: []string{"10.0.0.1"}},
	}

	for _, fix := range fixtures {
		var domains, hosts []string
		for _, l := range ExtractLinks(fix.text) {
			domains = append(domains, l.Domain)
			hosts = append(hosts, l.Host)
		}
		assert.Equal(fix.domains, domains, fix.text)
		assert.Equal(fix.hosts, hosts, fix.text)
	}
}

func TestRegistrableDomain(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("bad.com", RegistrableDomain("a.b.bad.com"))
	assert.Equal("bad.com", RegistrableDomain("BAD.com."))
	assert.Equal("example.github.io", RegistrableDomain("example.github.io"))
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	// hashing function should be consistent over time
	assert.Equal("4e6f69c0e3d10992", HashOfString("dummy-value"))
}
