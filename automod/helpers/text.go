package helpers

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"github.com/spaolacci/murmur3"
	"golang.org/x/net/publicsuffix"
)

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// based on: https://stackoverflow.com/a/48769624, with no trailing period allowed
var urlRegex = regexp.MustCompile(`(?i)(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)

// Finds URL-like substrings, including bare domains like "example.com", in free-form text.
func ExtractTextURLs(raw string) []string {
	return urlRegex.FindAllString(raw, -1)
}

// A link found in message text.
type Link struct {
	// substring as it appeared in the message
	Raw string
	// lower-case hostname, without port or trailing dot
	Host string
	// registrable domain (eTLD+1) of Host; same as Host for IP addresses and hosts without a known suffix
	Domain string
}

// Extracts links from text and resolves each to its host and registrable domain. Substrings which don't parse as a
// URL with a dotted hostname are skipped.
func ExtractLinks(raw string) []Link {
	var out []Link
	for _, s := range ExtractTextURLs(raw) {
		l, ok := ParseLink(s)
		if ok {
			out = append(out, l)
		}
	}
	return out
}

func ParseLink(s string) (Link, bool) {
	candidate := s
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + strings.TrimLeft(candidate, "/")
	}
	clean, err := purell.NormalizeURLString(candidate, purell.FlagsSafe|purell.FlagRemoveWWW|purell.FlagRemoveFragment|purell.FlagRemoveDuplicateSlashes)
	if err != nil {
		clean = candidate
	}
	u, err := url.Parse(clean)
	if err != nil {
		return Link{}, false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return Link{}, false
	}
	if net.ParseIP(host) != nil {
		return Link{Raw: s, Host: host, Domain: host}, true
	}
	if !strings.Contains(host, ".") {
		return Link{}, false
	}
	return Link{Raw: s, Host: host, Domain: RegistrableDomain(host)}, true
}

// Returns the eTLD+1 for a hostname, or the hostname itself if it has no registrable part (eg, it is a bare
// public suffix).
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
