package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/keyword"
)

// Names of individually toggleable filters. Used in configuration errors, metrics, and audit events.
const (
	FilterAntiSpam    = "anti_spam"
	FilterLinks       = "link_filter"
	FilterWords       = "word_filter"
	FilterPunishments = "punishments"
)

// How the punishment table is matched against a violation count.
type EscalationMode string

var (
	// fire only when the count equals a table key
	EscalationExact EscalationMode = "exact"
	// fire the highest key at or below the count, until the table is exhausted
	EscalationThreshold EscalationMode = "threshold"
)

// Per-guild automod settings. Treated as an immutable snapshot once handed out by a Provider.
type GuildAutomodConfig struct {
	GuildID        string          `json:"guild_id"`
	Enabled        bool            `json:"enabled"`
	AntiSpam       AntiSpam        `json:"anti_spam"`
	LinkFilter     LinkFilter      `json:"link_filter"`
	WordFilter     WordFilter      `json:"word_filter"`
	Punishments    PunishmentTable `json:"punishments"`
	EscalationMode EscalationMode  `json:"escalation_mode,omitempty"`
	// opaque platform channel identifier; empty means no log channel
	LogChannelID string `json:"log_channel_id,omitempty"`
}

type AntiSpam struct {
	Enabled         bool  `json:"enabled"`
	MaxMessages     int   `json:"max_messages"`
	WindowMs        int64 `json:"window_ms"`
	CheckDuplicates bool  `json:"check_duplicates"`
}

// Upper bounds on the spam filter. A window holds at most MaxSpamMessages+1 arrivals per sender.
const (
	MaxSpamMessages = 1000
	MaxSpamWindowMs = int64(24 * time.Hour / time.Millisecond)
)

func (a AntiSpam) Window() time.Duration {
	return time.Duration(a.WindowMs) * time.Millisecond
}

// Problems describes each out-of-range setting, ignoring Enabled.
func (a AntiSpam) Problems() []string {
	var out []string
	switch {
	case a.MaxMessages <= 0:
		out = append(out, fmt.Sprintf("max_messages must be positive, got %d", a.MaxMessages))
	case a.MaxMessages > MaxSpamMessages:
		out = append(out, fmt.Sprintf("max_messages must be at most %d, got %d", MaxSpamMessages, a.MaxMessages))
	}
	switch {
	case a.WindowMs <= 0:
		out = append(out, fmt.Sprintf("window_ms must be positive, got %d", a.WindowMs))
	case a.WindowMs > MaxSpamWindowMs:
		out = append(out, fmt.Sprintf("window_ms must be at most %d, got %d", MaxSpamWindowMs, a.WindowMs))
	}
	return out
}

type LinkFilter struct {
	Enabled   bool     `json:"enabled"`
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`

	allow map[string]bool
	deny  map[string]bool
}

type WordFilter struct {
	Enabled      bool     `json:"enabled"`
	BlockedWords []string `json:"blocked_words"`
	// match blocked words anywhere in the normalized text, instead of on word boundaries
	MatchSubstring bool `json:"match_substring,omitempty"`

	phrases [][]string
}

// Default settings for a guild which has never been configured. Everything is off.
func Default(guildID string) *GuildAutomodConfig {
	return &GuildAutomodConfig{
		GuildID: guildID,
		AntiSpam: AntiSpam{
			MaxMessages: 5,
			WindowMs:    5000,
		},
		EscalationMode: EscalationExact,
	}
}

// Lower-cases and trims a domain as entered by an admin. Leading "www." and any trailing dot are dropped.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")
	return d
}

// Prepare normalizes list entries and builds lookup tables. Providers call this once per snapshot, before
// handing the config out; the result must not be mutated afterwards.
func (c *GuildAutomodConfig) Prepare() {
	if c.EscalationMode == "" {
		c.EscalationMode = EscalationExact
	}
	c.LinkFilter.allow = domainSet(c.LinkFilter.Whitelist)
	c.LinkFilter.deny = domainSet(c.LinkFilter.Blacklist)

	c.WordFilter.phrases = make([][]string, 0, len(c.WordFilter.BlockedWords))
	for _, w := range c.WordFilter.BlockedWords {
		toks := keyword.TokenizeText(w)
		if len(toks) > 0 {
			c.WordFilter.phrases = append(c.WordFilter.phrases, toks)
		}
	}
}

func domainSet(l []string) map[string]bool {
	m := make(map[string]bool, len(l))
	for _, d := range l {
		d = NormalizeDomain(d)
		if d != "" {
			m[d] = true
		}
	}
	return m
}

// Returns a deep copy, including prepared lookup tables.
func (c *GuildAutomodConfig) Clone() *GuildAutomodConfig {
	out := *c
	out.LinkFilter.Whitelist = append([]string(nil), c.LinkFilter.Whitelist...)
	out.LinkFilter.Blacklist = append([]string(nil), c.LinkFilter.Blacklist...)
	out.WordFilter.BlockedWords = append([]string(nil), c.WordFilter.BlockedWords...)
	out.Punishments = append(PunishmentTable(nil), c.Punishments...)
	out.Prepare()
	return &out
}

// Whether the domain, or any parent domain of it, is whitelisted. Returns the matching entry.
func (f LinkFilter) Whitelisted(domain string) (string, bool) {
	return matchDomain(f.allow, f.Whitelist, domain)
}

// Whether the domain, or any parent domain of it, is blacklisted. Returns the matching entry.
func (f LinkFilter) Blacklisted(domain string) (string, bool) {
	return matchDomain(f.deny, f.Blacklist, domain)
}

func matchDomain(set map[string]bool, raw []string, domain string) (string, bool) {
	if set == nil {
		// not prepared; build a throwaway table rather than mutating a shared snapshot
		set = domainSet(raw)
	}
	if len(set) == 0 {
		return "", false
	}
	d := NormalizeDomain(domain)
	for d != "" {
		if set[d] {
			return d, true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return "", false
}

// Tokenized blocked words. Multi-word entries become multi-token phrases.
func (f WordFilter) Phrases() [][]string {
	if f.phrases != nil {
		return f.phrases
	}
	out := make([][]string, 0, len(f.BlockedWords))
	for _, w := range f.BlockedWords {
		if toks := keyword.TokenizeText(w); len(toks) > 0 {
			out = append(out, toks)
		}
	}
	return out
}

// A malformed guild configuration. The named filter is disabled for the guild until the config is fixed.
type ConfigurationError struct {
	GuildID string
	Filter  string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.GuildID == "" {
		return fmt.Sprintf("invalid automod config (%s): %s", e.Filter, e.Reason)
	}
	return fmt.Sprintf("invalid automod config for guild %s (%s): %s", e.GuildID, e.Filter, e.Reason)
}

// Problems lists every configuration error, in a stable order. Disabled filters are not checked.
func (c *GuildAutomodConfig) Problems() []*ConfigurationError {
	var out []*ConfigurationError
	add := func(filter, format string, args ...any) {
		out = append(out, &ConfigurationError{GuildID: c.GuildID, Filter: filter, Reason: fmt.Sprintf(format, args...)})
	}

	switch c.EscalationMode {
	case "", EscalationExact, EscalationThreshold:
	default:
		add(FilterPunishments, "unknown escalation mode %q", c.EscalationMode)
	}

	if c.AntiSpam.Enabled {
		for _, reason := range c.AntiSpam.Problems() {
			add(FilterAntiSpam, "%s", reason)
		}
	}

	seen := make(map[int]bool, len(c.Punishments))
	for _, r := range c.Punishments {
		if r.Count <= 0 {
			add(FilterPunishments, "violation count must be positive, got %d", r.Count)
			continue
		}
		if seen[r.Count] {
			add(FilterPunishments, "duplicate violation count %d", r.Count)
			continue
		}
		seen[r.Count] = true
		if _, err := ParseAction(string(r.Action)); err != nil || r.Action == ActionNone {
			add(FilterPunishments, "invalid action %q for count %d", r.Action, r.Count)
		}
		if r.MuteDurationMs < 0 {
			add(FilterPunishments, "negative mute duration for count %d", r.Count)
		}
	}
	return out
}

// Validate returns the first configuration error, if any.
func (c *GuildAutomodConfig) Validate() error {
	if p := c.Problems(); len(p) > 0 {
		return p[0]
	}
	return nil
}
