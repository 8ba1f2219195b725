package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/window"
)

// A single inbound chat message.
type Message struct {
	GuildID   string
	AuthorID  string
	Content   string
	ArrivedAt time.Time
}

// Everything a rule may look at for one message. Config is a read-only snapshot; Window is the sender's arrival
// history, owned by the ledger and locked by the caller for the duration of the rule run.
type Input struct {
	Message
	Config *config.GuildAutomodConfig
	Window *window.Window
}

type RuleFunc = func(in *Input) (Verdict, error)

// A rule bound to the config filter which toggles it.
type Rule struct {
	Filter string
	Func   RuleFunc
}

// Holds the rules to run for every message, in order.
type RuleSet struct {
	Rules []Rule
}

func DefaultRules() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{Filter: config.FilterAntiSpam, Func: SpamRule},
			{Filter: config.FilterLinks, Func: LinkRule},
			{Filter: config.FilterWords, Func: WordRule},
		},
	}
}

// Result of running a RuleSet against a message.
type Result struct {
	// first triggered verdict in rule order, or None
	Verdict Verdict
	// every triggered verdict, in rule order
	Triggered []Verdict
	// errors from individual rules; a rule which errors contributes no verdict
	Errors []error
}

// Runs every rule whose filter is not in skip. All rules run even after one triggers, so stateful rules (spam
// windows) always observe the message.
func (rs *RuleSet) Call(in *Input, skip map[string]bool) Result {
	res := Result{Verdict: None}
	for _, r := range rs.Rules {
		if skip[r.Filter] {
			continue
		}
		v, err := callRule(r, in)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if v.Triggered {
			if !res.Verdict.Triggered {
				res.Verdict = v
			}
			res.Triggered = append(res.Triggered, v)
		}
	}
	return res
}

// similar to an HTTP server, a panicking rule is converted to an error instead of taking down the worker
func callRule(r Rule, in *Input) (v Verdict, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = None
			err = fmt.Errorf("rule %s panicked: %v", r.Filter, p)
		}
	}()
	return r.Func(in)
}

// Returns the configuration errors among errs.
func ConfigurationErrors(errs []error) []*config.ConfigurationError {
	var out []*config.ConfigurationError
	for _, err := range errs {
		var ce *config.ConfigurationError
		if errors.As(err, &ce) {
			out = append(out, ce)
		}
	}
	return out
}
