package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/window"
)

var _ RuleFunc = SpamRule

func SpamRule(in *Input) (Verdict, error) {
	if !in.Config.AntiSpam.Enabled {
		return None, nil
	}
	v, err := CheckSpam(in.Window, in.Config.AntiSpam, in.Content, in.ArrivedAt)
	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		ce.GuildID = in.GuildID
	}
	return v, err
}

// Records the arrival in win and decides whether the sender is flooding.
//
// Timestamps at or before now-window are pruned first, so a message exactly one window width old no longer counts.
// The message triggers when the in-window count including itself exceeds MaxMessages. With CheckDuplicates, a
// non-empty message identical to the sender's previous message, which is itself still in the window, also triggers.
//
// MaxMessages or WindowMs that is non-positive or above its upper bound is a configuration error; the message is
// never blocked in that case, and the window is left untouched.
func CheckSpam(win *window.Window, cfg config.AntiSpam, content string, now time.Time) (Verdict, error) {
	if p := cfg.Problems(); len(p) > 0 {
		return None, &config.ConfigurationError{Filter: config.FilterAntiSpam, Reason: p[0]}
	}
	if win == nil {
		return None, fmt.Errorf("spam rule called without a message window")
	}

	// one extra slot is enough to know the threshold was exceeded
	win.Resize(cfg.MaxMessages + 1)
	win.Prune(now.Add(-cfg.Window()))

	duplicate := cfg.CheckDuplicates && content != "" && win.Len() > 0 && win.LastContent() == content

	win.Push(now)
	win.SetLastContent(content)

	if win.Len() > cfg.MaxMessages {
		return triggered(KindSpam, fmt.Sprintf("more than %d messages in %dms", cfg.MaxMessages, cfg.WindowMs)), nil
	}
	if duplicate {
		return triggered(KindSpam, "duplicate message"), nil
	}
	return None, nil
}
