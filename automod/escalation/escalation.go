// Maps a user's violation count to the punishment configured for it.
package escalation

import (
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
)

// Punishment chosen for a violation count. Decisions are plain values and never persisted.
type Decision struct {
	Action config.Action
	// mute length; zero means no explicit duration
	Duration       time.Duration
	ViolationCount int
}

func (d Decision) IsNone() bool {
	return d.Action == "" || d.Action == config.ActionNone
}

// Resolve is a pure function of its arguments: the same table, count, and mode always produce the same decision.
//
// In exact mode an action fires only when count equals a table key. In threshold mode the rule with the highest key
// at or below count applies, but only while count does not exceed the highest key; once the table is exhausted no
// action repeats. Counts below one, or an empty table, resolve to none.
func Resolve(table config.PunishmentTable, count int, mode config.EscalationMode) Decision {
	none := Decision{Action: config.ActionNone, ViolationCount: count}
	if count < 1 || len(table) == 0 {
		return none
	}

	var match *config.PunishmentRule
	for _, r := range table.Sorted() {
		if r.Count > count {
			break
		}
		switch mode {
		case config.EscalationThreshold:
			r := r
			match = &r
		default:
			if r.Count == count {
				r := r
				match = &r
			}
		}
	}
	if match == nil || count > table.MaxCount() {
		return none
	}
	if match.Action == "" || match.Action == config.ActionNone {
		return none
	}

	d := Decision{Action: match.Action, ViolationCount: count}
	if match.Action == config.ActionMute {
		d.Duration = match.MuteDuration()
	}
	return d
}
