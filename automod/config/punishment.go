package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Action is the kind of automatic enforcement applied for a violation count.
type Action string

var (
	ActionNone Action = "none"
	ActionWarn Action = "warn"
	ActionMute Action = "mute"
	ActionKick Action = "kick"
	ActionBan  Action = "ban"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionNone, ActionWarn, ActionMute, ActionKick, ActionBan:
		return a, nil
	default:
		return ActionNone, fmt.Errorf("unknown punishment action: %q", s)
	}
}

func (a Action) String() string {
	if a == "" {
		return string(ActionNone)
	}
	return string(a)
}

// Severity orders actions for display; none is zero and ban is the highest.
func (a Action) Severity() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionMute:
		return 2
	case ActionKick:
		return 3
	case ActionBan:
		return 4
	default:
		return 0
	}
}

// One row of the punishment table: when a user reaches Count violations, Action is taken.
type PunishmentRule struct {
	Count          int    `json:"count"`
	Action         Action `json:"action"`
	MuteDurationMs int64  `json:"mute_duration_ms,omitempty"`
}

func (r PunishmentRule) MuteDuration() time.Duration {
	return time.Duration(r.MuteDurationMs) * time.Millisecond
}

// PunishmentTable is the sparse mapping from absolute violation count to action.
//
// Insertion order carries no meaning. It decodes from either a JSON list of rules, or from the object form used by
// the dashboard, eg `{"1": "warn", "3": {"action": "mute", "duration_ms": 600000}}`. Duplicate keys are kept so
// that validation can report them.
type PunishmentTable []PunishmentRule

// Sorted returns a copy of the table ordered by ascending count.
func (t PunishmentTable) Sorted() PunishmentTable {
	out := make(PunishmentTable, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count < out[j].Count
	})
	return out
}

// MaxCount returns the highest configured count, or zero for an empty table.
func (t PunishmentTable) MaxCount() int {
	max := 0
	for _, r := range t {
		if r.Count > max {
			max = r.Count
		}
	}
	return max
}

type objectEntry struct {
	Action     Action `json:"action"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

func (t *PunishmentTable) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*t = nil
		return nil
	}
	if raw[0] == '[' {
		var rules []PunishmentRule
		if err := json.Unmarshal(raw, &rules); err != nil {
			return err
		}
		*t = rules
		return nil
	}

	// object form; walk tokens by hand so that duplicate keys survive decoding
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("punishment table must be a JSON object or list")
	}
	out := PunishmentTable{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected punishment table key: %v", tok)
		}
		count, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return fmt.Errorf("punishment table key is not an integer: %q", key)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return err
		}
		rule := PunishmentRule{Count: count}
		var name string
		if err := json.Unmarshal(val, &name); err == nil {
			rule.Action = Action(strings.ToLower(name))
		} else {
			var ent objectEntry
			if err := json.Unmarshal(val, &ent); err != nil {
				return fmt.Errorf("invalid punishment table entry for %d: %w", count, err)
			}
			rule.Action = Action(strings.ToLower(string(ent.Action)))
			rule.MuteDurationMs = ent.DurationMs
		}
		out = append(out, rule)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}
