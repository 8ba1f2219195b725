package escalation

import (
	"testing"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"

	"github.com/stretchr/testify/assert"
)

func TestResolveExact(t *testing.T) {
	assert := assert.New(t)

	table := config.PunishmentTable{
		{Count: 3, Action: config.ActionMute, MuteDurationMs: 600_000},
		{Count: 1, Action: config.ActionWarn},
	}

	fixtures := []struct {
		count  int
		action config.Action
		dur    time.Duration
	}{
		{count: 0, action: config.ActionNone},
		{count: 1, action: config.ActionWarn},
		{count: 2, action: config.ActionNone},
		{count: 3, action: config.ActionMute, dur: 10 * time.Minute},
		{count: 4, action: config.ActionNone},
		{count: 100, action: config.ActionNone},
	}

	for _, fix := range fixtures {
		d := Resolve(table, fix.count, config.EscalationExact)
		assert.Equal(fix.action, d.Action, "count %d", fix.count)
		assert.Equal(fix.dur, d.Duration, "count %d", fix.count)
		assert.Equal(fix.count, d.ViolationCount)
	}

	// unset mode behaves as exact
	assert.Equal(config.ActionNone, Resolve(table, 2, "").Action)
}

func TestResolveThreshold(t *testing.T) {
	assert := assert.New(t)

	table := config.PunishmentTable{
		{Count: 2, Action: config.ActionWarn},
		{Count: 4, Action: config.ActionKick},
		{Count: 6, Action: config.ActionBan},
	}

	fixtures := []struct {
		count  int
		action config.Action
	}{
		{count: 1, action: config.ActionNone},
		{count: 2, action: config.ActionWarn},
		{count: 3, action: config.ActionWarn},
		{count: 4, action: config.ActionKick},
		{count: 5, action: config.ActionKick},
		{count: 6, action: config.ActionBan},
		{count: 7, action: config.ActionNone},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.action, Resolve(table, fix.count, config.EscalationThreshold).Action, "count %d", fix.count)
	}
}

func TestResolveExhaustedTable(t *testing.T) {
	assert := assert.New(t)

	table := config.PunishmentTable{
		{Count: 1, Action: config.ActionWarn},
		{Count: 3, Action: config.ActionMute},
	}
	for _, mode := range []config.EscalationMode{config.EscalationExact, config.EscalationThreshold} {
		for n := 4; n < 50; n++ {
			assert.True(Resolve(table, n, mode).IsNone(), "mode %s count %d", mode, n)
		}
	}
	assert.True(Resolve(nil, 1, config.EscalationExact).IsNone())
}

func TestResolvePure(t *testing.T) {
	assert := assert.New(t)

	table := config.PunishmentTable{
		{Count: 5, Action: config.ActionBan},
		{Count: 2, Action: config.ActionMute, MuteDurationMs: 1000},
	}
	before := append(config.PunishmentTable(nil), table...)
	first := Resolve(table, 2, config.EscalationExact)
	for i := 0; i < 10; i++ {
		assert.Equal(first, Resolve(table, 2, config.EscalationExact))
	}
	// input table is not reordered
	assert.Equal(before, table)
	assert.Equal(time.Second, first.Duration)
}
