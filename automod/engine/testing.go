package engine

import (
	"context"
	"log/slog"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/ledger"
	"github.com/swaffX/neuroviabot-website-sub003/automod/rules"
)

// Guild configured by EngineTestFixture: spam at more than 5 messages in 5s, "bad.com" links, and the word "scam".
var FixtureGuildID = "guild-test-1"

func FixtureGuildConfig() *config.GuildAutomodConfig {
	cfg := &config.GuildAutomodConfig{
		GuildID: FixtureGuildID,
		Enabled: true,
		AntiSpam: config.AntiSpam{
			Enabled:     true,
			MaxMessages: 5,
			WindowMs:    5000,
		},
		LinkFilter: config.LinkFilter{
			Enabled:   true,
			Blacklist: []string{"bad.com"},
		},
		WordFilter: config.WordFilter{
			Enabled:      true,
			BlockedWords: []string{"scam"},
		},
		Punishments: config.PunishmentTable{
			{Count: 1, Action: config.ActionWarn},
			{Count: 3, Action: config.ActionMute, MuteDurationMs: 600_000},
		},
		EscalationMode: config.EscalationExact,
	}
	cfg.Prepare()
	return cfg
}

// Engine with in-memory config, ledger, audit sink and a recording dispatcher. Intentionally exported, for use in
// other packages.
func EngineTestFixture() (*Engine, *MockDispatcher, *MemAuditSink) {
	configs := config.NewMemProvider()
	if err := configs.PutConfig(context.Background(), FixtureGuildConfig()); err != nil {
		panic(err)
	}
	dispatcher := &MockDispatcher{}
	audit := &MemAuditSink{}
	eng := Engine{
		Logger:     slog.Default(),
		Config:     configs,
		Ledger:     ledger.New(ledger.Config{}),
		Rules:      rules.DefaultRules(),
		Dispatcher: dispatcher,
		Audit:      audit,
	}
	return &eng, dispatcher, audit
}
