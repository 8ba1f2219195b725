package automod

import (
	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
	"github.com/swaffX/neuroviabot-website-sub003/automod/escalation"
	"github.com/swaffX/neuroviabot-website-sub003/automod/rules"
)

type Engine = engine.Engine
type EscalationOutcome = engine.EscalationOutcome
type Dispatcher = engine.Dispatcher
type DispatchResult = engine.DispatchResult
type AuditSink = engine.AuditSink
type AuditEvent = engine.AuditEvent

type GuildAutomodConfig = config.GuildAutomodConfig
type ConfigProvider = config.Provider
type Action = config.Action

type Decision = escalation.Decision
type Verdict = rules.Verdict
type RuleSet = rules.RuleSet
type RuleFunc = rules.RuleFunc

type ConfigurationError = engine.ConfigurationError
type DispatchFailure = engine.DispatchFailure
type TransientLookupError = engine.TransientLookupError

var (
	ActionNone = config.ActionNone
	ActionWarn = config.ActionWarn
	ActionMute = config.ActionMute
	ActionKick = config.ActionKick
	ActionBan  = config.ActionBan

	KindSpam = rules.KindSpam
	KindLink = rules.KindLink
	KindWord = rules.KindWord
)
