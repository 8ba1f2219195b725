package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/escalation"
	"github.com/swaffX/neuroviabot-website-sub003/automod/helpers"
	"github.com/swaffX/neuroviabot-website-sub003/automod/ledger"
	"github.com/swaffX/neuroviabot-website-sub003/automod/rules"
	"github.com/swaffX/neuroviabot-website-sub003/automod/window"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// upper bound on a single enforcement call; a timeout counts as a dispatch failure
	DefaultDispatchTimeout = 5 * time.Second
	// period within which the same config problem for a guild is only reported once
	ConfigProblemReportPeriod = time.Hour
)

// Values of EscalationOutcome.Reason.
var (
	ReasonDisabled       = "disabled"
	ReasonClean          = "clean"
	ReasonViolation      = "violation"
	ReasonAlreadyBanned  = "already-banned"
	ReasonLookupFailed   = "lookup-failed"
	ReasonDispatchFailed = "dispatch-failed"
)

var tracer = otel.Tracer("automod")

// What happened to one message.
type EscalationOutcome struct {
	// action dispatched (or attempted), or none
	Action   config.Action
	Duration time.Duration
	// one of the Reason* values
	Reason string
	// user's violation count after this message
	ViolationCount int
	// kind of the verdict which counted as a violation, or "none"
	Rule   string
	Detail string
	// set when a lookup failed and the message was let through unevaluated
	Skipped bool
	// dispatch found the user already in the target state
	AlreadyInState bool
}

func noneOutcome(reason string, count int) EscalationOutcome {
	return EscalationOutcome{Action: config.ActionNone, Reason: reason, ViolationCount: count, Rule: rules.KindNone}
}

// runtime for evaluating messages, tracking violations, and dispatching punishments.
//
// Config, Ledger and Dispatcher must be set; Audit is optional.
type Engine struct {
	Logger     *slog.Logger
	Config     config.Provider
	Ledger     *ledger.Ledger
	Rules      rules.RuleSet
	Dispatcher Dispatcher
	Audit      AuditSink
	// zero means DefaultDispatchTimeout
	DispatchTimeout time.Duration

	problemsOnce sync.Once
	problems     *expirable.LRU[string, bool]
}

func (eng *Engine) logger() *slog.Logger {
	if eng.Logger == nil {
		return slog.Default()
	}
	return eng.Logger
}

// Evaluates one inbound message and applies any resulting punishment. Messages from the same user are applied in
// the order Evaluate is called for them: the user's ledger record is reserved on entry, before the guild config is
// fetched, so a slow config lookup cannot let a later message overtake an earlier one.
//
// A zero arrivedAt means the message arrived now. Times outside the range window.Representable accepts are
// rejected as invalid arguments.
//
// The returned error is non-nil only for invalid arguments, or a *DispatchFailure when the punishment could not be
// applied; in the latter case the outcome is still populated and the violation still counts. Config and ledger
// lookup failures are not returned as errors: the message is skipped and the outcome has Skipped set.
func (eng *Engine) Evaluate(ctx context.Context, guildID, userID, content string, arrivedAt time.Time) (EscalationOutcome, error) {
	if guildID == "" || userID == "" {
		return noneOutcome(ReasonDisabled, 0), fmt.Errorf("automod evaluation requires guild and user IDs")
	}
	if arrivedAt.IsZero() {
		arrivedAt = time.Now()
	} else if !window.Representable(arrivedAt) {
		return noneOutcome(ReasonDisabled, 0), fmt.Errorf("message arrival time %s is out of range", arrivedAt.UTC().Format(time.RFC3339))
	}
	start := time.Now()
	defer func() {
		evaluateDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracer.Start(ctx, "Evaluate", trace.WithAttributes(
		attribute.String("guild", guildID),
		attribute.String("user", userID),
	))
	defer span.End()

	msg := rules.Message{
		GuildID:   guildID,
		AuthorID:  userID,
		Content:   content,
		ArrivedAt: arrivedAt,
	}
	logger := eng.logger().With("guild", guildID, "user", userID)
	out, err := eng.evaluate(ctx, logger, msg)

	span.SetAttributes(
		attribute.String("action", out.Action.String()),
		attribute.String("reason", out.Reason),
		attribute.Int("violations", out.ViolationCount),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	messagesEvaluatedCount.WithLabelValues(out.Reason).Inc()
	return out, err
}

func (eng *Engine) evaluate(ctx context.Context, logger *slog.Logger, msg rules.Message) (EscalationOutcome, error) {
	reserved := eng.Ledger.Reserve(msg.GuildID, msg.AuthorID)
	defer reserved.Release()

	cfg, err := eng.Config.GetConfig(ctx, msg.GuildID)
	if err != nil {
		return eng.skipped(logger, &TransientLookupError{Op: "config", Err: err}), nil
	}
	if cfg == nil || !cfg.Enabled {
		return noneOutcome(ReasonDisabled, 0), nil
	}
	skip := eng.checkConfig(ctx, logger, cfg)
	if !eng.anyRuleActive(cfg, skip) {
		return noneOutcome(ReasonDisabled, 0), nil
	}

	var out EscalationOutcome
	var dispatchErr error
	err = reserved.Update(ctx, func(rec *ledger.Record) error {
		out, dispatchErr = eng.evaluateRecord(ctx, logger, cfg, skip, msg, rec)
		return nil
	})
	if err != nil {
		return eng.skipped(logger, &TransientLookupError{Op: "ledger", Err: err}), nil
	}
	return out, dispatchErr
}

// Runs rules and escalation for one message. Called with the user's ledger record locked.
func (eng *Engine) evaluateRecord(ctx context.Context, logger *slog.Logger, cfg *config.GuildAutomodConfig, skip map[string]bool, msg rules.Message, rec *ledger.Record) (EscalationOutcome, error) {
	if rec.Banned {
		return noneOutcome(ReasonAlreadyBanned, rec.Count), nil
	}
	if rec.Window == nil {
		// sized by the spam rule
		rec.Window = window.New(1)
	}

	in := rules.Input{Message: msg, Config: cfg, Window: rec.Window}
	res := eng.Rules.Call(&in, skip)
	eng.handleRuleErrors(ctx, logger, cfg, res.Errors)
	for _, v := range res.Triggered {
		verdictCount.WithLabelValues(v.Kind).Inc()
	}
	if !res.Verdict.Triggered {
		return noneOutcome(ReasonClean, rec.Count), nil
	}

	rec.Count++
	rec.LastViolationAt = msg.ArrivedAt
	rec.Dirty = true

	out := EscalationOutcome{
		Action:         config.ActionNone,
		Reason:         ReasonViolation,
		ViolationCount: rec.Count,
		Rule:           res.Verdict.Kind,
		Detail:         res.Verdict.Detail,
	}
	decision := escalation.Decision{Action: config.ActionNone, ViolationCount: rec.Count}
	if !skip[config.FilterPunishments] {
		decision = escalation.Resolve(cfg.Punishments, rec.Count, cfg.EscalationMode)
	}

	var dispatchErr error
	if !decision.IsNone() {
		out.Action = decision.Action
		out.Duration = decision.Duration
		result, err := eng.dispatch(ctx, msg.GuildID, msg.AuthorID, decision)
		if err != nil {
			dispatchErr = err
			out.Reason = ReasonDispatchFailed
			logger.Warn("failed to apply automod punishment", "action", decision.Action, "count", rec.Count, "err", err)
		} else {
			out.AlreadyInState = result.AlreadyInState
			if decision.Action == config.ActionBan {
				rec.Banned = true
			}
		}
	}

	logger.Info("automod violation", "rule", out.Rule, "detail", out.Detail, "count", out.ViolationCount, "action", out.Action)
	evt := AuditEvent{
		Type:           AuditViolation,
		GuildID:        msg.GuildID,
		UserID:         msg.AuthorID,
		RuleKind:       out.Rule,
		Action:         out.Action,
		Duration:       out.Duration,
		ViolationCount: out.ViolationCount,
		Timestamp:      msg.ArrivedAt,
		Detail:         out.Detail,
		LogChannelID:   cfg.LogChannelID,
	}
	if msg.Content != "" {
		evt.ContentHash = helpers.HashOfString(msg.Content)
	}
	if dispatchErr != nil {
		evt.Error = dispatchErr.Error()
	}
	eng.emit(ctx, logger, evt)
	return out, dispatchErr
}

// Calls the dispatcher with a bounded timeout. A dispatcher which ignores its context still cannot hold the caller
// past the timeout.
func (eng *Engine) dispatch(ctx context.Context, guildID, userID string, d escalation.Decision) (DispatchResult, error) {
	fail := func(err error) (DispatchResult, error) {
		dispatchFailureCount.WithLabelValues(d.Action.String()).Inc()
		actionCount.WithLabelValues(d.Action.String(), "failed").Inc()
		return DispatchResult{}, &DispatchFailure{Action: d.Action, Err: err}
	}
	if eng.Dispatcher == nil {
		return fail(fmt.Errorf("no enforcement dispatcher configured"))
	}

	timeout := eng.DispatchTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		res DispatchResult
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("dispatcher panicked: %v", r)}
			}
		}()
		res, err := eng.Dispatcher.Dispatch(ctx, guildID, userID, d)
		ch <- reply{res: res, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		return fail(fmt.Errorf("dispatch timed out: %w", ctx.Err()))
	}
	if r.err != nil {
		return fail(r.err)
	}
	if !r.res.Success && !r.res.AlreadyInState {
		return fail(fmt.Errorf("dispatcher did not apply the action"))
	}
	status := "applied"
	if r.res.AlreadyInState {
		status = "already"
	}
	actionCount.WithLabelValues(d.Action.String(), status).Inc()
	return r.res, nil
}

// Returns the filters to skip for this config, reporting each problem to operators.
func (eng *Engine) checkConfig(ctx context.Context, logger *slog.Logger, cfg *config.GuildAutomodConfig) map[string]bool {
	problems := cfg.Problems()
	if len(problems) == 0 {
		return nil
	}
	skip := make(map[string]bool, len(problems))
	for _, p := range problems {
		skip[p.Filter] = true
		eng.reportProblem(ctx, logger, cfg, p)
	}
	return skip
}

func (eng *Engine) anyRuleActive(cfg *config.GuildAutomodConfig, skip map[string]bool) bool {
	for _, r := range eng.Rules.Rules {
		if skip[r.Filter] {
			continue
		}
		switch r.Filter {
		case config.FilterAntiSpam:
			if cfg.AntiSpam.Enabled {
				return true
			}
		case config.FilterLinks:
			if cfg.LinkFilter.Enabled {
				return true
			}
		case config.FilterWords:
			if cfg.WordFilter.Enabled {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func (eng *Engine) handleRuleErrors(ctx context.Context, logger *slog.Logger, cfg *config.GuildAutomodConfig, errs []error) {
	for _, err := range errs {
		var ce *config.ConfigurationError
		if errors.As(err, &ce) {
			eng.reportProblem(ctx, logger, cfg, ce)
			continue
		}
		ruleErrorCount.Inc()
		logger.Error("automod rule execution exception", "err", err)
	}
}

// Emits an operator event for a config problem, at most once per ConfigProblemReportPeriod.
func (eng *Engine) reportProblem(ctx context.Context, logger *slog.Logger, cfg *config.GuildAutomodConfig, p *config.ConfigurationError) {
	configErrorCount.WithLabelValues(p.Filter).Inc()
	eng.problemsOnce.Do(func() {
		eng.problems = expirable.NewLRU[string, bool](10_000, nil, ConfigProblemReportPeriod)
	})
	key := cfg.GuildID + "/" + p.Filter + "/" + p.Reason
	if eng.problems.Contains(key) {
		return
	}
	eng.problems.Add(key, true)

	logger.Warn("automod filter disabled by invalid config", "filter", p.Filter, "reason", p.Reason)
	eng.emit(ctx, logger, AuditEvent{
		Type:         AuditConfigError,
		GuildID:      cfg.GuildID,
		RuleKind:     p.Filter,
		Action:       config.ActionNone,
		Timestamp:    time.Now(),
		Detail:       p.Reason,
		Error:        p.Error(),
		LogChannelID: cfg.LogChannelID,
	})
}

func (eng *Engine) emit(ctx context.Context, logger *slog.Logger, evt AuditEvent) {
	if eng.Audit == nil {
		return
	}
	if err := eng.Audit.Emit(ctx, evt); err != nil {
		if errors.Is(err, ErrAuditQueueFull) {
			logger.Debug("dropped automod audit event", "type", evt.Type)
			return
		}
		logger.Warn("failed to emit automod audit event", "type", evt.Type, "err", err)
	}
}

func (eng *Engine) skipped(logger *slog.Logger, err *TransientLookupError) EscalationOutcome {
	skippedEvaluationCount.WithLabelValues(err.Op).Inc()
	logger.Warn("skipping automod evaluation", "op", err.Op, "err", err)
	out := noneOutcome(ReasonLookupFailed, 0)
	out.Skipped = true
	return out
}
