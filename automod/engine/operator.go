package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/escalation"
	"github.com/swaffX/neuroviabot-website-sub003/automod/ledger"
	"github.com/swaffX/neuroviabot-website-sub003/internal/ticker"

	"golang.org/x/sync/errgroup"
)

var (
	DefaultSweepInterval = 5 * time.Minute
	DefaultFlushInterval = time.Minute
)

// Returns the user's ledger state, reading through to the violation store when the record is not resident.
func (eng *Engine) Inspect(ctx context.Context, guildID, userID string) (ledger.Snapshot, bool, error) {
	return eng.Ledger.Get(ctx, guildID, userID)
}

// Clears a user's violation count and ban marker, as when a moderator clears warnings. Does not lift any ban or
// mute already applied on the platform.
func (eng *Engine) Reset(ctx context.Context, guildID, userID string) error {
	if err := eng.Ledger.Reset(ctx, guildID, userID); err != nil {
		return err
	}
	logger := eng.logger().With("guild", guildID, "user", userID)
	logger.Info("automod violations reset")
	eng.emit(ctx, logger, AuditEvent{
		Type:      AuditReset,
		GuildID:   guildID,
		UserID:    userID,
		Action:    config.ActionNone,
		Timestamp: time.Now(),
	})
	return nil
}

// Re-dispatches the punishment for the user's current violation count, without counting a new violation. This is
// the operator-triggered retry for a DispatchFailure; nothing is dispatched if the count maps to no action, or the
// user is already banned.
func (eng *Engine) Replay(ctx context.Context, guildID, userID string) (EscalationOutcome, error) {
	reserved := eng.Ledger.Reserve(guildID, userID)
	defer reserved.Release()

	cfg, err := eng.Config.GetConfig(ctx, guildID)
	if err != nil {
		return noneOutcome(ReasonLookupFailed, 0), &TransientLookupError{Op: "config", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return noneOutcome(ReasonDisabled, 0), err
	}
	logger := eng.logger().With("guild", guildID, "user", userID)

	var out EscalationOutcome
	var dispatchErr error
	err = reserved.Update(ctx, func(rec *ledger.Record) error {
		if rec.Banned {
			out = noneOutcome(ReasonAlreadyBanned, rec.Count)
			return nil
		}
		decision := escalation.Resolve(cfg.Punishments, rec.Count, cfg.EscalationMode)
		if decision.IsNone() {
			out = noneOutcome(ReasonClean, rec.Count)
			return nil
		}
		out = EscalationOutcome{
			Action:         decision.Action,
			Duration:       decision.Duration,
			Reason:         ReasonViolation,
			ViolationCount: rec.Count,
			Rule:           "replay",
		}
		result, err := eng.dispatch(ctx, guildID, userID, decision)
		if err != nil {
			dispatchErr = err
			out.Reason = ReasonDispatchFailed
		} else {
			out.AlreadyInState = result.AlreadyInState
			if decision.Action == config.ActionBan {
				rec.Banned = true
				rec.Dirty = true
			}
		}
		return nil
	})
	if err != nil {
		return noneOutcome(ReasonLookupFailed, 0), &TransientLookupError{Op: "ledger", Err: err}
	}
	if out.Reason == ReasonViolation || out.Reason == ReasonDispatchFailed {
		logger.Info("automod punishment replayed", "action", out.Action, "count", out.ViolationCount, "err", dispatchErr)
		evt := AuditEvent{
			Type:           AuditReplay,
			GuildID:        guildID,
			UserID:         userID,
			RuleKind:       out.Rule,
			Action:         out.Action,
			Duration:       out.Duration,
			ViolationCount: out.ViolationCount,
			Timestamp:      time.Now(),
			LogChannelID:   cfg.LogChannelID,
		}
		if dispatchErr != nil {
			evt.Error = dispatchErr.Error()
		}
		eng.emit(ctx, logger, evt)
	}
	return out, dispatchErr
}

// Runs the ledger's idle sweep and periodic flush until ctx is done. Zero intervals use the defaults.
func (eng *Engine) Run(ctx context.Context, sweepInterval, flushInterval time.Duration) error {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	logger := eng.logger().With("system", "engine")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ticker.Background(ctx, logger, "ledger-sweep", sweepInterval, eng.Sweep)
	})
	g.Go(func() error {
		return ticker.Background(ctx, logger, "ledger-flush", flushInterval, eng.Flush)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Evicts idle ledger records.
func (eng *Engine) Sweep(ctx context.Context) error {
	stats := eng.Ledger.Sweep(ctx)
	ledgerEvictedCount.Add(float64(stats.Evicted))
	ledgerFlushedCount.Add(float64(stats.Flushed))
	ledgerRecords.Set(float64(eng.Ledger.Len()))
	if stats.Failed > 0 {
		return fmt.Errorf("%d idle ledger records could not be persisted", stats.Failed)
	}
	return nil
}

// Writes dirty ledger records to the violation store.
func (eng *Engine) Flush(ctx context.Context) error {
	stats := eng.Ledger.Flush(ctx)
	ledgerFlushedCount.Add(float64(stats.Flushed))
	ledgerRecords.Set(float64(eng.Ledger.Len()))
	if stats.Failed > 0 {
		return fmt.Errorf("%d ledger records could not be persisted", stats.Failed)
	}
	return nil
}

// Persists all outstanding ledger state. Call after Run has returned and no evaluations are in flight.
func (eng *Engine) Shutdown(ctx context.Context) error {
	return eng.Ledger.Close(ctx)
}
