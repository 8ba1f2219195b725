// Enforcement dispatchers, which apply automod punishments on the chat platform.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
	"github.com/swaffX/neuroviabot-website-sub003/automod/escalation"
)

// Dispatcher which only logs decisions, for dry runs against live traffic.
type LogDispatcher struct {
	Logger *slog.Logger
}

var _ engine.Dispatcher = (*LogDispatcher)(nil)

func (d *LogDispatcher) Dispatch(ctx context.Context, guildID, userID string, dec escalation.Decision) (engine.DispatchResult, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("automod punishment (dry run)", "guild", guildID, "user", userID, "action", dec.Action, "duration", dec.Duration, "count", dec.ViolationCount)
	return engine.DispatchResult{Success: true}, nil
}
