// Delivery of automod audit events: structured logs, guild log channels, and an operator Slack channel.
package auditlog

import (
	"context"
	"log/slog"

	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
)

// Writes each event as one structured log line.
type LogSink struct {
	Logger *slog.Logger
}

var _ engine.AuditSink = (*LogSink)(nil)

func (s *LogSink) Emit(ctx context.Context, evt engine.AuditEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if evt.Error != "" {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "automod audit",
		"type", evt.Type,
		"guild", evt.GuildID,
		"user", evt.UserID,
		"rule", evt.RuleKind,
		"action", evt.Action,
		"count", evt.ViolationCount,
		"timestamp", evt.Timestamp,
		"detail", evt.Detail,
		"contentHash", evt.ContentHash,
		"err", evt.Error,
	)
	return nil
}
