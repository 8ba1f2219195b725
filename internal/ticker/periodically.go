package ticker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Periodically runs the provided task function at the specified interval until the context is done or an error occurs.
func Periodically(ctx context.Context, interval time.Duration, task func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval for periodic task: %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := task(ctx); err != nil {
				return fmt.Errorf("periodic task failed: %w", err)
			}
		}
	}
}

// Like Periodically, but task errors are logged and the loop keeps going. Only returns once ctx is done.
func Background(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, task func(context.Context) error) error {
	return Periodically(ctx, interval, func(ctx context.Context) error {
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Warn("background task failed", "task", name, "err", err, "duration", time.Since(start))
			return nil
		}
		logger.Debug("background task finished", "task", name, "duration", time.Since(start))
		return nil
	})
}
