package ticker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicallyStopsOnError(t *testing.T) {
	assert := assert.New(t)

	boom := errors.New("boom")
	var runs atomic.Int32
	err := Periodically(context.Background(), time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(err, boom)
	assert.Equal(int32(3), runs.Load())
}

func TestBackgroundKeepsGoing(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	err := Background(ctx, slog.Default(), "test", time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) >= 5 {
			cancel()
		}
		return errors.New("always fails")
	})
	assert.ErrorIs(err, context.Canceled)
	assert.GreaterOrEqual(runs.Load(), int32(5))
}

func TestPeriodicallyBadInterval(t *testing.T) {
	assert.Error(t, Periodically(context.Background(), 0, func(ctx context.Context) error { return nil }))
}
