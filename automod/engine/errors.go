package engine

import (
	"errors"
	"fmt"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
)

// Re-exported so callers can match all engine errors from one package.
type ConfigurationError = config.ConfigurationError

var ErrAuditQueueFull = errors.New("audit queue full, event dropped")

// The enforcement executor could not apply an action. The violation which led to it still counts; the action is
// not retried automatically.
type DispatchFailure struct {
	Action config.Action
	Err    error
}

func (e *DispatchFailure) Error() string {
	return fmt.Sprintf("dispatching %s: %v", e.Action, e.Err)
}

func (e *DispatchFailure) Unwrap() error {
	return e.Err
}

// Config or ledger lookup failed for infrastructure reasons. The message is skipped rather than blocked.
type TransientLookupError struct {
	// "config" or "ledger"
	Op  string
	Err error
}

func (e *TransientLookupError) Error() string {
	return fmt.Sprintf("automod %s lookup failed: %v", e.Op, e.Err)
}

func (e *TransientLookupError) Unwrap() error {
	return e.Err
}
