// Durable storage of per-user violation counts, so escalation survives ledger eviction and process restarts.
package violationstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("violation record not found")

// Persisted part of a user's ledger record. Sliding-window state is never stored.
type UserState struct {
	GuildID         string
	UserID          string
	Count           int
	Banned          bool
	LastViolationAt time.Time
}

type Store interface {
	// Returns ErrNotFound (possibly wrapped) if nothing is stored for the user.
	Load(ctx context.Context, guildID, userID string) (*UserState, error)
	// Overwrites the stored state for the user.
	Save(ctx context.Context, st UserState) error
	// Does not error if nothing is stored.
	Delete(ctx context.Context, guildID, userID string) error
}
