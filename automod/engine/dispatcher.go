package engine

import (
	"context"
	"sync"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/escalation"
)

// Applies a resolved punishment on the chat platform. The engine never calls Dispatch with a none decision.
type Dispatcher interface {
	Dispatch(ctx context.Context, guildID, userID string, d escalation.Decision) (DispatchResult, error)
}

type DispatchResult struct {
	Success bool
	// the user was already in the target state (eg, already banned); not a failure
	AlreadyInState bool
}

// Dispatcher which records every call and applies nothing. Used in tests and dry runs.
type MockDispatcher struct {
	mu    sync.Mutex
	Calls []DispatchCall
	// if set, called for each dispatch instead of reporting success
	Func func(ctx context.Context, guildID, userID string, d escalation.Decision) (DispatchResult, error)
}

type DispatchCall struct {
	GuildID  string
	UserID   string
	Decision escalation.Decision
}

var _ Dispatcher = (*MockDispatcher)(nil)

func (m *MockDispatcher) Dispatch(ctx context.Context, guildID, userID string, d escalation.Decision) (DispatchResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, DispatchCall{GuildID: guildID, UserID: userID, Decision: d})
	fn := m.Func
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, guildID, userID, d)
	}
	return DispatchResult{Success: true}, nil
}

// Copy of the recorded calls.
func (m *MockDispatcher) Recorded() []DispatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DispatchCall(nil), m.Calls...)
}

// Actions of the recorded calls, in order.
func (m *MockDispatcher) Actions() []config.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]config.Action, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Decision.Action
	}
	return out
}
